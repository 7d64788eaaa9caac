package gormrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"aitown/internal/adapter/repo/gorm/model"
	"aitown/internal/app/ports"
	"aitown/internal/domain/game"
)

const (
	kindPlayer       = "player"
	kindLocation     = "location"
	kindAgent        = "agent"
	kindConversation = "conversation"
	kindMember       = "member"
)

// WorldStateRepo stores entities as JSON documents in world_entities, with
// the columns Load filters on lifted out of the document.
type WorldStateRepo struct {
	db *gorm.DB
}

func NewWorldStateRepo(db *gorm.DB) WorldStateRepo {
	return WorldStateRepo{db: db}
}

func (r WorldStateRepo) CreateWorld(ctx context.Context, w game.World, m game.Map) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode map: %w", err)
	}
	row := model.World{WorldID: w.ID, Seed: w.Seed, NextID: w.NextID, Map: b}
	return translateError(getDBFromCtx(ctx, r.db).Create(&row).Error)
}

func (r WorldStateRepo) Load(ctx context.Context, worldID string, leftSince int64) (game.Snapshot, error) {
	db := getDBFromCtx(ctx, r.db)
	var w model.World
	if err := db.Where("world_id = ?", worldID).First(&w).Error; err != nil {
		return game.Snapshot{}, translateError(err)
	}
	snap := game.Snapshot{World: game.World{ID: w.WorldID, Seed: w.Seed, NextID: w.NextID}}
	if err := json.Unmarshal(w.Map, &snap.Map); err != nil {
		return game.Snapshot{}, fmt.Errorf("decode map of %s: %w", worldID, err)
	}

	var rows []model.WorldEntity
	err := db.Where("world_id = ?", worldID).
		Where(db.Where("kind IN ?", []string{kindPlayer, kindLocation, kindAgent}).
			Or("kind = ? AND live", kindConversation).
			Or("kind = ? AND (live OR ended_at >= ?)", kindMember, leftSince)).
		Find(&rows).Error
	if err != nil {
		return game.Snapshot{}, err
	}
	for _, row := range rows {
		if err := decodeEntity(&snap, row); err != nil {
			return game.Snapshot{}, err
		}
	}
	sortByID(snap.Players, func(p game.Player) string { return p.ID })
	sortByID(snap.Locations, func(l game.Location) string { return l.ID })
	sortByID(snap.Agents, func(a game.Agent) string { return a.ID })
	sortByID(snap.Conversations, func(c game.Conversation) string { return c.ID })
	sortByID(snap.Members, func(m game.Member) string { return m.ID })
	sortByID(snap.RecentLeft, func(m game.Member) string { return m.ID })
	return snap, nil
}

func decodeEntity(snap *game.Snapshot, row model.WorldEntity) error {
	var err error
	switch row.Kind {
	case kindPlayer:
		var v game.Player
		if err = json.Unmarshal(row.Data, &v); err == nil {
			snap.Players = append(snap.Players, v)
		}
	case kindLocation:
		var v game.Location
		if err = json.Unmarshal(row.Data, &v); err == nil {
			snap.Locations = append(snap.Locations, v)
		}
	case kindAgent:
		var v game.Agent
		if err = json.Unmarshal(row.Data, &v); err == nil {
			snap.Agents = append(snap.Agents, v)
		}
	case kindConversation:
		var v game.Conversation
		if err = json.Unmarshal(row.Data, &v); err == nil {
			snap.Conversations = append(snap.Conversations, v)
		}
	case kindMember:
		var v game.Member
		if err = json.Unmarshal(row.Data, &v); err == nil {
			if v.Status.Kind == game.MemberLeft {
				snap.RecentLeft = append(snap.RecentLeft, v)
			} else {
				snap.Members = append(snap.Members, v)
			}
		}
	default:
		return fmt.Errorf("unknown entity kind %q", row.Kind)
	}
	if err != nil {
		return fmt.Errorf("decode %s %s: %w", row.Kind, row.EntityID, err)
	}
	return nil
}

func (r WorldStateRepo) Save(ctx context.Context, worldID string, diff game.Diff) error {
	db := getDBFromCtx(ctx, r.db)
	if diff.World != nil {
		res := db.Model(&model.World{}).Where("world_id = ?", worldID).
			Updates(map[string]any{"seed": diff.World.Seed, "next_id": diff.World.NextID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ports.ErrNotFound
		}
	}

	rows, err := entityRows(worldID, diff)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "world_id"}, {Name: "kind"}, {Name: "entity_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"conversation_id", "live", "ended_at", "data"}),
		}).CreateInBatches(&rows, 200).Error
		if err != nil {
			return err
		}
	}

	if len(diff.Messages) > 0 {
		msgs := make([]model.Message, 0, len(diff.Messages))
		for _, m := range diff.Messages {
			msgs = append(msgs, model.Message{
				WorldID:        worldID,
				ID:             m.ID,
				ConversationID: m.ConversationID,
				Author:         m.Author,
				MessageUUID:    m.MessageUUID,
				Text:           m.Text,
				Timestamp:      m.Timestamp,
			})
		}
		if err := db.Create(&msgs).Error; err != nil {
			return translateError(err)
		}
	}

	// Histories cover only the last step.
	if err := db.Where("world_id = ?", worldID).Delete(&model.LocationHistory{}).Error; err != nil {
		return err
	}
	if len(diff.Histories) == 0 {
		return nil
	}
	hist := make([]model.LocationHistory, 0, len(diff.Histories))
	for _, h := range diff.Histories {
		b, err := compressHistory(h.Buffer)
		if err != nil {
			return err
		}
		hist = append(hist, model.LocationHistory{WorldID: worldID, LocationID: h.LocationID, Buffer: b})
	}
	return db.Create(&hist).Error
}

func entityRows(worldID string, diff game.Diff) ([]model.WorldEntity, error) {
	rows := make([]model.WorldEntity, 0, len(diff.Players)+len(diff.Locations)+len(diff.Agents)+len(diff.Conversations)+len(diff.Members))
	add := func(kind, id string, v any, live bool, convID string, endedAt int64) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", kind, id, err)
		}
		rows = append(rows, model.WorldEntity{
			WorldID:        worldID,
			Kind:           kind,
			EntityID:       id,
			ConversationID: convID,
			Live:           live,
			EndedAt:        endedAt,
			Data:           b,
		})
		return nil
	}
	for _, p := range diff.Players {
		if err := add(kindPlayer, p.ID, p, p.Active, "", 0); err != nil {
			return nil, err
		}
	}
	for _, l := range diff.Locations {
		if err := add(kindLocation, l.ID, l, true, "", 0); err != nil {
			return nil, err
		}
	}
	for _, a := range diff.Agents {
		if err := add(kindAgent, a.ID, a, true, "", 0); err != nil {
			return nil, err
		}
	}
	for _, c := range diff.Conversations {
		ended := int64(0)
		if c.FinishedAt != nil {
			ended = *c.FinishedAt
		}
		if err := add(kindConversation, c.ID, c, c.FinishedAt == nil, c.ID, ended); err != nil {
			return nil, err
		}
	}
	for _, m := range diff.Members {
		live := m.Status.Kind != game.MemberLeft
		if err := add(kindMember, m.ID, m, live, m.ConversationID, m.Status.EndedAt); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func (r WorldStateRepo) Histories(ctx context.Context, worldID string) ([]game.LocationHistory, error) {
	var rows []model.LocationHistory
	if err := getDBFromCtx(ctx, r.db).Where("world_id = ?", worldID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]game.LocationHistory, 0, len(rows))
	for _, row := range rows {
		b, err := decompressHistory(row.Buffer)
		if err != nil {
			return nil, fmt.Errorf("location %s: %w", row.LocationID, err)
		}
		out = append(out, game.LocationHistory{LocationID: row.LocationID, Buffer: b})
	}
	sortByID(out, func(h game.LocationHistory) string { return h.LocationID })
	return out, nil
}

// ListByConversation returns the newest limit messages, oldest first.
func (r WorldStateRepo) ListByConversation(ctx context.Context, worldID, conversationID string, limit int) ([]game.Message, error) {
	var rows []model.Message
	query := getDBFromCtx(ctx, r.db).
		Where("world_id = ? AND conversation_id = ?", worldID, conversationID).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "ts"}, Desc: true},
			{Column: clause.Column{Name: "id"}, Desc: true},
		}})
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]game.Message, len(rows))
	for i, m := range rows {
		out[len(rows)-1-i] = game.Message{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			Author:         m.Author,
			MessageUUID:    m.MessageUUID,
			Text:           m.Text,
			Timestamp:      m.Timestamp,
		}
	}
	return out, nil
}

func sortByID[T any](rows []T, id func(T) string) {
	sort.Slice(rows, func(i, j int) bool { return game.IDLess(id(rows[i]), id(rows[j])) })
}
