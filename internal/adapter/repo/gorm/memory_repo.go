package gormrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"aitown/internal/adapter/repo/gorm/model"
	"aitown/internal/domain/memory"
)

type MemoryRepo struct {
	db *gorm.DB
}

func NewMemoryRepo(db *gorm.DB) MemoryRepo {
	return MemoryRepo{db: db}
}

func (r MemoryRepo) Save(ctx context.Context, worldID string, m memory.Memory) error {
	emb, err := json.Marshal(m.Embedding)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	var related []byte
	if len(m.RelatedIDs) > 0 {
		if related, err = json.Marshal(m.RelatedIDs); err != nil {
			return fmt.Errorf("encode related ids: %w", err)
		}
	}
	row := model.Memory{
		WorldID:        worldID,
		ID:             m.ID,
		PlayerID:       m.PlayerID,
		Description:    m.Description,
		Embedding:      emb,
		Importance:     m.Importance,
		Created:        m.Created,
		LastAccess:     m.LastAccess,
		Kind:           string(m.Kind),
		ConversationID: m.ConversationID,
		RelatedIds:     related,
	}
	// Memory ids derive from their source, so a retried operation overwrites.
	return getDBFromCtx(ctx, r.db).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (r MemoryRepo) ListByPlayer(ctx context.Context, worldID, playerID string) ([]memory.Memory, error) {
	var rows []model.Memory
	err := getDBFromCtx(ctx, r.db).
		Where("world_id = ? AND player_id = ?", worldID, playerID).
		Order("created, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]memory.Memory, 0, len(rows))
	for _, row := range rows {
		m := memory.Memory{
			ID:             row.ID,
			PlayerID:       row.PlayerID,
			Description:    row.Description,
			Importance:     row.Importance,
			Created:        row.Created,
			LastAccess:     row.LastAccess,
			Kind:           memory.Kind(row.Kind),
			ConversationID: row.ConversationID,
		}
		if err := json.Unmarshal(row.Embedding, &m.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding of %s: %w", row.ID, err)
		}
		if len(row.RelatedIds) > 0 {
			if err := json.Unmarshal(row.RelatedIds, &m.RelatedIDs); err != nil {
				return nil, fmt.Errorf("decode related ids of %s: %w", row.ID, err)
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func (r MemoryRepo) Touch(ctx context.Context, worldID string, ids []string, at int64) error {
	if len(ids) == 0 {
		return nil
	}
	return getDBFromCtx(ctx, r.db).Model(&model.Memory{}).
		Where("world_id = ? AND id IN ?", worldID, ids).
		Update("last_access", at).Error
}
