package gormrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"aitown/internal/adapter/repo/gorm/model"
	"aitown/internal/app/ports"
)

type InputRepo struct {
	db *gorm.DB
}

func NewInputRepo(db *gorm.DB) InputRepo {
	return InputRepo{db: db}
}

// Append relies on the (world_id, number) unique index to reject a number
// another writer already took.
func (r InputRepo) Append(ctx context.Context, rec ports.InputRecord) error {
	m := model.Input{
		ID:           rec.ID,
		WorldID:      rec.WorldID,
		Number:       rec.Number,
		Name:         rec.Name,
		Args:         rec.Args,
		ReceivedTime: rec.ReceivedTime,
	}
	if len(m.Args) == 0 {
		m.Args = []byte("{}")
	}
	return translateError(getDBFromCtx(ctx, r.db).Create(&m).Error)
}

func (r InputRepo) MaxNumber(ctx context.Context, worldID string) (int64, error) {
	var n *int64
	err := getDBFromCtx(ctx, r.db).Model(&model.Input{}).
		Where("world_id = ?", worldID).
		Select("MAX(number)").
		Scan(&n).Error
	if err != nil {
		return 0, err
	}
	if n == nil {
		return 0, nil
	}
	return *n, nil
}

func (r InputRepo) ListPending(ctx context.Context, worldID string, afterNumber int64, limit int) ([]ports.InputRecord, error) {
	var rows []model.Input
	query := getDBFromCtx(ctx, r.db).
		Where("world_id = ? AND number > ?", worldID, afterNumber).
		Order("number")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ports.InputRecord, 0, len(rows))
	for _, m := range rows {
		rec, err := toInputRecord(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r InputRepo) Complete(ctx context.Context, worldID string, number int64, rv ports.InputReturn) error {
	b, err := json.Marshal(rv)
	if err != nil {
		return fmt.Errorf("encode input return: %w", err)
	}
	res := getDBFromCtx(ctx, r.db).Model(&model.Input{}).
		Where("world_id = ? AND number = ?", worldID, number).
		Update("return_value", b)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (r InputRepo) GetByID(ctx context.Context, inputID string) (ports.InputRecord, error) {
	var m model.Input
	if err := getDBFromCtx(ctx, r.db).Where("id = ?", inputID).First(&m).Error; err != nil {
		return ports.InputRecord{}, translateError(err)
	}
	return toInputRecord(m)
}

func toInputRecord(m model.Input) (ports.InputRecord, error) {
	rec := ports.InputRecord{
		ID:           m.ID,
		WorldID:      m.WorldID,
		Number:       m.Number,
		Name:         m.Name,
		Args:         json.RawMessage(m.Args),
		ReceivedTime: m.ReceivedTime,
	}
	if len(m.ReturnValue) > 0 {
		var rv ports.InputReturn
		if err := json.Unmarshal(m.ReturnValue, &rv); err != nil {
			return ports.InputRecord{}, fmt.Errorf("decode return value of %s: %w", m.ID, err)
		}
		rec.ReturnValue = &rv
	}
	return rec, nil
}
