package gormrepo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"aitown/internal/adapter/repo/gorm/model"
	"aitown/internal/app/ports"
)

type EngineRepo struct {
	db *gorm.DB
}

func NewEngineRepo(db *gorm.DB) EngineRepo {
	return EngineRepo{db: db}
}

func (r EngineRepo) Get(ctx context.Context, worldID string) (ports.EngineRecord, error) {
	var m model.Engine
	if err := getDBFromCtx(ctx, r.db).Where("world_id = ?", worldID).First(&m).Error; err != nil {
		return ports.EngineRecord{}, translateError(err)
	}
	return toEngineRecord(m), nil
}

func (r EngineRepo) Create(ctx context.Context, rec ports.EngineRecord) error {
	m := toEngineModel(rec)
	return translateError(getDBFromCtx(ctx, r.db).Create(&m).Error)
}

func (r EngineRepo) SaveWithGeneration(ctx context.Context, rec ports.EngineRecord, expectedGeneration int64) error {
	updates := map[string]any{
		"current_ts":             rec.CurrentTime,
		"last_step_ts":           rec.LastStepTs,
		"processed_input_number": rec.ProcessedInputNumber,
		"generation_number":      rec.GenerationNumber,
		"status":                 string(rec.Status),
		"next_run":               rec.NextRun,
		"updated_at":             time.Now(),
	}
	res := getDBFromCtx(ctx, r.db).Model(&model.Engine{}).
		Where("world_id = ? AND generation_number = ?", rec.WorldID, expectedGeneration).
		Updates(updates)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, rec.WorldID); err != nil {
			return err
		}
		return ports.ErrConflict
	}
	return nil
}

func (r EngineRepo) ListRunning(ctx context.Context) ([]ports.EngineRecord, error) {
	var rows []model.Engine
	err := getDBFromCtx(ctx, r.db).
		Where("status = ?", string(ports.EngineRunning)).
		Order("world_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]ports.EngineRecord, 0, len(rows))
	for _, m := range rows {
		out = append(out, toEngineRecord(m))
	}
	return out, nil
}

func toEngineRecord(m model.Engine) ports.EngineRecord {
	return ports.EngineRecord{
		WorldID:              m.WorldID,
		CurrentTime:          m.CurrentTime,
		LastStepTs:           m.LastStepTs,
		ProcessedInputNumber: m.ProcessedInputNumber,
		GenerationNumber:     m.GenerationNumber,
		Status:               ports.EngineStatus(m.Status),
		NextRun:              m.NextRun,
	}
}

func toEngineModel(rec ports.EngineRecord) model.Engine {
	return model.Engine{
		WorldID:              rec.WorldID,
		CurrentTime:          rec.CurrentTime,
		LastStepTs:           rec.LastStepTs,
		ProcessedInputNumber: rec.ProcessedInputNumber,
		GenerationNumber:     rec.GenerationNumber,
		Status:               string(rec.Status),
		NextRun:              rec.NextRun,
		UpdatedAt:            time.Now(),
	}
}
