package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/ingest-gate/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BatchRepository is the durable per-batch state store. All mutations that
// carry exactly-once semantics are compare-and-set updates: callers learn
// from the bool result whether they won the transition.
type BatchRepository interface {
	GetOrCreate(ctx context.Context, batchDate string, expectedMembers []string) (*domain.Batch, error)
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	GetByDate(ctx context.Context, batchDate string) (*domain.Batch, error)
	InsertArrival(ctx context.Context, arrival *domain.Arrival) (bool, error)
	CountArrivals(ctx context.Context, batchID string) (int64, error)
	MarkTriggered(ctx context.Context, batchID string, at time.Time) (bool, error)
	ClaimJobHandle(ctx context.Context, batchID string, handle string) (bool, error)
	UpdateStatusFrom(ctx context.Context, batchID string, from, to domain.BatchStatus) (bool, error)
	ListUnresolved(ctx context.Context, limit int) ([]domain.Batch, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type GormBatchRepo struct {
	db *gorm.DB
}

func NewGormBatchRepo(db *gorm.DB) *GormBatchRepo {
	return &GormBatchRepo{db: db}
}

// GetOrCreate lazily creates the batch row for a previously-unseen batch
// date. Concurrent first arrivals race on the batch_date unique index; the
// loser's insert is a no-op and both read back the same row.
func (r *GormBatchRepo) GetOrCreate(ctx context.Context, batchDate string, expectedMembers []string) (*domain.Batch, error) {
	batch := &domain.Batch{
		ID:              uuid.NewString(),
		BatchDate:       batchDate,
		ExpectedMembers: expectedMembers,
		Status:          domain.BatchStatusPending,
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	model := batchModelFromDomain(batch)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "batch_date"}},
			DoNothing: true,
		}).
		Create(model).Error
	if err != nil {
		return nil, err
	}

	return r.GetByDate(ctx, batchDate)
}

func (r *GormBatchRepo) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	var model BatchModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.withArrivals(ctx, &model)
}

func (r *GormBatchRepo) GetByDate(ctx context.Context, batchDate string) (*domain.Batch, error) {
	var model BatchModel
	err := r.db.WithContext(ctx).First(&model, "batch_date = ?", batchDate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.withArrivals(ctx, &model)
}

// InsertArrival records a member arrival idempotently. Returns false when the
// (batch_id, member_key) pair already exists, i.e. a duplicate delivery.
func (r *GormBatchRepo) InsertArrival(ctx context.Context, arrival *domain.Arrival) (bool, error) {
	if arrival == nil {
		return false, domain.ErrValidation
	}
	if err := arrival.Validate(); err != nil {
		return false, err
	}
	if strings.TrimSpace(arrival.ID) == "" {
		arrival.ID = uuid.NewString()
	}

	model := arrivalModelFromDomain(arrival)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "batch_id"}, {Name: "member_key"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *GormBatchRepo) CountArrivals(ctx context.Context, batchID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ArrivalModel{}).
		Where("batch_id = ?", batchID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// MarkTriggered performs the PENDING -> TRIGGERED compare-and-set. Exactly
// one caller per batch observes true; everyone else observes false.
func (r *GormBatchRepo) MarkTriggered(ctx context.Context, batchID string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("id = ? AND status = ?", batchID, domain.BatchStatusPending).
		Updates(map[string]any{
			"status":       domain.BatchStatusTriggered,
			"triggered_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ClaimJobHandle records the launched job handle and moves the batch to
// JOB_RUNNING, but only if no handle was recorded yet. A false result means
// another launcher won; the caller should re-read and reuse the stored
// handle.
func (r *GormBatchRepo) ClaimJobHandle(ctx context.Context, batchID string, handle string) (bool, error) {
	if strings.TrimSpace(handle) == "" {
		return false, domain.ErrValidation
	}

	result := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("id = ? AND status = ? AND job_handle IS NULL", batchID, domain.BatchStatusTriggered).
		Updates(map[string]any{
			"status":     domain.BatchStatusJobRunning,
			"job_handle": handle,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateStatusFrom applies a forward transition as a compare-and-set.
func (r *GormBatchRepo) UpdateStatusFrom(ctx context.Context, batchID string, from, to domain.BatchStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, domain.ErrConflict
	}

	result := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("id = ? AND status = ?", batchID, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormBatchRepo) ListUnresolved(ctx context.Context, limit int) ([]domain.Batch, error) {
	var models []BatchModel
	err := r.db.WithContext(ctx).
		Where("status NOT IN ?", []domain.BatchStatus{domain.BatchStatusJobSucceeded, domain.BatchStatusJobFailed}).
		Order("batch_date ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	batches := make([]domain.Batch, 0, len(models))
	for i := range models {
		batch, err := r.withArrivals(ctx, &models[i])
		if err != nil {
			return nil, err
		}
		batches = append(batches, *batch)
	}
	return batches, nil
}

// DeleteTerminalBefore retires batches that reached a terminal status before
// the cutoff, together with their arrival rows.
func (r *GormBatchRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		err := tx.Model(&BatchModel{}).
			Where("status IN ? AND updated_at < ?",
				[]domain.BatchStatus{domain.BatchStatusJobSucceeded, domain.BatchStatusJobFailed},
				cutoff,
			).
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("batch_id IN ?", ids).Delete(&ArrivalModel{}).Error; err != nil {
			return err
		}

		result := tx.Where("id IN ?", ids).Delete(&BatchModel{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (r *GormBatchRepo) withArrivals(ctx context.Context, model *BatchModel) (*domain.Batch, error) {
	var arrived []string
	err := r.db.WithContext(ctx).
		Model(&ArrivalModel{}).
		Where("batch_id = ?", model.ID).
		Order("member_key ASC").
		Pluck("member_key", &arrived).Error
	if err != nil {
		return nil, err
	}
	return batchModelToDomain(model, arrived), nil
}
