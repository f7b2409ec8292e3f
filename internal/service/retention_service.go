package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/ingest-gate/internal/repository"
	"go.uber.org/zap"
)

const defaultSweepInterval = 6 * time.Hour

// RetentionSweeper retires finished batches older than the retention window,
// keeping the batch and arrival tables bounded.
type RetentionSweeper struct {
	batches       repository.BatchRepository
	retentionDays int
	interval      time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

func NewRetentionSweeper(batches repository.BatchRepository, retentionDays int, logger *zap.Logger) (*RetentionSweeper, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetentionSweeper{
		batches:       batches,
		retentionDays: retentionDays,
		interval:      defaultSweepInterval,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (s *RetentionSweeper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("retention sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("retention sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep deletes terminal batches that last changed before the retention
// cutoff.
func (s *RetentionSweeper) Sweep(ctx context.Context) error {
	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays)

	deleted, err := s.batches.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete expired batches: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("retired expired batches",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return nil
}
