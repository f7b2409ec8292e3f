package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/ingest-gate/internal/domain"
	"github.com/kursadbilgin/ingest-gate/internal/jobs"
	"github.com/kursadbilgin/ingest-gate/internal/observability"
	"github.com/kursadbilgin/ingest-gate/internal/repository"
	"go.uber.org/zap"
)

// TransformTrigger launches the downstream transform job for a completed
// batch. Start is idempotent: once a job handle is recorded, every further
// call returns that handle without launching anything.
type TransformTrigger struct {
	batches repository.BatchRepository
	jobs    jobs.Client
	jobName string
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewTransformTrigger(batches repository.BatchRepository, jobClient jobs.Client, jobName string, logger *zap.Logger) (*TransformTrigger, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if jobClient == nil {
		return nil, fmt.Errorf("job client is required")
	}
	if jobName == "" {
		return nil, fmt.Errorf("transform job name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TransformTrigger{
		batches: batches,
		jobs:    jobClient,
		jobName: jobName,
		logger:  logger,
	}, nil
}

func (t *TransformTrigger) SetMetrics(metrics *observability.Metrics) {
	if t == nil {
		return
	}
	t.metrics = metrics
}

// Start launches the transform job for batchID, or returns the handle of the
// already-launched job. Launch failure leaves the batch TRIGGERED and wraps
// ErrTriggerFailed; re-invoking Start later is safe.
func (t *TransformTrigger) Start(ctx context.Context, batchID string) (string, error) {
	batch, err := t.batches.GetByID(ctx, batchID)
	if err != nil {
		return "", fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}

	if batch.JobHandle != nil {
		return *batch.JobHandle, nil
	}

	if batch.Status == domain.BatchStatusPending {
		return "", fmt.Errorf("%w: batch %s is not complete yet", domain.ErrConflict, batchID)
	}
	if batch.Status != domain.BatchStatusTriggered {
		return "", fmt.Errorf("%w: batch %s has status %s without a job handle", domain.ErrConflict, batchID, batch.Status)
	}

	handle, err := t.jobs.Launch(ctx, t.jobName, map[string]string{
		"batchDate": batch.BatchDate,
	})
	if err != nil {
		if t.metrics != nil {
			t.metrics.IncTriggerFailure()
		}
		t.logger.Error("transform job launch failed",
			zap.String("batchId", batchID),
			zap.String("batchDate", batch.BatchDate),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %v", domain.ErrTriggerFailed, err)
	}

	claimed, err := t.batches.ClaimJobHandle(ctx, batchID, handle)
	if err != nil {
		return "", fmt.Errorf("failed to record job handle for batch %s: %w", batchID, err)
	}

	if !claimed {
		// A concurrent Start won the claim; its handle is authoritative.
		// The job service is expected to deduplicate by job name and
		// parameters, so the redundant launch is logged, not fatal.
		existing, err := t.batches.GetByID(ctx, batchID)
		if err != nil {
			return "", fmt.Errorf("failed to reload batch %s after lost claim: %w", batchID, err)
		}
		if existing.JobHandle == nil {
			return "", fmt.Errorf("%w: batch %s lost the handle claim but has no handle", domain.ErrConflict, batchID)
		}
		t.logger.Warn("redundant transform launch discarded",
			zap.String("batchId", batchID),
			zap.String("keptHandle", *existing.JobHandle),
			zap.String("discardedHandle", handle),
		)
		return *existing.JobHandle, nil
	}

	t.logger.Info("transform job launched",
		zap.String("batchId", batchID),
		zap.String("batchDate", batch.BatchDate),
		zap.String("jobHandle", handle),
	)

	return handle, nil
}
