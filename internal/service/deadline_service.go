package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/ingest-gate/internal/alert"
	"github.com/kursadbilgin/ingest-gate/internal/domain"
	"github.com/kursadbilgin/ingest-gate/internal/jobs"
	"github.com/kursadbilgin/ingest-gate/internal/observability"
	"github.com/kursadbilgin/ingest-gate/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultDeadlineScanInterval = 5 * time.Minute
	defaultDeadlineScanLimit    = 100
)

// Alert kinds emitted by the deadline check. Each kind is deduplicated
// independently per batch per day.
const (
	AlertKindIncomplete     = "incomplete"
	AlertKindJobNotFinished = "job_not_finished"
	AlertKindJobFailed      = "job_failed"
	AlertKindJobQueryFailed = "job_query_failed"
)

// AlertDeduper suppresses repeated alerts for the same batch, kind, and day.
type AlertDeduper interface {
	FirstToday(ctx context.Context, batchID, kind string, now time.Time) (bool, error)
}

// CheckOutcome is the result of evaluating one batch against the deadline.
type CheckOutcome struct {
	// NewStatus is the forward transition to apply, or "" when unchanged.
	NewStatus domain.BatchStatus
	// AlertKind is "" when no alert is due.
	AlertKind string
	Severity  domain.AlertSeverity
	Message   string
}

// EvaluateDeadline is the pure deadline decision: given the batch status and,
// for running jobs, the job query result, it yields the transition and alert
// to apply. jobState is ignored unless status is JOB_RUNNING.
func EvaluateDeadline(status domain.BatchStatus, jobState jobs.JobState, jobQueryErr error) CheckOutcome {
	switch status {
	case domain.BatchStatusPending, domain.BatchStatusTriggered:
		return CheckOutcome{
			AlertKind: AlertKindIncomplete,
			Severity:  domain.SeverityCritical,
			Message:   "batch incomplete or transform job never started by deadline",
		}
	case domain.BatchStatusJobRunning:
		if jobQueryErr != nil {
			// Inconclusive: do not transition, alert at a distinct
			// severity, and let the next scheduled tick retry.
			return CheckOutcome{
				AlertKind: AlertKindJobQueryFailed,
				Severity:  domain.SeverityWarning,
				Message:   "job status could not be determined at deadline",
			}
		}
		switch jobState {
		case jobs.JobStateSucceeded:
			return CheckOutcome{NewStatus: domain.BatchStatusJobSucceeded}
		case jobs.JobStateFailed:
			return CheckOutcome{
				NewStatus: domain.BatchStatusJobFailed,
				AlertKind: AlertKindJobFailed,
				Severity:  domain.SeverityCritical,
				Message:   "transform job failed before deadline",
			}
		default:
			return CheckOutcome{
				AlertKind: AlertKindJobNotFinished,
				Severity:  domain.SeverityCritical,
				Message:   "transform job did not finish successfully by deadline",
			}
		}
	case domain.BatchStatusJobFailed:
		return CheckOutcome{
			AlertKind: AlertKindJobFailed,
			Severity:  domain.SeverityCritical,
			Message:   "transform job failed",
		}
	}

	// JOB_SUCCEEDED: nothing to do.
	return CheckOutcome{}
}

// DeadlineMonitor runs the scheduled noon check: every open batch past its
// deadline is evaluated, transitioned, and alerted on, with per-batch-per-day
// alert dedup so repeated ticks never storm the alert channel.
type DeadlineMonitor struct {
	batches      repository.BatchRepository
	jobs         jobs.Client
	sink         alert.Sink
	deduper      AlertDeduper
	deadlineHour int
	interval     time.Duration
	limit        int
	logger       *zap.Logger
	metrics      *observability.Metrics
	now          func() time.Time
}

func NewDeadlineMonitor(
	batches repository.BatchRepository,
	jobClient jobs.Client,
	sink alert.Sink,
	deduper AlertDeduper,
	deadlineHour int,
	interval time.Duration,
	logger *zap.Logger,
) (*DeadlineMonitor, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if jobClient == nil {
		return nil, fmt.Errorf("job client is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("alert sink is required")
	}
	if deduper == nil {
		return nil, fmt.Errorf("alert deduper is required")
	}
	if deadlineHour < 0 || deadlineHour > 23 {
		return nil, fmt.Errorf("deadline hour %d is out of range", deadlineHour)
	}
	if interval <= 0 {
		interval = defaultDeadlineScanInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeadlineMonitor{
		batches:      batches,
		jobs:         jobClient,
		sink:         sink,
		deduper:      deduper,
		deadlineHour: deadlineHour,
		interval:     interval,
		limit:        defaultDeadlineScanLimit,
		logger:       logger,
		now:          time.Now,
	}, nil
}

func (m *DeadlineMonitor) SetMetrics(metrics *observability.Metrics) {
	if m == nil {
		return
	}
	m.metrics = metrics
}

func (m *DeadlineMonitor) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := m.scan(ctx); err != nil && ctx.Err() == nil {
		m.logger.Error("deadline monitor initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.scan(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				m.logger.Error("deadline monitor scan failed", zap.Error(err))
			}
		}
	}
}

func (m *DeadlineMonitor) scan(ctx context.Context) error {
	batches, err := m.batches.ListUnresolved(ctx, m.limit)
	if err != nil {
		return fmt.Errorf("failed to list open batches: %w", err)
	}

	now := m.now().UTC()
	for i := range batches {
		batch := batches[i]
		deadline, err := m.deadlineFor(batch.BatchDate)
		if err != nil {
			m.logger.Error("skipping batch with unparseable date",
				zap.String("batchId", batch.ID),
				zap.String("batchDate", batch.BatchDate),
				zap.Error(err),
			)
			continue
		}
		if now.Before(deadline) {
			continue
		}

		if err := m.CheckBatch(ctx, &batch, now); err != nil {
			m.logger.Error("deadline check failed",
				zap.String("batchId", batch.ID),
				zap.String("batchDate", batch.BatchDate),
				zap.Error(err),
			)
		}
	}

	return nil
}

// CheckBatch evaluates one batch against the deadline, applies the status
// transition, and emits the deduplicated alert. Failures are scoped to this
// batch.
func (m *DeadlineMonitor) CheckBatch(ctx context.Context, batch *domain.Batch, now time.Time) error {
	var jobState jobs.JobState
	var jobQueryErr error

	if batch.Status == domain.BatchStatusJobRunning {
		if batch.JobHandle == nil {
			jobQueryErr = fmt.Errorf("batch %s is JOB_RUNNING without a job handle", batch.ID)
		} else {
			jobState, jobQueryErr = m.jobs.Status(ctx, *batch.JobHandle)
		}
		if jobQueryErr != nil {
			m.logger.Warn("job status query failed at deadline",
				zap.String("batchId", batch.ID),
				zap.Error(jobQueryErr),
			)
		}
	}

	outcome := EvaluateDeadline(batch.Status, jobState, jobQueryErr)

	if outcome.NewStatus != "" {
		applied, err := m.batches.UpdateStatusFrom(ctx, batch.ID, batch.Status, outcome.NewStatus)
		if err != nil {
			return fmt.Errorf("failed to transition batch %s to %s: %w", batch.ID, outcome.NewStatus, err)
		}
		if !applied {
			// Another replica applied the transition first; its alert
			// handling covers this batch.
			return nil
		}
	}

	if outcome.AlertKind == "" {
		return nil
	}

	first, err := m.deduper.FirstToday(ctx, batch.ID, outcome.AlertKind, now)
	if err != nil {
		return fmt.Errorf("failed to deduplicate alert for batch %s: %w", batch.ID, err)
	}
	if !first {
		return nil
	}

	fields := map[string]string{
		"batchId":   batch.ID,
		"batchDate": batch.BatchDate,
		"status":    batch.Status.String(),
	}
	if batch.JobHandle != nil {
		fields["jobHandle"] = *batch.JobHandle
	}

	if err := m.sink.Notify(ctx, outcome.Severity, outcome.Message, fields); err != nil {
		return fmt.Errorf("failed to deliver alert for batch %s: %w", batch.ID, err)
	}
	if m.metrics != nil {
		m.metrics.IncAlertEmitted(outcome.AlertKind)
	}

	m.logger.Info("deadline alert emitted",
		zap.String("batchId", batch.ID),
		zap.String("kind", outcome.AlertKind),
		zap.String("severity", outcome.Severity.String()),
	)

	return nil
}

func (m *DeadlineMonitor) deadlineFor(batchDate string) (time.Time, error) {
	day, err := time.Parse(domain.BatchDateLayout, batchDate)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), m.deadlineHour, 0, 0, 0, time.UTC), nil
}
