package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/ingest-gate/internal/domain"
	"github.com/kursadbilgin/ingest-gate/internal/repository"
	"go.uber.org/zap"
)

// ArrivalResult reports what one recordArrival call observed.
type ArrivalResult struct {
	BatchID string

	// Duplicate is true when this member was already recorded for the
	// batch; the call was a no-op.
	Duplicate bool

	// JustCompleted is true for exactly one call per batch: the one that
	// won the PENDING -> TRIGGERED transition. The winner launches the
	// transform job.
	JustCompleted bool

	// AlreadyComplete is true when the batch had every expected member
	// before this call finished and some other call won the transition.
	AlreadyComplete bool
}

// BatchTracker is the batch-completeness detector. Arrivals may be delivered
// concurrently, out of order, and more than once; the tracker guarantees the
// completion signal fires exactly once per batch.
type BatchTracker struct {
	batches         repository.BatchRepository
	expectedMembers []string
	logger          *zap.Logger
	now             func() time.Time
}

func NewBatchTracker(batches repository.BatchRepository, expectedMembers []string, logger *zap.Logger) (*BatchTracker, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	normalized := domain.NormalizeMembers(expectedMembers)
	if len(normalized) == 0 {
		return nil, fmt.Errorf("expected member set is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchTracker{
		batches:         batches,
		expectedMembers: normalized,
		logger:          logger,
		now:             time.Now,
	}, nil
}

// RecordArrival idempotently records a member arrival and detects batch
// completeness. Completeness is a set test: the arrival insert collapses
// duplicates on the (batch, member) unique key, and arrivals are validated
// against the frozen expected set first, so the distinct-arrival count equals
// the expected count exactly when the sets are equal. The trigger decision is
// the MarkTriggered compare-and-set, so concurrent observers of completeness
// cannot both win.
func (t *BatchTracker) RecordArrival(ctx context.Context, batchDate, memberKey, artifactRef string) (ArrivalResult, error) {
	member := strings.ToLower(strings.TrimSpace(memberKey))

	batch, err := t.batches.GetOrCreate(ctx, batchDate, t.expectedMembers)
	if err != nil {
		return ArrivalResult{}, fmt.Errorf("failed to open batch %s: %w", batchDate, err)
	}

	if !batch.ExpectsMember(member) {
		return ArrivalResult{BatchID: batch.ID}, fmt.Errorf(
			"%w: member %q is not expected for batch %s", domain.ErrUnknownMember, memberKey, batchDate)
	}

	arrival := &domain.Arrival{
		BatchID:     batch.ID,
		MemberKey:   member,
		ArtifactRef: artifactRef,
		CreatedAt:   t.now().UTC(),
	}

	inserted, err := t.batches.InsertArrival(ctx, arrival)
	if err != nil {
		return ArrivalResult{BatchID: batch.ID}, fmt.Errorf("failed to record arrival: %w", err)
	}

	result := ArrivalResult{
		BatchID:   batch.ID,
		Duplicate: !inserted,
	}

	count, err := t.batches.CountArrivals(ctx, batch.ID)
	if err != nil {
		return result, fmt.Errorf("failed to count arrivals: %w", err)
	}
	if count < int64(len(batch.ExpectedMembers)) {
		return result, nil
	}

	won, err := t.batches.MarkTriggered(ctx, batch.ID, t.now().UTC())
	if err != nil {
		return result, fmt.Errorf("failed to mark batch triggered: %w", err)
	}

	result.JustCompleted = won
	result.AlreadyComplete = !won

	if won {
		t.logger.Info("batch complete, triggering transform",
			zap.String("batchId", batch.ID),
			zap.String("batchDate", batch.BatchDate),
			zap.Int("members", len(batch.ExpectedMembers)),
		)
	}

	return result, nil
}

// GetStatus returns a read-only snapshot of a batch by date. It never blocks
// the arrival path.
func (t *BatchTracker) GetStatus(ctx context.Context, batchDate string) (*domain.Batch, error) {
	batch, err := t.batches.GetByDate(ctx, batchDate)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load batch %s: %w", batchDate, err)
	}
	return batch, nil
}

// ExpectedMembers returns the configured expected set in normalized form.
func (t *BatchTracker) ExpectedMembers() []string {
	return append([]string(nil), t.expectedMembers...)
}
