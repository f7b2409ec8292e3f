package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/ingest-gate/internal/convert"
	"github.com/kursadbilgin/ingest-gate/internal/domain"
	"github.com/kursadbilgin/ingest-gate/internal/observability"
	"github.com/kursadbilgin/ingest-gate/internal/queue"
	"github.com/kursadbilgin/ingest-gate/internal/ratelimit"
	"github.com/kursadbilgin/ingest-gate/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const storeWriteResource = "store-writes"

// IngestWorker drains the arrivals queue: each message is fetched from the
// raw namespace, converted to the curated columnar form, recorded against its
// batch, and, when the arrival completes the batch, handed to the transform
// trigger. Returning an error from the handler redelivers the message, so
// only infrastructure failures propagate; input defects are logged and
// acknowledged.
type IngestWorker struct {
	consumer    queue.Consumer
	artifacts   store.ArtifactStore
	converter   *convert.Converter
	tracker     *BatchTracker
	trigger     *TransformTrigger
	limiter     ratelimit.RateLimiter
	concurrency int
	logger      *zap.Logger
	metrics     *observability.Metrics
}

func NewIngestWorker(
	consumer queue.Consumer,
	artifacts store.ArtifactStore,
	converter *convert.Converter,
	tracker *BatchTracker,
	trigger *TransformTrigger,
	limiter ratelimit.RateLimiter,
	concurrency int,
	logger *zap.Logger,
) (*IngestWorker, error) {
	if consumer == nil {
		return nil, fmt.Errorf("queue consumer is required")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if converter == nil {
		return nil, fmt.Errorf("converter is required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("batch tracker is required")
	}
	if trigger == nil {
		return nil, fmt.Errorf("transform trigger is required")
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IngestWorker{
		consumer:    consumer,
		artifacts:   artifacts,
		converter:   converter,
		tracker:     tracker,
		trigger:     trigger,
		limiter:     limiter,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

func (w *IngestWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start runs the consumer pool until ctx is cancelled or a consumer fails
// irrecoverably.
func (w *IngestWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		group.Go(func() error {
			return w.consumer.Consume(groupCtx, queue.ArrivalsQueue, w.processMessage)
		})
	}

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("ingest worker stopped: %w", err)
	}
	return nil
}

func (w *IngestWorker) processMessage(ctx context.Context, msg queue.ArrivalMessage) error {
	if w.metrics != nil {
		w.metrics.IncIngestInFlight()
		defer w.metrics.DecIngestInFlight()
	}

	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}

	// Normalize once at ingress; conversion and tracking must agree on the
	// member key regardless of how the producer cased it.
	member := strings.ToLower(strings.TrimSpace(msg.MemberKey))
	logger := observability.WithContextLogger(w.logger, ctx).With(
		zap.String("batchDate", msg.BatchDate),
		zap.String("memberKey", member),
	)

	raw, err := w.artifacts.Get(ctx, msg.ArtifactRef)
	if err != nil {
		return fmt.Errorf("failed to fetch raw artifact %s: %w", msg.ArtifactRef, err)
	}

	start := time.Now()
	curated, stats, err := w.converter.Convert(member, raw)
	if err != nil {
		// No schema or structurally broken input will never succeed on
		// redelivery; drop it and leave the batch incomplete for the
		// deadline check to flag.
		logger.Error("conversion failed, dropping arrival", zap.Error(err))
		return nil
	}
	if w.metrics != nil {
		w.metrics.ObserveConvertDuration(member, time.Since(start))
		if stats.Rejected > 0 {
			w.metrics.AddRejectedRecords(member, stats.Rejected)
		}
	}
	if stats.Rejected > 0 {
		logger.Warn("conversion rejected malformed records",
			zap.Int("records", stats.Records),
			zap.Int("rejected", stats.Rejected),
		)
	}

	curatedKey, err := store.CuratedKey(msg.ArtifactRef)
	if err != nil {
		logger.Error("artifact ref outside the raw namespace, dropping arrival", zap.Error(err))
		return nil
	}

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx, storeWriteResource); err != nil {
			return fmt.Errorf("store write rate limit wait: %w", err)
		}
	}
	if err := w.artifacts.Put(ctx, curatedKey, curated); err != nil {
		return fmt.Errorf("failed to store curated artifact %s: %w", curatedKey, err)
	}

	result, err := w.tracker.RecordArrival(ctx, msg.BatchDate, member, msg.ArtifactRef)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownMember) {
			if w.metrics != nil {
				w.metrics.IncUnknownMember(member)
			}
			logger.Warn("arrival for unexpected member discarded", zap.Error(err))
			return nil
		}
		return fmt.Errorf("failed to record arrival: %w", err)
	}

	if w.metrics != nil {
		if result.Duplicate {
			w.metrics.IncDuplicateArrival(member)
		} else {
			w.metrics.IncArrival(member)
		}
	}
	if result.Duplicate {
		logger.Info("duplicate arrival absorbed", zap.String("batchId", result.BatchID))
	}

	if !result.JustCompleted {
		return nil
	}

	if w.metrics != nil {
		w.metrics.IncBatchCompleted()
	}

	handle, err := w.trigger.Start(ctx, result.BatchID)
	if err != nil {
		// The batch stays TRIGGERED; the retry endpoint or the deadline
		// check picks it up. The arrival itself is done, so ack.
		logger.Error("transform trigger failed after completion",
			zap.String("batchId", result.BatchID),
			zap.Error(err),
		)
		return nil
	}

	logger.Info("batch complete, transform started",
		zap.String("batchId", result.BatchID),
		zap.String("jobHandle", handle),
	)
	return nil
}
