package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/ingest-gate/internal/domain"
	"github.com/kursadbilgin/ingest-gate/internal/jobs"
	"go.uber.org/zap"
)

func newTestMonitor(t *testing.T, repo *fakeBatchRepo, client *fakeJobClient, sink *fakeAlertSink, deduper *fakeDeduper) *DeadlineMonitor {
	t.Helper()
	monitor, err := NewDeadlineMonitor(repo, client, sink, deduper, 12, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDeadlineMonitor() error = %v", err)
	}
	return monitor
}

func TestEvaluateDeadline(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		status      domain.BatchStatus
		jobState    jobs.JobState
		jobQueryErr error
		wantStatus  domain.BatchStatus
		wantKind    string
	}{
		{
			name:     "pending batch alerts incomplete",
			status:   domain.BatchStatusPending,
			wantKind: AlertKindIncomplete,
		},
		{
			name:     "triggered batch alerts incomplete",
			status:   domain.BatchStatusTriggered,
			wantKind: AlertKindIncomplete,
		},
		{
			name:       "running job that succeeded settles silently",
			status:     domain.BatchStatusJobRunning,
			jobState:   jobs.JobStateSucceeded,
			wantStatus: domain.BatchStatusJobSucceeded,
		},
		{
			name:       "running job that failed settles and alerts",
			status:     domain.BatchStatusJobRunning,
			jobState:   jobs.JobStateFailed,
			wantStatus: domain.BatchStatusJobFailed,
			wantKind:   AlertKindJobFailed,
		},
		{
			name:     "still running job alerts not finished",
			status:   domain.BatchStatusJobRunning,
			jobState: jobs.JobStateRunning,
			wantKind: AlertKindJobNotFinished,
		},
		{
			name:        "unreachable job service alerts as warning only",
			status:      domain.BatchStatusJobRunning,
			jobQueryErr: errors.New("dial timeout"),
			wantKind:    AlertKindJobQueryFailed,
		},
		{
			name:     "failed batch alerts job failed",
			status:   domain.BatchStatusJobFailed,
			wantKind: AlertKindJobFailed,
		},
		{
			name:   "succeeded batch is silent",
			status: domain.BatchStatusJobSucceeded,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			outcome := EvaluateDeadline(tc.status, tc.jobState, tc.jobQueryErr)
			if outcome.NewStatus != tc.wantStatus {
				t.Fatalf("NewStatus = %q, want %q", outcome.NewStatus, tc.wantStatus)
			}
			if outcome.AlertKind != tc.wantKind {
				t.Fatalf("AlertKind = %q, want %q", outcome.AlertKind, tc.wantKind)
			}
			if tc.wantKind == AlertKindJobQueryFailed && outcome.Severity != domain.SeverityWarning {
				t.Fatalf("severity = %s, want WARNING", outcome.Severity)
			}
			if tc.wantKind != "" && tc.wantKind != AlertKindJobQueryFailed && outcome.Severity != domain.SeverityCritical {
				t.Fatalf("severity = %s, want CRITICAL", outcome.Severity)
			}
		})
	}
}

func TestCheckBatch_IncompleteAlertsOncePerDay(t *testing.T) {
	t.Parallel()

	repo := newFakeBatchRepo()
	repo.seed(&domain.Batch{
		ID:              "batch-1",
		BatchDate:       "2026-08-24",
		ExpectedMembers: testMembers,
		Status:          domain.BatchStatusPending,
	})
	sink := &fakeAlertSink{}
	deduper := newFakeDeduper()
	monitor := newTestMonitor(t, repo, newFakeJobClient(), sink, deduper)
	ctx := context.Background()

	now := time.Date(2026, 8, 24, 12, 5, 0, 0, time.UTC)
	batch, _ := repo.GetByID(ctx, "batch-1")

	// Three consecutive ticks on the same day deliver one alert.
	for i := 0; i < 3; i++ {
		if err := monitor.CheckBatch(ctx, batch, now.Add(time.Duration(i)*5*time.Minute)); err != nil {
			t.Fatalf("CheckBatch() error = %v", err)
		}
	}
	if got := len(sink.sent()); got != 1 {
		t.Fatalf("alerts = %d, want 1", got)
	}

	alert := sink.sent()[0]
	if alert.Severity != domain.SeverityCritical {
		t.Fatalf("severity = %s, want CRITICAL", alert.Severity)
	}
	if alert.Fields["batchDate"] != "2026-08-24" {
		t.Fatalf("batchDate field = %q, want 2026-08-24", alert.Fields["batchDate"])
	}

	// The next day the suppression window has rolled over.
	if err := monitor.CheckBatch(ctx, batch, now.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("CheckBatch() next day error = %v", err)
	}
	if got := len(sink.sent()); got != 2 {
		t.Fatalf("alerts after day rollover = %d, want 2", got)
	}
}

func TestCheckBatch_SucceededJobSettlesWithoutAlert(t *testing.T) {
	t.Parallel()

	handle := "job-1"
	repo := newFakeBatchRepo()
	repo.seed(&domain.Batch{
		ID:              "batch-1",
		BatchDate:       "2026-08-24",
		ExpectedMembers: testMembers,
		Status:          domain.BatchStatusJobRunning,
		JobHandle:       &handle,
	})
	client := newFakeJobClient()
	client.setState(handle, jobs.JobStateSucceeded)
	sink := &fakeAlertSink{}
	monitor := newTestMonitor(t, repo, client, sink, newFakeDeduper())
	ctx := context.Background()

	batch, _ := repo.GetByID(ctx, "batch-1")
	if err := monitor.CheckBatch(ctx, batch, time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("CheckBatch() error = %v", err)
	}

	updated, _ := repo.GetByID(ctx, "batch-1")
	if updated.Status != domain.BatchStatusJobSucceeded {
		t.Fatalf("status = %s, want JOB_SUCCEEDED", updated.Status)
	}
	if len(sink.sent()) != 0 {
		t.Fatalf("alerts = %d, want 0", len(sink.sent()))
	}
}

func TestCheckBatch_FailedJobSettlesAndAlerts(t *testing.T) {
	t.Parallel()

	handle := "job-1"
	repo := newFakeBatchRepo()
	repo.seed(&domain.Batch{
		ID:              "batch-1",
		BatchDate:       "2026-08-24",
		ExpectedMembers: testMembers,
		Status:          domain.BatchStatusJobRunning,
		JobHandle:       &handle,
	})
	client := newFakeJobClient()
	client.setState(handle, jobs.JobStateFailed)
	sink := &fakeAlertSink{}
	monitor := newTestMonitor(t, repo, client, sink, newFakeDeduper())
	ctx := context.Background()

	batch, _ := repo.GetByID(ctx, "batch-1")
	if err := monitor.CheckBatch(ctx, batch, time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("CheckBatch() error = %v", err)
	}

	updated, _ := repo.GetByID(ctx, "batch-1")
	if updated.Status != domain.BatchStatusJobFailed {
		t.Fatalf("status = %s, want JOB_FAILED", updated.Status)
	}

	alerts := sink.sent()
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Severity != domain.SeverityCritical {
		t.Fatalf("severity = %s, want CRITICAL", alerts[0].Severity)
	}
	if alerts[0].Fields["jobHandle"] != handle {
		t.Fatalf("jobHandle field = %q, want %q", alerts[0].Fields["jobHandle"], handle)
	}
}

func TestCheckBatch_JobQueryFailureIsInconclusive(t *testing.T) {
	t.Parallel()

	handle := "job-1"
	repo := newFakeBatchRepo()
	repo.seed(&domain.Batch{
		ID:              "batch-1",
		BatchDate:       "2026-08-24",
		ExpectedMembers: testMembers,
		Status:          domain.BatchStatusJobRunning,
		JobHandle:       &handle,
	})
	client := newFakeJobClient()
	client.statusErr = errors.New("dial timeout")
	sink := &fakeAlertSink{}
	monitor := newTestMonitor(t, repo, client, sink, newFakeDeduper())
	ctx := context.Background()

	batch, _ := repo.GetByID(ctx, "batch-1")
	if err := monitor.CheckBatch(ctx, batch, time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("CheckBatch() error = %v", err)
	}

	updated, _ := repo.GetByID(ctx, "batch-1")
	if updated.Status != domain.BatchStatusJobRunning {
		t.Fatalf("status = %s, want unchanged JOB_RUNNING", updated.Status)
	}

	alerts := sink.sent()
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Severity != domain.SeverityWarning {
		t.Fatalf("severity = %s, want WARNING", alerts[0].Severity)
	}

	// Once the job service recovers, the next tick settles the batch.
	client.statusErr = nil
	client.setState(handle, jobs.JobStateSucceeded)
	batch, _ = repo.GetByID(ctx, "batch-1")
	if err := monitor.CheckBatch(ctx, batch, time.Date(2026, 8, 24, 12, 10, 0, 0, time.UTC)); err != nil {
		t.Fatalf("CheckBatch() after recovery error = %v", err)
	}
	updated, _ = repo.GetByID(ctx, "batch-1")
	if updated.Status != domain.BatchStatusJobSucceeded {
		t.Fatalf("status = %s, want JOB_SUCCEEDED", updated.Status)
	}
}

func TestScan_OnlyChecksBatchesPastDeadline(t *testing.T) {
	t.Parallel()

	repo := newFakeBatchRepo()
	repo.seed(&domain.Batch{
		ID:              "batch-late",
		BatchDate:       "2026-08-23",
		ExpectedMembers: testMembers,
		Status:          domain.BatchStatusPending,
	})
	repo.seed(&domain.Batch{
		ID:              "batch-open",
		BatchDate:       "2026-08-24",
		ExpectedMembers: testMembers,
		Status:          domain.BatchStatusPending,
	})
	sink := &fakeAlertSink{}
	monitor := newTestMonitor(t, repo, newFakeJobClient(), sink, newFakeDeduper())

	// 10:00 on the 24th: the 23rd is past its noon deadline, the 24th is
	// still inside its window.
	monitor.now = func() time.Time {
		return time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	}

	if err := monitor.scan(context.Background()); err != nil {
		t.Fatalf("scan() error = %v", err)
	}

	alerts := sink.sent()
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Fields["batchId"] != "batch-late" {
		t.Fatalf("alerted batch = %q, want batch-late", alerts[0].Fields["batchId"])
	}
}

func TestCheckBatch_SinkFailureSurfaces(t *testing.T) {
	t.Parallel()

	repo := newFakeBatchRepo()
	repo.seed(&domain.Batch{
		ID:              "batch-1",
		BatchDate:       "2026-08-24",
		ExpectedMembers: testMembers,
		Status:          domain.BatchStatusPending,
	})
	sink := &fakeAlertSink{err: errors.New("webhook 503")}
	deduper := newFakeDeduper()
	monitor := newTestMonitor(t, repo, newFakeJobClient(), sink, deduper)
	ctx := context.Background()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	batch, _ := repo.GetByID(ctx, "batch-1")
	if err := monitor.CheckBatch(ctx, batch, now); err == nil {
		t.Fatal("expected error when sink delivery fails")
	}
}
