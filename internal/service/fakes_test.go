package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/ingest-gate/internal/domain"
	"github.com/kursadbilgin/ingest-gate/internal/jobs"
	"github.com/kursadbilgin/ingest-gate/internal/queue"
)

// fakeBatchRepo is an in-memory BatchRepository with the same compare-and-set
// semantics as the database-backed one. The mutex makes each repository call
// atomic, mirroring single-statement UPDATE ... WHERE behavior.
type fakeBatchRepo struct {
	mu       sync.Mutex
	batches  map[string]*domain.Batch
	byDate   map[string]string
	arrivals map[string]map[string]domain.Arrival
	nextID   int

	failInsertArrival error
	failCount         error
	failMarkTriggered error
	failList          error
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{
		batches:  make(map[string]*domain.Batch),
		byDate:   make(map[string]string),
		arrivals: make(map[string]map[string]domain.Arrival),
	}
}

func (r *fakeBatchRepo) seed(batch *domain.Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := cloneBatch(batch)
	r.batches[clone.ID] = clone
	r.byDate[clone.BatchDate] = clone.ID
	if _, ok := r.arrivals[clone.ID]; !ok {
		r.arrivals[clone.ID] = make(map[string]domain.Arrival)
	}
}

func (r *fakeBatchRepo) GetOrCreate(_ context.Context, batchDate string, expectedMembers []string) (*domain.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byDate[batchDate]; ok {
		return r.snapshotLocked(id), nil
	}

	r.nextID++
	batch := &domain.Batch{
		ID:              fmt.Sprintf("batch-%d", r.nextID),
		BatchDate:       batchDate,
		ExpectedMembers: append([]string(nil), expectedMembers...),
		Status:          domain.BatchStatusPending,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	r.batches[batch.ID] = batch
	r.byDate[batchDate] = batch.ID
	r.arrivals[batch.ID] = make(map[string]domain.Arrival)
	return r.snapshotLocked(batch.ID), nil
}

func (r *fakeBatchRepo) GetByID(_ context.Context, id string) (*domain.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.batches[id]; !ok {
		return nil, domain.ErrNotFound
	}
	return r.snapshotLocked(id), nil
}

func (r *fakeBatchRepo) GetByDate(_ context.Context, batchDate string) (*domain.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byDate[batchDate]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.snapshotLocked(id), nil
}

func (r *fakeBatchRepo) InsertArrival(_ context.Context, arrival *domain.Arrival) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failInsertArrival != nil {
		return false, r.failInsertArrival
	}
	if err := arrival.Validate(); err != nil {
		return false, err
	}

	rows, ok := r.arrivals[arrival.BatchID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if _, dup := rows[arrival.MemberKey]; dup {
		return false, nil
	}
	rows[arrival.MemberKey] = *arrival
	return true, nil
}

func (r *fakeBatchRepo) CountArrivals(_ context.Context, batchID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCount != nil {
		return 0, r.failCount
	}
	return int64(len(r.arrivals[batchID])), nil
}

func (r *fakeBatchRepo) MarkTriggered(_ context.Context, batchID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failMarkTriggered != nil {
		return false, r.failMarkTriggered
	}
	batch, ok := r.batches[batchID]
	if !ok || batch.Status != domain.BatchStatusPending {
		return false, nil
	}
	batch.Status = domain.BatchStatusTriggered
	batch.TriggeredAt = &at
	batch.UpdatedAt = at
	return true, nil
}

func (r *fakeBatchRepo) ClaimJobHandle(_ context.Context, batchID string, handle string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch, ok := r.batches[batchID]
	if !ok || batch.Status != domain.BatchStatusTriggered || batch.JobHandle != nil {
		return false, nil
	}
	batch.JobHandle = &handle
	batch.Status = domain.BatchStatusJobRunning
	batch.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *fakeBatchRepo) UpdateStatusFrom(_ context.Context, batchID string, from, to domain.BatchStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, domain.ErrConflict
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	batch, ok := r.batches[batchID]
	if !ok || batch.Status != from {
		return false, nil
	}
	batch.Status = to
	batch.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *fakeBatchRepo) ListUnresolved(_ context.Context, limit int) ([]domain.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failList != nil {
		return nil, r.failList
	}
	var out []domain.Batch
	for id, batch := range r.batches {
		if batch.Status.IsTerminal() {
			continue
		}
		out = append(out, *r.snapshotLocked(id))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeBatchRepo) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, batch := range r.batches {
		if !batch.Status.IsTerminal() || !batch.UpdatedAt.Before(cutoff) {
			continue
		}
		delete(r.batches, id)
		delete(r.byDate, batch.BatchDate)
		delete(r.arrivals, id)
		deleted++
	}
	return deleted, nil
}

func (r *fakeBatchRepo) snapshotLocked(id string) *domain.Batch {
	batch := r.batches[id]
	clone := cloneBatch(batch)
	for member := range r.arrivals[id] {
		clone.Arrived = append(clone.Arrived, member)
	}
	return clone
}

func cloneBatch(batch *domain.Batch) *domain.Batch {
	clone := *batch
	clone.ExpectedMembers = append([]string(nil), batch.ExpectedMembers...)
	clone.Arrived = nil
	if batch.JobHandle != nil {
		handle := *batch.JobHandle
		clone.JobHandle = &handle
	}
	if batch.TriggeredAt != nil {
		at := *batch.TriggeredAt
		clone.TriggeredAt = &at
	}
	return &clone
}

type fakeJobClient struct {
	mu       sync.Mutex
	launches int
	handles  []string
	states   map[string]jobs.JobState

	launchErr error
	statusErr error
}

func newFakeJobClient() *fakeJobClient {
	return &fakeJobClient{states: make(map[string]jobs.JobState)}
}

func (c *fakeJobClient) Launch(_ context.Context, _ string, _ map[string]string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.launchErr != nil {
		return "", c.launchErr
	}
	c.launches++
	handle := fmt.Sprintf("job-%d", c.launches)
	c.handles = append(c.handles, handle)
	c.states[handle] = jobs.JobStateRunning
	return handle, nil
}

func (c *fakeJobClient) Status(_ context.Context, handle string) (jobs.JobState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statusErr != nil {
		return "", c.statusErr
	}
	state, ok := c.states[handle]
	if !ok {
		return "", fmt.Errorf("unknown job handle %q", handle)
	}
	return state, nil
}

func (c *fakeJobClient) setState(handle string, state jobs.JobState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[handle] = state
}

func (c *fakeJobClient) launchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.launches
}

type sentAlert struct {
	Severity domain.AlertSeverity
	Message  string
	Fields   map[string]string
}

type fakeAlertSink struct {
	mu     sync.Mutex
	alerts []sentAlert
	err    error
}

func (s *fakeAlertSink) Notify(_ context.Context, severity domain.AlertSeverity, message string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.alerts = append(s.alerts, sentAlert{Severity: severity, Message: message, Fields: fields})
	return nil
}

func (s *fakeAlertSink) sent() []sentAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentAlert(nil), s.alerts...)
}

// fakeDeduper replicates the redis SET NX behavior keyed by batch, kind, and
// day.
type fakeDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
	err  error
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: make(map[string]struct{})}
}

func (d *fakeDeduper) FirstToday(_ context.Context, batchID, kind string, now time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	key := fmt.Sprintf("%s:%s:%s", batchID, kind, now.UTC().Format(domain.BatchDateLayout))
	if _, ok := d.seen[key]; ok {
		return false, nil
	}
	d.seen[key] = struct{}{}
	return true, nil
}

type fakeArtifactStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
	putErr  error
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{objects: make(map[string][]byte)}
}

func (s *fakeArtifactStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *fakeArtifactStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: object %q", domain.ErrNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

func (s *fakeArtifactStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *fakeArtifactStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

type fakeRateLimiter struct {
	mu    sync.Mutex
	waits int
}

func (l *fakeRateLimiter) Allow(_ context.Context, _ string) (bool, error) { return true, nil }

func (l *fakeRateLimiter) Wait(_ context.Context, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waits++
	return nil
}

func (l *fakeRateLimiter) waitCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waits
}

// fakeConsumer delivers a fixed message sequence to the handler, then blocks
// until the context is cancelled, matching the broker consumer contract.
type fakeConsumer struct {
	messages []queue.ArrivalMessage

	mu          sync.Mutex
	handlerErrs []error
}

func (c *fakeConsumer) Consume(ctx context.Context, _ string, handler queue.MessageHandler) error {
	for _, msg := range c.messages {
		err := handler(ctx, msg)
		c.mu.Lock()
		c.handlerErrs = append(c.handlerErrs, err)
		c.mu.Unlock()
	}
	<-ctx.Done()
	return nil
}

func (c *fakeConsumer) Close() error { return nil }

func (c *fakeConsumer) errs() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.handlerErrs...)
}
