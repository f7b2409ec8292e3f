package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// BatchStatus represents the lifecycle state of a daily batch.
type BatchStatus string

const (
	BatchStatusPending      BatchStatus = "PENDING"
	BatchStatusTriggered    BatchStatus = "TRIGGERED"
	BatchStatusJobRunning   BatchStatus = "JOB_RUNNING"
	BatchStatusJobSucceeded BatchStatus = "JOB_SUCCEEDED"
	BatchStatusJobFailed    BatchStatus = "JOB_FAILED"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusPending, BatchStatusTriggered, BatchStatusJobRunning, BatchStatusJobSucceeded, BatchStatusJobFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusJobSucceeded || s == BatchStatusJobFailed
}

// CanTransitionTo reports whether the forward-only state machine allows
// moving from s to next. Status never regresses.
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	switch s {
	case BatchStatusPending:
		return next == BatchStatusTriggered
	case BatchStatusTriggered:
		return next == BatchStatusJobRunning
	case BatchStatusJobRunning:
		return next == BatchStatusJobSucceeded || next == BatchStatusJobFailed
	}
	return false
}

func ParseBatchStatusFromString(s string) (BatchStatus, error) {
	st := BatchStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid batch status %q", ErrValidation, s)
	}
	return st, nil
}

// BatchDateLayout is the canonical wire format for a batch date.
const BatchDateLayout = "2006-01-02"

// Batch is the core domain entity: one logical day of expected positional
// file arrivals, gating the downstream transform job.
type Batch struct {
	ID              string
	BatchDate       string
	ExpectedMembers []string
	Arrived         []string
	Status          BatchStatus
	JobHandle       *string
	TriggeredAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ExpectsMember reports whether memberKey belongs to the batch's frozen
// expected set.
func (b *Batch) ExpectsMember(memberKey string) bool {
	for _, m := range b.ExpectedMembers {
		if m == memberKey {
			return true
		}
	}
	return false
}

// IsComplete reports whether every expected member has arrived. Arrived is
// maintained as a subset of ExpectedMembers, so cardinality equality is set
// equality.
func (b *Batch) IsComplete() bool {
	return len(b.ExpectedMembers) > 0 && len(b.Arrived) == len(b.ExpectedMembers)
}

func (b *Batch) Validate() error {
	if _, err := time.Parse(BatchDateLayout, b.BatchDate); err != nil {
		return fmt.Errorf("%w: invalid batch date %q", ErrValidation, b.BatchDate)
	}
	if len(b.ExpectedMembers) == 0 {
		return fmt.Errorf("%w: expected member set is empty", ErrValidation)
	}
	if !b.Status.IsValid() {
		return fmt.Errorf("%w: invalid batch status %q", ErrValidation, b.Status)
	}
	seen := make(map[string]struct{}, len(b.ExpectedMembers))
	for _, m := range b.ExpectedMembers {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("%w: empty member key in expected set", ErrValidation)
		}
		if _, dup := seen[m]; dup {
			return fmt.Errorf("%w: duplicate member key %q in expected set", ErrValidation, m)
		}
		seen[m] = struct{}{}
	}
	return nil
}

// NormalizeMembers trims, lowercases, de-duplicates, and sorts a member key
// list. The expected set is frozen in this form when a batch is created.
func NormalizeMembers(members []string) []string {
	seen := make(map[string]struct{}, len(members))
	normalized := make([]string, 0, len(members))
	for _, m := range members {
		key := strings.ToLower(strings.TrimSpace(m))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		normalized = append(normalized, key)
	}
	sort.Strings(normalized)
	return normalized
}
