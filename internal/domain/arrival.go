package domain

import (
	"fmt"
	"strings"
	"time"
)

// Arrival records one member file landing for a batch. (batch_id, member_key)
// is unique: re-delivered arrivals collapse onto the first row.
type Arrival struct {
	ID          string
	BatchID     string
	MemberKey   string
	ArtifactRef string
	CreatedAt   time.Time
}

func (a *Arrival) Validate() error {
	if strings.TrimSpace(a.BatchID) == "" {
		return fmt.Errorf("%w: batch id is required", ErrValidation)
	}
	if strings.TrimSpace(a.MemberKey) == "" {
		return fmt.Errorf("%w: member key is required", ErrValidation)
	}
	if strings.TrimSpace(a.ArtifactRef) == "" {
		return fmt.Errorf("%w: artifact ref is required", ErrValidation)
	}
	return nil
}

// AlertSeverity grades deadline alerts.
type AlertSeverity string

const (
	// SeverityCritical is a confirmed deadline miss or job failure.
	SeverityCritical AlertSeverity = "CRITICAL"
	// SeverityWarning is an inconclusive condition, e.g. the job status
	// collaborator could not be reached at deadline time.
	SeverityWarning AlertSeverity = "WARNING"
)

func (s AlertSeverity) String() string { return string(s) }
