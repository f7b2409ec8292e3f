package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/ingest-gate/internal/domain"
)

// ArrivalMessage is the broker payload for one member file landing. Delivery
// is at-least-once with no ordering guarantee across members.
type ArrivalMessage struct {
	BatchDate     string `json:"batchDate"`
	MemberKey     string `json:"memberKey"`
	ArtifactRef   string `json:"artifactRef"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func (m ArrivalMessage) Validate() error {
	if _, err := time.Parse(domain.BatchDateLayout, m.BatchDate); err != nil {
		return fmt.Errorf("invalid batchDate %q", m.BatchDate)
	}
	if strings.TrimSpace(m.MemberKey) == "" {
		return fmt.Errorf("memberKey is required")
	}
	if strings.TrimSpace(m.ArtifactRef) == "" {
		return fmt.Errorf("artifactRef is required")
	}
	return nil
}
