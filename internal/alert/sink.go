package alert

import (
	"context"

	"github.com/kursadbilgin/ingest-gate/internal/domain"
)

// Sink delivers deadline alerts to an external alerting channel. Callers are
// responsible for deduplication; a Sink just delivers.
type Sink interface {
	Notify(ctx context.Context, severity domain.AlertSeverity, message string, fields map[string]string) error
}
