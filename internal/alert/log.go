package alert

import (
	"context"

	"github.com/kursadbilgin/ingest-gate/internal/domain"
	"go.uber.org/zap"
)

var _ Sink = (*LogSink)(nil)

// LogSink writes alerts to the structured log. Used standalone in
// environments without an alerting webhook, or as a fallback.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, severity domain.AlertSeverity, message string, fields map[string]string) error {
	zapFields := make([]zap.Field, 0, len(fields)+1)
	zapFields = append(zapFields, zap.String("severity", severity.String()))
	for key, value := range fields {
		zapFields = append(zapFields, zap.String(key, value))
	}

	if severity == domain.SeverityCritical {
		s.logger.Error(message, zapFields...)
	} else {
		s.logger.Warn(message, zapFields...)
	}
	return nil
}
