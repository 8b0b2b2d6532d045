package audit

import (
	"context"

	"go.uber.org/zap"
)

// LogSink пишет события в zap, когда база для журнала не настроена.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit-sink")}
}

func (s *LogSink) WriteBatch(ctx context.Context, events []Event) error {
	for _, e := range events {
		s.logger.Info("audit",
			zap.String("id", e.ID),
			zap.String("kind", string(e.Kind)),
			zap.String("approval_id", e.ApprovalID),
			zap.String("actor_id", e.ActorID),
			zap.String("subject_id", e.SubjectID),
			zap.String("decision", e.Decision),
			zap.String("trace_id", e.TraceID),
			zap.Time("timestamp", e.Timestamp),
			zap.String("error", e.Error),
		)
	}
	return nil
}
