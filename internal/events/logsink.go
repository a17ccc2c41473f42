package events

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes every event to a zap logger. Terminal events log at info,
// everything else at debug so a verbose run does not flood production logs.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the event.
func (s *LogSink) Consume(_ context.Context, evt Event) error {
	fields := []zap.Field{
		zap.String("type", string(evt.Type)),
		zap.String("phase", string(evt.Phase)),
		zap.String("correlation_id", evt.CorrelationID),
		zap.String("priority", string(evt.Priority)),
	}
	if evt.Message != "" {
		fields = append(fields, zap.String("message", evt.Message))
	}
	if evt.Type.Terminal() {
		s.logger.Info("pipeline event", fields...)
		return nil
	}
	s.logger.Debug("pipeline event", fields...)
	return nil
}

// Close is a no-op; the logger outlives the bus.
func (s *LogSink) Close(_ context.Context) error { return nil }
