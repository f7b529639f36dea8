package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/webdiag-project/webdiag/internal/ingest"
)

// LogSink emits structured logs for debugging telemetry streams. It is
// useful during development where a capture cannot easily be inspected.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []ingest.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("session", evt.SessionKey),
			zap.String("kind", string(evt.Kind)),
			zap.Time("ts", evt.TS),
		}
		switch evt.Kind {
		case ingest.KindConsole:
			fields = append(fields, zap.Int("entries", len(evt.Console)))
		case ingest.KindRequestStart:
			fields = append(fields,
				zap.String("method", evt.Record.Method),
				zap.String("url", evt.Record.URL),
			)
		case ingest.KindRequestUpdate, ingest.KindRequestError:
			fields = append(fields, zap.String("request_id", evt.RequestID))
		case ingest.KindBody:
			fields = append(fields,
				zap.String("method", evt.Body.Method),
				zap.String("url", evt.Body.URL),
			)
		}
		s.logger.Debug("telemetry event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
