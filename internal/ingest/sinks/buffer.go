// Package sinks provides ingest.Sink implementations.
package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/webdiag-project/webdiag/internal/buffer"
	"github.com/webdiag-project/webdiag/internal/correlate"
	"github.com/webdiag-project/webdiag/internal/ingest"
)

// BufferSink applies telemetry batches to the session buffers, routing body
// events through the correlator. Events are applied in batch order so
// lifecycle updates land before the bodies that race them most of the time;
// when they do not, the correlator's miss path absorbs it.
type BufferSink struct {
	console     *buffer.Console
	network     *buffer.Network
	correlator  *correlate.Correlator
	maxBodySize int
	logger      *zap.Logger
}

// NewBufferSink wires the buffers and correlator into a sink.
func NewBufferSink(
	console *buffer.Console,
	network *buffer.Network,
	correlator *correlate.Correlator,
	maxBodySize int,
	logger *zap.Logger,
) *BufferSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BufferSink{
		console:     console,
		network:     network,
		correlator:  correlator,
		maxBodySize: maxBodySize,
		logger:      logger,
	}
}

// Consume applies each event in order. A failing event is logged and
// skipped; one bad event must not poison the rest of the batch.
func (s *BufferSink) Consume(ctx context.Context, batch []ingest.Event) error {
	for _, evt := range batch {
		if err := s.apply(ctx, evt); err != nil {
			s.logger.Warn("telemetry event apply failed",
				zap.String("session", evt.SessionKey),
				zap.String("kind", string(evt.Kind)),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Close implements the Sink interface; buffers need no teardown.
func (s *BufferSink) Close(context.Context) error {
	return nil
}

func (s *BufferSink) apply(ctx context.Context, evt ingest.Event) error {
	switch evt.Kind {
	case ingest.KindConsole:
		return s.console.Append(ctx, evt.SessionKey, evt.Console)
	case ingest.KindRequestStart:
		return s.network.Upsert(ctx, evt.SessionKey, *evt.Record)
	case ingest.KindRequestUpdate, ingest.KindRequestError:
		return s.network.Mutate(ctx, evt.SessionKey, evt.RequestID, *evt.Patch)
	case ingest.KindBody:
		return s.correlator.Correlate(
			ctx,
			evt.SessionKey,
			evt.Body.URL,
			evt.Body.Method,
			evt.Body.Timestamp,
			evt.Body.RequestBody,
			evt.Body.ResponseBody,
			s.maxBodySize,
		)
	default:
		return fmt.Errorf("unknown event kind %q", evt.Kind)
	}
}
