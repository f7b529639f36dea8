package ingest

import "context"

// Sink consumes batches of telemetry events. Implementations must be safe
// for repeated calls, honor ctx deadlines, and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so
// browser listeners stay agnostic about buffering.
type Emitter interface {
	Emit(evt Event)
}
