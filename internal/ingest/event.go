// Package ingest defines the telemetry event stream feeding the session
// buffers. Events arrive from browser event handlers that must never block,
// so the hub buffers and batches them before handing them to sinks.
package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/webdiag-project/webdiag/internal/capture"
)

// Kind denotes the type of telemetry carried by an Event.
type Kind string

// Supported event kinds. Lifecycle events carry the request ID; body events
// deliberately do not, they are correlated heuristically downstream.
const (
	KindConsole       Kind = "CONSOLE"
	KindRequestStart  Kind = "REQUEST_START"
	KindRequestUpdate Kind = "REQUEST_UPDATE"
	KindRequestError  Kind = "REQUEST_ERROR"
	KindBody          Kind = "BODY"
)

// BodyEvent carries captured request/response bodies. It originates in the
// page execution context and has no access to the lifecycle request ID.
type BodyEvent struct {
	URL          string
	Method       string
	Timestamp    int64
	RequestBody  *string
	ResponseBody *string
}

// Event is one unit of session telemetry. Inputs are at-least-once,
// possibly reordered, possibly duplicated; sinks must tolerate all three.
type Event struct {
	// SessionKey scopes the event to one browsing context.
	SessionKey string
	// Kind selects which payload field is set.
	Kind Kind
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Console carries a batch of console entries for KindConsole.
	Console []capture.ConsoleEntry
	// Record is the new record for KindRequestStart.
	Record *capture.NetworkRequest
	// RequestID addresses the record for update/error events.
	RequestID string
	// Patch is the partial update for update/error events.
	Patch *capture.NetworkPatch
	// Body is the payload for KindBody.
	Body *BodyEvent
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.SessionKey == "" {
		return errors.New("session key is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindConsole:
		if len(e.Console) == 0 {
			return errors.New("console event requires entries")
		}
	case KindRequestStart:
		if e.Record == nil {
			return errors.New("request start requires a record")
		}
	case KindRequestUpdate, KindRequestError:
		if e.RequestID == "" {
			return errors.New("request update requires an id")
		}
		if e.Patch == nil {
			return errors.New("request update requires a patch")
		}
	case KindBody:
		if e.Body == nil {
			return errors.New("body event requires a payload")
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}
