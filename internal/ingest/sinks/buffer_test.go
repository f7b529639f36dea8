package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webdiag-project/webdiag/internal/buffer"
	"github.com/webdiag-project/webdiag/internal/capture"
	"github.com/webdiag-project/webdiag/internal/correlate"
	"github.com/webdiag-project/webdiag/internal/ingest"
	"github.com/webdiag-project/webdiag/internal/kv/memory"
)

func newSink(t *testing.T) (*BufferSink, *buffer.Console, *buffer.Network) {
	t.Helper()
	store := memory.New()
	console := buffer.NewConsole(store, 100, nil)
	network := buffer.NewNetwork(store, 100, nil)
	correlator := correlate.New(network, nil)
	return NewBufferSink(console, network, correlator, 10240, nil), console, network
}

func strptr(s string) *string { return &s }

func TestBufferSinkAppliesLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sink, console, network := newSink(t)

	status := 200
	end := int64(1500)
	batch := []ingest.Event{
		{
			SessionKey: "s1",
			Kind:       ingest.KindConsole,
			TS:         time.Now(),
			Console: []capture.ConsoleEntry{
				{Timestamp: 1, Level: capture.LevelError, Message: "boom"},
			},
		},
		{
			SessionKey: "s1",
			Kind:       ingest.KindRequestStart,
			TS:         time.Now(),
			Record: &capture.NetworkRequest{
				ID: "r1", Method: "GET", URL: "https://example.com/api", StartTime: 1000,
			},
		},
		{
			SessionKey: "s1",
			Kind:       ingest.KindRequestUpdate,
			TS:         time.Now(),
			RequestID:  "r1",
			Patch:      &capture.NetworkPatch{StatusCode: &status, EndTime: &end},
		},
		{
			SessionKey: "s1",
			Kind:       ingest.KindBody,
			TS:         time.Now(),
			Body: &ingest.BodyEvent{
				URL:          "https://example.com/api",
				Method:       "GET",
				Timestamp:    1200,
				ResponseBody: strptr(`{"ok":true}`),
			},
		},
	}
	require.NoError(t, sink.Consume(ctx, batch))

	entries, err := console.Read(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "boom", entries[0].Message)

	records, err := network.Read(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 200, *records[0].StatusCode)
	require.Equal(t, int64(1500), *records[0].EndTime)
	require.NotNil(t, records[0].ResponseBody)
	require.Equal(t, `{"ok":true}`, *records[0].ResponseBody)
}

func TestBufferSinkRequestError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sink, _, network := newSink(t)

	errText := "net::ERR_CONNECTION_REFUSED"
	batch := []ingest.Event{
		{
			SessionKey: "s1",
			Kind:       ingest.KindRequestStart,
			TS:         time.Now(),
			Record:     &capture.NetworkRequest{ID: "r1", Method: "GET", URL: "https://example.com", StartTime: 1},
		},
		{
			SessionKey: "s1",
			Kind:       ingest.KindRequestError,
			TS:         time.Now(),
			RequestID:  "r1",
			Patch:      &capture.NetworkPatch{Error: &errText},
		},
	}
	require.NoError(t, sink.Consume(ctx, batch))

	records, err := network.Read(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, errText, *records[0].Error)
}

func TestBufferSinkBadEventDoesNotPoisonBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sink, console, _ := newSink(t)

	batch := []ingest.Event{
		{SessionKey: "s1", Kind: "BOGUS", TS: time.Now()},
		{
			SessionKey: "s1",
			Kind:       ingest.KindConsole,
			TS:         time.Now(),
			Console: []capture.ConsoleEntry{
				{Timestamp: 1, Level: capture.LevelLog, Message: "still applied"},
			},
		},
	}
	require.NoError(t, sink.Consume(ctx, batch))

	entries, err := console.Read(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
