package correlate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webdiag-project/webdiag/internal/buffer"
	"github.com/webdiag-project/webdiag/internal/capture"
	"github.com/webdiag-project/webdiag/internal/kv/memory"
)

const maxBodySize = 10240

func seedRecord(t *testing.T, network *buffer.Network, id, method, url string, start int64) {
	t.Helper()
	require.NoError(t, network.Upsert(context.Background(), "s1", capture.NetworkRequest{
		ID:        id,
		Method:    method,
		URL:       url,
		StartTime: start,
	}))
}

func strptr(s string) *string { return &s }

func TestCorrelateAttachesBodies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	network := buffer.NewNetwork(memory.New(), 10, nil)
	correlator := New(network, nil)

	seedRecord(t, network, "r1", "POST", "https://example.com/api", 1000)

	err := correlator.Correlate(ctx, "s1", "https://example.com/api", "POST", 1500,
		strptr(`{"q":1}`), strptr(`{"ok":true}`), maxBodySize)
	require.NoError(t, err)

	records, err := network.Read(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, records[0].RequestBody)
	require.Equal(t, `{"q":1}`, *records[0].RequestBody)
	require.NotNil(t, records[0].ResponseBody)
	require.Equal(t, `{"ok":true}`, *records[0].ResponseBody)
}

func TestCorrelateWindowBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		eventTime int64
		attached  bool
	}{
		{"inside window", 1000 + MatchWindowMillis - 1, true},
		{"at window", 1000 + MatchWindowMillis, false},
		{"outside window", 1000 + MatchWindowMillis + 1, false},
		{"before start inside window", 1000 - MatchWindowMillis + 1, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			network := buffer.NewNetwork(memory.New(), 10, nil)
			correlator := New(network, nil)
			seedRecord(t, network, "r1", "GET", "https://example.com/api", 1000)

			err := correlator.Correlate(ctx, "s1", "https://example.com/api", "GET", tt.eventTime,
				nil, strptr("body"), maxBodySize)
			require.NoError(t, err)

			records, err := network.Read(ctx, "s1")
			require.NoError(t, err)
			if tt.attached {
				require.NotNil(t, records[0].ResponseBody)
			} else {
				require.Nil(t, records[0].ResponseBody)
			}
		})
	}
}

func TestCorrelateRequiresExactURLAndMethod(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	network := buffer.NewNetwork(memory.New(), 10, nil)
	correlator := New(network, nil)
	seedRecord(t, network, "r1", "GET", "https://example.com/api", 1000)

	require.NoError(t, correlator.Correlate(ctx, "s1", "https://example.com/api", "POST", 1000,
		nil, strptr("body"), maxBodySize))
	require.NoError(t, correlator.Correlate(ctx, "s1", "https://example.com/api/other", "GET", 1000,
		nil, strptr("body"), maxBodySize))

	records, err := network.Read(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, records[0].ResponseBody)
}

func TestCorrelateFirstMatchWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	network := buffer.NewNetwork(memory.New(), 10, nil)
	correlator := New(network, nil)

	// Two concurrent requests to the same endpoint, both inside the window.
	seedRecord(t, network, "r1", "GET", "https://example.com/api", 1000)
	seedRecord(t, network, "r2", "GET", "https://example.com/api", 1200)

	require.NoError(t, correlator.Correlate(ctx, "s1", "https://example.com/api", "GET", 1300,
		nil, strptr("body"), maxBodySize))

	records, err := network.Read(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, records[0].ResponseBody)
	require.Nil(t, records[1].ResponseBody)
}

func TestCorrelateMissIsSilent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	network := buffer.NewNetwork(memory.New(), 10, nil)
	correlator := New(network, nil)

	require.NoError(t, correlator.Correlate(ctx, "s1", "https://example.com/api", "GET", 1000,
		nil, strptr("body"), maxBodySize))

	records, err := network.Read(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestCorrelateTruncatesBodies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	network := buffer.NewNetwork(memory.New(), 10, nil)
	correlator := New(network, nil)
	seedRecord(t, network, "r1", "POST", "https://example.com/api", 1000)

	long := strings.Repeat("x", maxBodySize+100)
	require.NoError(t, correlator.Correlate(ctx, "s1", "https://example.com/api", "POST", 1000,
		strptr(long), nil, maxBodySize))

	records, err := network.Read(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, records[0].RequestBody)
	require.True(t, strings.HasSuffix(*records[0].RequestBody, "... [truncated at 10240 bytes]"))
	require.Nil(t, records[0].ResponseBody)
}
