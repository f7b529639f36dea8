package buffer

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webdiag-project/webdiag/internal/capture"
	"github.com/webdiag-project/webdiag/internal/kv/memory"
)

func requestAt(id string, start int64) capture.NetworkRequest {
	return capture.NetworkRequest{
		ID:        id,
		Method:    "GET",
		URL:       "https://example.com/api",
		Type:      "xhr",
		StartTime: start,
	}
}

func TestNetworkUpsertAppends(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	network := NewNetwork(memory.New(), 10, nil)

	require.NoError(t, network.Upsert(ctx, "s1", requestAt("r1", 1)))
	require.NoError(t, network.Upsert(ctx, "s1", requestAt("r2", 2)))

	records, err := network.Read(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "r1", records[0].ID)
	require.Equal(t, "r2", records[1].ID)
}

func TestNetworkUpsertReplacesInPlace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	network := NewNetwork(memory.New(), 10, nil)

	require.NoError(t, network.Upsert(ctx, "s1", requestAt("r1", 1)))
	require.NoError(t, network.Upsert(ctx, "s1", requestAt("r2", 2)))

	updated := requestAt("r1", 1)
	updated.URL = "https://example.com/other"
	require.NoError(t, network.Upsert(ctx, "s1", updated))

	records, err := network.Read(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "r1", records[0].ID)
	require.Equal(t, "https://example.com/other", records[0].URL)
}

func TestNetworkEvictsOldestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	network := NewNetwork(memory.New(), 3, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, network.Upsert(ctx, "s1", requestAt(fmt.Sprintf("r%d", i), int64(i))))
	}

	records, err := network.Read(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "r2", records[0].ID)
	require.Equal(t, "r4", records[2].ID)
}

func TestNetworkMutateAppliesPatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	network := NewNetwork(memory.New(), 10, nil)

	require.NoError(t, network.Upsert(ctx, "s1", requestAt("r1", 100)))

	status := 200
	end := int64(250)
	duration := int64(150)
	require.NoError(t, network.Mutate(ctx, "s1", "r1", capture.NetworkPatch{
		StatusCode: &status,
		EndTime:    &end,
		Duration:   &duration,
	}))

	records, err := network.Read(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, records[0].StatusCode)
	require.Equal(t, 200, *records[0].StatusCode)
	require.Equal(t, int64(250), *records[0].EndTime)
	require.Equal(t, int64(150), *records[0].Duration)
	// Untouched fields stay as they were.
	require.Nil(t, records[0].Error)
	require.Equal(t, int64(100), records[0].StartTime)
}

func TestNetworkMutateMissingIDIsNoOp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	network := NewNetwork(memory.New(), 10, nil)

	require.NoError(t, network.Upsert(ctx, "s1", requestAt("r1", 1)))

	status := 200
	require.NoError(t, network.Mutate(ctx, "s1", "missing", capture.NetworkPatch{StatusCode: &status}))

	records, err := network.Read(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Nil(t, records[0].StatusCode)
}

func TestNetworkClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	network := NewNetwork(memory.New(), 10, nil)

	require.NoError(t, network.Upsert(ctx, "s1", requestAt("r1", 1)))
	require.NoError(t, network.Clear(ctx, "s1"))

	records, err := network.Read(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, records)
}
