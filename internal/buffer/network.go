package buffer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/webdiag-project/webdiag/internal/capture"
	"github.com/webdiag-project/webdiag/internal/kv"
)

func networkKey(sessionKey string) string {
	return "networkBuffer:" + sessionKey
}

// Network is the bounded per-session store of network request records.
// Lifecycle events address records by ID; body correlation does not, and
// goes through the correlator instead.
type Network struct {
	store    kv.Store
	capacity int
	logger   *zap.Logger
}

// NewNetwork creates a network buffer with the given capacity.
func NewNetwork(store kv.Store, capacity int, logger *zap.Logger) *Network {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Network{store: store, capacity: capacity, logger: logger}
}

// Upsert replaces the record with matching ID in place, preserving its
// position, or appends when absent, then applies the eviction rule.
func (n *Network) Upsert(ctx context.Context, sessionKey string, record capture.NetworkRequest) error {
	records, err := loadSlice[capture.NetworkRequest](ctx, n.store, networkKey(sessionKey))
	if err != nil {
		return fmt.Errorf("load network buffer: %w", err)
	}
	replaced := false
	for i := range records {
		if records[i].ID == record.ID {
			records[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, record)
	}
	records = evict(records, n.capacity, "network")
	if err := saveSlice(ctx, n.store, networkKey(sessionKey), records); err != nil {
		return fmt.Errorf("save network buffer: %w", err)
	}
	return nil
}

// Mutate applies a partial update to the record with matching ID. A missing
// ID is a no-op, not an error: late and duplicate lifecycle events are the
// normal case and must not break capture.
func (n *Network) Mutate(ctx context.Context, sessionKey string, id string, patch capture.NetworkPatch) error {
	records, err := loadSlice[capture.NetworkRequest](ctx, n.store, networkKey(sessionKey))
	if err != nil {
		return fmt.Errorf("load network buffer: %w", err)
	}
	for i := range records {
		if records[i].ID != id {
			continue
		}
		patch.Apply(&records[i])
		if err := saveSlice(ctx, n.store, networkKey(sessionKey), records); err != nil {
			return fmt.Errorf("save network buffer: %w", err)
		}
		return nil
	}
	n.logger.Debug("mutate on missing network record",
		zap.String("session", sessionKey),
		zap.String("request_id", id),
	)
	return nil
}

// Read returns the current contents without mutating the buffer.
func (n *Network) Read(ctx context.Context, sessionKey string) ([]capture.NetworkRequest, error) {
	records, err := loadSlice[capture.NetworkRequest](ctx, n.store, networkKey(sessionKey))
	if err != nil {
		return nil, fmt.Errorf("read network buffer: %w", err)
	}
	return records, nil
}

// Len reports the number of buffered records for the session.
func (n *Network) Len(ctx context.Context, sessionKey string) (int, error) {
	records, err := n.Read(ctx, sessionKey)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Clear empties the session's buffer.
func (n *Network) Clear(ctx context.Context, sessionKey string) error {
	if err := n.store.Remove(ctx, networkKey(sessionKey)); err != nil {
		return fmt.Errorf("clear network buffer: %w", err)
	}
	return nil
}
