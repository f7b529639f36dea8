// Package buffer implements the per-session ring buffers backing capture.
// Buffers round-trip through the external key-value store on every
// operation: read a fresh copy, apply one narrow mutation, write back. The
// store offers no compare-and-swap, so the window between read and write is
// kept as small as possible; a concurrent writer landing inside that window
// clobbers the earlier write, which is accepted best-effort behavior.
package buffer

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/webdiag-project/webdiag/internal/capture"
	"github.com/webdiag-project/webdiag/internal/kv"
	"github.com/webdiag-project/webdiag/internal/metrics"
)

func consoleKey(sessionKey string) string {
	return "consoleBuffer:" + sessionKey
}

// Console is the bounded per-session console buffer. Oldest entries are
// evicted first when an append exceeds capacity, regardless of severity.
type Console struct {
	store    kv.Store
	capacity int
	logger   *zap.Logger
}

// NewConsole creates a console buffer with the given capacity.
func NewConsole(store kv.Store, capacity int, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{store: store, capacity: capacity, logger: logger}
}

// Append merges entries into the session's sequence and truncates from the
// front if the result exceeds capacity. Messages longer than
// capture.MaxConsoleMessageChars are capped on the way in.
func (c *Console) Append(ctx context.Context, sessionKey string, entries []capture.ConsoleEntry) error {
	existing, err := loadSlice[capture.ConsoleEntry](ctx, c.store, consoleKey(sessionKey))
	if err != nil {
		return fmt.Errorf("load console buffer: %w", err)
	}
	for _, entry := range entries {
		entry.Message = capMessage(entry.Message)
		existing = append(existing, entry)
	}
	existing = evict(existing, c.capacity, "console")
	if err := saveSlice(ctx, c.store, consoleKey(sessionKey), existing); err != nil {
		return fmt.Errorf("save console buffer: %w", err)
	}
	return nil
}

// Read returns the current contents without mutating the buffer.
func (c *Console) Read(ctx context.Context, sessionKey string) ([]capture.ConsoleEntry, error) {
	entries, err := loadSlice[capture.ConsoleEntry](ctx, c.store, consoleKey(sessionKey))
	if err != nil {
		return nil, fmt.Errorf("read console buffer: %w", err)
	}
	return entries, nil
}

// Clear empties the session's buffer.
func (c *Console) Clear(ctx context.Context, sessionKey string) error {
	if err := c.store.Remove(ctx, consoleKey(sessionKey)); err != nil {
		return fmt.Errorf("clear console buffer: %w", err)
	}
	return nil
}

// Len reports the number of buffered entries for the session.
func (c *Console) Len(ctx context.Context, sessionKey string) (int, error) {
	entries, err := c.Read(ctx, sessionKey)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// capMessage limits a message to MaxConsoleMessageChars characters. The cap
// counts runes, not bytes, so multibyte text keeps its full allowance and a
// cut never lands inside a UTF-8 sequence.
func capMessage(msg string) string {
	if len(msg) <= capture.MaxConsoleMessageChars {
		return msg
	}
	runes := []rune(msg)
	if len(runes) <= capture.MaxConsoleMessageChars {
		return msg
	}
	return string(runes[:capture.MaxConsoleMessageChars])
}

// evict drops elements from the front until len <= capacity. The product
// favors most-recent evidence over first evidence.
func evict[T any](seq []T, capacity int, buffer string) []T {
	if capacity <= 0 || len(seq) <= capacity {
		return seq
	}
	dropped := len(seq) - capacity
	metrics.ObserveEviction(buffer, dropped)
	return seq[dropped:]
}

func loadSlice[T any](ctx context.Context, store kv.Store, key string) ([]T, error) {
	raw, found, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %q: %w", key, err)
	}
	return out, nil
}

func saveSlice[T any](ctx context.Context, store kv.Store, key string, seq []T) error {
	if seq == nil {
		seq = []T{}
	}
	raw, err := json.Marshal(seq)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return store.Set(ctx, key, raw)
}
