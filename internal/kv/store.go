// Package kv defines the persistent key-value store the capture buffers
// round-trip through. The store offers no compare-and-swap; callers keep the
// read-to-write window of each mutation as small as possible.
package kv

import "context"

// Store is the narrow contract backing session buffers. Get reports
// found=false for missing keys rather than returning an error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}
