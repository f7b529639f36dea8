// Package artifacts persists export artifacts (HAR archives, screenshots)
// through a blob storage abstraction, keeping the capture pipeline
// independent of where attachments end up.
package artifacts

import "context"

// Provider writes raw artifacts and returns a URI locating them.
type Provider interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// NoOpProvider discards artifacts. Useful for dry runs where reports are
// assembled but nothing is exported.
type NoOpProvider struct{}

// PutObject does nothing and reports an empty URI.
func (NoOpProvider) PutObject(context.Context, string, string, []byte) (string, error) {
	return "", nil
}
