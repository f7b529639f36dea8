package capture

import (
	"context"
	"time"
)

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces report IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// ScreenshotSource captures an image of the session's visible page.
// Implementations are not required to ever resolve; callers impose their
// own timeout at the call site.
type ScreenshotSource interface {
	CaptureScreenshot(ctx context.Context, sessionKey string) (*Screenshot, error)
}

// EnvironmentSource fetches environment facts and page context from the
// session's page. Same timeout contract as ScreenshotSource.
type EnvironmentSource interface {
	Environment(ctx context.Context, sessionKey string) (*EnvironmentSnapshot, *PageContext, error)
}
