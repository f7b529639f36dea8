package session

import (
	"context"
	"fmt"
	"regexp"

	"github.com/chromedp/chromedp"

	"github.com/webdiag-project/webdiag/internal/capture"
	"github.com/webdiag-project/webdiag/internal/screenshot"
)

// CaptureScreenshot grabs a PNG of the monitored tab's viewport.
func (m *Monitor) CaptureScreenshot(ctx context.Context, sessionKey string) (*capture.Screenshot, error) {
	if sessionKey != m.sessionKey {
		return nil, fmt.Errorf("unknown session %q", sessionKey)
	}

	taskCtx, cancel := context.WithCancel(m.browserCtx)
	defer cancel()
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	var buf []byte
	if err := chromedp.Run(taskCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	shot, err := screenshot.New(buf)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return &shot, nil
}

const environmentScript = `({
	userAgent: navigator.userAgent,
	locale: navigator.language || "",
	screenWidth: screen.width,
	screenHeight: screen.height,
	devicePixelRatio: window.devicePixelRatio,
	viewportWidth: window.innerWidth,
	viewportHeight: window.innerHeight,
	platform: navigator.platform || "",
	url: location.href,
	title: document.title,
	readyState: document.readyState,
})`

type environmentProbe struct {
	UserAgent        string  `json:"userAgent"`
	Locale           string  `json:"locale"`
	ScreenWidth      int     `json:"screenWidth"`
	ScreenHeight     int     `json:"screenHeight"`
	DevicePixelRatio float64 `json:"devicePixelRatio"`
	ViewportWidth    int     `json:"viewportWidth"`
	ViewportHeight   int     `json:"viewportHeight"`
	Platform         string  `json:"platform"`
	URL              string  `json:"url"`
	Title            string  `json:"title"`
	ReadyState       string  `json:"readyState"`
}

// Environment evaluates a probe inside the page and maps the result onto
// the capture types.
func (m *Monitor) Environment(ctx context.Context, sessionKey string) (*capture.EnvironmentSnapshot, *capture.PageContext, error) {
	if sessionKey != m.sessionKey {
		return nil, nil, fmt.Errorf("unknown session %q", sessionKey)
	}

	taskCtx, cancel := context.WithCancel(m.browserCtx)
	defer cancel()
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	var probe environmentProbe
	if err := chromedp.Run(taskCtx, chromedp.Evaluate(environmentScript, &probe)); err != nil {
		return nil, nil, fmt.Errorf("evaluate environment probe: %w", err)
	}

	name, version := parseBrowser(probe.UserAgent)
	env := &capture.EnvironmentSnapshot{
		BrowserName:      name,
		BrowserVersion:   version,
		OS:               probe.Platform,
		UserAgent:        probe.UserAgent,
		Locale:           probe.Locale,
		ScreenWidth:      probe.ScreenWidth,
		ScreenHeight:     probe.ScreenHeight,
		DevicePixelRatio: probe.DevicePixelRatio,
		ViewportWidth:    probe.ViewportWidth,
		ViewportHeight:   probe.ViewportHeight,
	}
	pageCtx := &capture.PageContext{
		URL:        probe.URL,
		Title:      probe.Title,
		ReadyState: probe.ReadyState,
	}
	return env, pageCtx, nil
}

var browserPattern = regexp.MustCompile(`(Firefox|Edg|Chrome|Safari)/([\d.]+)`)

// parseBrowser extracts a browser name and version from a user agent.
// Edge and Chrome both advertise Chrome; Edg wins when present.
func parseBrowser(userAgent string) (string, string) {
	matches := browserPattern.FindAllStringSubmatch(userAgent, -1)
	if len(matches) == 0 {
		return "unknown", ""
	}
	byName := make(map[string]string, len(matches))
	for _, match := range matches {
		byName[match[1]] = match[2]
	}
	for _, name := range []string{"Edg", "Firefox", "Chrome", "Safari"} {
		if version, ok := byName[name]; ok {
			if name == "Edg" {
				name = "Edge"
			}
			return name, version
		}
	}
	return "unknown", ""
}
