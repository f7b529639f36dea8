// Package capture defines core types shared across the diagnostic pipeline.
package capture

import "time"

// Level classifies a console entry.
type Level string

// Console levels recorded from the page.
const (
	LevelLog   Level = "log"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelInfo  Level = "info"
)

// MaxConsoleMessageChars bounds a single console message.
const MaxConsoleMessageChars = 2000

// ConsoleEntry is one console line captured from a page. Entries are
// immutable once created and only ever appended.
type ConsoleEntry struct {
	// Timestamp is epoch milliseconds recorded at emission.
	Timestamp int64 `json:"timestamp"`
	Level     Level `json:"level"`
	// Message is capped at MaxConsoleMessageChars by the collector.
	Message string  `json:"message"`
	Source  *string `json:"source"`
}

// NetworkRequest tracks one request's lifecycle within a session buffer.
// It is created on request start with most fields nil and mutated in place
// on completion/error and again when a body-capture event correlates to it.
type NetworkRequest struct {
	// ID is the lifecycle join key, unique within a session buffer. Body
	// correlation cannot use it; body events originate in a context that
	// never sees this ID.
	ID           string  `json:"id"`
	Method       string  `json:"method"`
	URL          string  `json:"url"`
	StatusCode   *int    `json:"statusCode"`
	Type         string  `json:"type"`
	StartTime    int64   `json:"startTime"`
	EndTime      *int64  `json:"endTime"`
	Duration     *int64  `json:"duration"`
	ResponseSize *int64  `json:"responseSize"`
	RequestBody  *string `json:"requestBody"`
	ResponseBody *string `json:"responseBody"`
	Error        *string `json:"error"`
}

// NetworkPatch is a partial update applied to a buffered NetworkRequest.
// Nil fields are left untouched.
type NetworkPatch struct {
	StatusCode   *int
	EndTime      *int64
	Duration     *int64
	ResponseSize *int64
	RequestBody  *string
	ResponseBody *string
	Error        *string
}

// Apply copies the non-nil patch fields onto the record.
func (p NetworkPatch) Apply(r *NetworkRequest) {
	if p.StatusCode != nil {
		r.StatusCode = p.StatusCode
	}
	if p.EndTime != nil {
		r.EndTime = p.EndTime
	}
	if p.Duration != nil {
		r.Duration = p.Duration
	}
	if p.ResponseSize != nil {
		r.ResponseSize = p.ResponseSize
	}
	if p.RequestBody != nil {
		r.RequestBody = p.RequestBody
	}
	if p.ResponseBody != nil {
		r.ResponseBody = p.ResponseBody
	}
	if p.Error != nil {
		r.Error = p.Error
	}
}

// AnnotationType selects how an annotation rectangle is drawn.
type AnnotationType string

// Supported annotation types.
const (
	AnnotationHighlight AnnotationType = "highlight"
	AnnotationRedact    AnnotationType = "redact"
)

// Annotation is an immutable rectangle drawn over a screenshot. Ordering
// matters: annotations render in append order, later ones on top.
type Annotation struct {
	Type   AnnotationType `json:"type"`
	X      int            `json:"x"`
	Y      int            `json:"y"`
	Width  int            `json:"width"`
	Height int            `json:"height"`
	Color  string         `json:"color"`
}

// Screenshot holds a captured image plus user annotations. Annotated is
// derived from Original and the annotation list; it is cleared whenever the
// list changes and recomputed only by an explicit render.
type Screenshot struct {
	Original    []byte       `json:"-"`
	Annotated   []byte       `json:"-"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	Annotations []Annotation `json:"annotations"`
}

// EnvironmentSnapshot records facts about the browser and display at
// capture time.
type EnvironmentSnapshot struct {
	BrowserName      string  `json:"browserName"`
	BrowserVersion   string  `json:"browserVersion"`
	OS               string  `json:"os"`
	UserAgent        string  `json:"userAgent"`
	Locale           string  `json:"locale"`
	ScreenWidth      int     `json:"screenWidth"`
	ScreenHeight     int     `json:"screenHeight"`
	DevicePixelRatio float64 `json:"devicePixelRatio"`
	ViewportWidth    int     `json:"viewportWidth"`
	ViewportHeight   int     `json:"viewportHeight"`
}

// PageContext describes the page a capture was taken from.
type PageContext struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	ReadyState string `json:"readyState"`
}

// ReportStatus represents the lifecycle state of a diagnostic report.
type ReportStatus string

// Report status values.
const (
	ReportStatusCapturing ReportStatus = "capturing"
	ReportStatusCaptured  ReportStatus = "captured"
)

// Report is one assembled capture pass. Every field except ID, SessionKey
// and CapturedAt is best-effort; a failed step leaves its field empty.
type Report struct {
	ID              string               `json:"id"`
	Status          ReportStatus         `json:"status"`
	SessionKey      string               `json:"sessionKey"`
	Screenshot      *Screenshot          `json:"screenshot,omitempty"`
	ConsoleEntries  []ConsoleEntry       `json:"consoleEntries"`
	NetworkRequests []NetworkRequest     `json:"networkRequests"`
	Environment     *EnvironmentSnapshot `json:"environment,omitempty"`
	PageContext     *PageContext         `json:"pageContext,omitempty"`
	CapturedAt      time.Time            `json:"capturedAt"`
	Error           string               `json:"error,omitempty"`
}
