// Package har serializes captured network records into HTTP Archive 1.2
// documents. Consumers import these into third-party network inspection
// tools, so field presence and absence follow the HAR spec exactly: postData
// and content.text appear only when the corresponding body was captured,
// unknown sizes are reported as -1, and failed or pending requests map to
// status 0. Bodies are redacted before they are embedded; the exporter never
// leaks an unredacted body.
package har

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/webdiag-project/webdiag/internal/capture"
	"github.com/webdiag-project/webdiag/internal/redact"
)

const (
	creatorName    = "webdiag"
	creatorVersion = "0.1.0"

	// Filename is the conventional attachment name for exported archives.
	Filename = "network-capture.har"
)

// Document is the top-level HAR structure.
type Document struct {
	Log Log `json:"log"`
}

// Log holds the HAR metadata envelope and entries.
type Log struct {
	Version string  `json:"version"`
	Creator Creator `json:"creator"`
	Entries []Entry `json:"entries"`
}

// Creator identifies the tool that generated the archive.
type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Entry is a single request/response pair.
type Entry struct {
	StartedDateTime string   `json:"startedDateTime"`
	Time            int64    `json:"time"`
	Request         Request  `json:"request"`
	Response        Response `json:"response"`
	Cache           struct{} `json:"cache"`
	Timings         Timings  `json:"timings"`
}

// Request is the request half of an entry.
type Request struct {
	Method      string    `json:"method"`
	URL         string    `json:"url"`
	HTTPVersion string    `json:"httpVersion"`
	Headers     []Header  `json:"headers"`
	QueryString []Query   `json:"queryString"`
	Cookies     []Cookie  `json:"cookies"`
	HeadersSize int       `json:"headersSize"`
	BodySize    int64     `json:"bodySize"`
	PostData    *PostData `json:"postData,omitempty"`
}

// Response is the response half of an entry.
type Response struct {
	Status      int      `json:"status"`
	StatusText  string   `json:"statusText"`
	HTTPVersion string   `json:"httpVersion"`
	Headers     []Header `json:"headers"`
	Cookies     []Cookie `json:"cookies"`
	Content     Content  `json:"content"`
	RedirectURL string   `json:"redirectURL"`
	HeadersSize int      `json:"headersSize"`
	BodySize    int64    `json:"bodySize"`
}

// Content carries the response body.
type Content struct {
	Size     int64   `json:"size"`
	MimeType string  `json:"mimeType"`
	Text     *string `json:"text,omitempty"`
}

// PostData carries the request body.
type PostData struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// Header is a named header value. Header capture is out of band; entries
// always carry empty header arrays.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Query is a query string parameter.
type Query struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Cookie is a request or response cookie.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Timings is the phase breakdown for an entry. Finer-grained phases are not
// measured; the full elapsed time is attributed to wait.
type Timings struct {
	Send    int64 `json:"send"`
	Wait    int64 `json:"wait"`
	Receive int64 `json:"receive"`
}

// statusText maps status codes to their reason phrases. Codes outside the
// table render as an empty string.
var statusText = map[int]string{
	200: "OK",
	201: "Created",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	429: "Too Many Requests",
	500: "Internal Server Error",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
}

// Build produces a Document from a snapshot of network records. The records
// are the orchestrator's drained copy, not a live buffer read.
func Build(records []capture.NetworkRequest) Document {
	entries := make([]Entry, 0, len(records))
	for _, record := range records {
		entries = append(entries, buildEntry(record))
	}
	return Document{
		Log: Log{
			Version: "1.2",
			Creator: Creator{Name: creatorName, Version: creatorVersion},
			Entries: entries,
		},
	}
}

// Marshal serializes a Document to UTF-8 JSON.
func Marshal(doc Document) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal har: %w", err)
	}
	return raw, nil
}

func buildEntry(record capture.NetworkRequest) Entry {
	status := 0
	if record.StatusCode != nil {
		status = *record.StatusCode
	}
	var elapsed int64
	if record.Duration != nil && *record.Duration > 0 {
		elapsed = *record.Duration
	}
	requestBody := redact.Body(record.RequestBody)
	responseBody := redact.Body(record.ResponseBody)

	request := Request{
		Method:      record.Method,
		URL:         record.URL,
		HTTPVersion: "HTTP/1.1",
		Headers:     []Header{},
		QueryString: []Query{},
		Cookies:     []Cookie{},
		HeadersSize: -1,
		BodySize:    -1,
	}
	if requestBody != nil {
		request.BodySize = int64(len(*requestBody))
		request.PostData = &PostData{
			MimeType: "application/octet-stream",
			Text:     *requestBody,
		}
	}

	var contentSize int64
	responseBodySize := int64(-1)
	if record.ResponseSize != nil {
		contentSize = *record.ResponseSize
		responseBodySize = *record.ResponseSize
	}
	response := Response{
		Status:      status,
		StatusText:  statusText[status],
		HTTPVersion: "HTTP/1.1",
		Headers:     []Header{},
		Cookies:     []Cookie{},
		Content: Content{
			Size:     contentSize,
			MimeType: "application/octet-stream",
			Text:     responseBody,
		},
		RedirectURL: "",
		HeadersSize: -1,
		BodySize:    responseBodySize,
	}

	return Entry{
		StartedDateTime: isoTime(record.StartTime),
		Time:            elapsed,
		Request:         request,
		Response:        response,
		Timings: Timings{
			Send:    0,
			Wait:    elapsed,
			Receive: 0,
		},
	}
}

func isoTime(epochMillis int64) string {
	return time.UnixMilli(epochMillis).UTC().Format("2006-01-02T15:04:05.000Z")
}
