package session

import (
	"context"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/webdiag-project/webdiag/internal/ingest"
	"github.com/webdiag-project/webdiag/internal/redact"
)

const bodyFetchTimeout = 5 * time.Second

// fetchRequestBody pulls the POST payload for a request and emits it as a
// body event. Body events carry url, method and timestamp only; the request
// ID is not available to the correlation step downstream.
func (m *Monitor) fetchRequestBody(id network.RequestID, meta *requestMeta) {
	if err := m.waitHostBudget(meta.url); err != nil {
		return
	}
	var body string
	err := m.runAction(chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetRequestPostData(id).Do(ctx)
		return err
	}))
	if err != nil {
		m.logger.Debug("request body fetch failed", zap.String("url", meta.url), zap.Error(err))
		return
	}
	if !utf8.ValidString(body) {
		return
	}
	body = sanitizeFormBody(body)
	m.emitter.Emit(ingest.Event{
		SessionKey: m.sessionKey,
		Kind:       ingest.KindBody,
		TS:         m.clock.Now(),
		Body: &ingest.BodyEvent{
			URL:         meta.url,
			Method:      meta.method,
			Timestamp:   meta.start,
			RequestBody: &body,
		},
	})
}

// fetchResponseBody pulls the response payload after loading finishes.
// Binary payloads are skipped; only text bodies are useful in a report.
func (m *Monitor) fetchResponseBody(id network.RequestID, meta *requestMeta) {
	defer m.requests.Delete(id)
	if err := m.waitHostBudget(meta.url); err != nil {
		return
	}
	var raw []byte
	err := m.runAction(chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetResponseBody(id).Do(ctx)
		return err
	}))
	if err != nil {
		m.logger.Debug("response body fetch failed", zap.String("url", meta.url), zap.Error(err))
		return
	}
	if len(raw) == 0 || !utf8.Valid(raw) {
		return
	}
	body := string(raw)
	m.emitter.Emit(ingest.Event{
		SessionKey: m.sessionKey,
		Kind:       ingest.KindBody,
		TS:         m.clock.Now(),
		Body: &ingest.BodyEvent{
			URL:          meta.url,
			Method:       meta.method,
			Timestamp:    meta.start,
			ResponseBody: &body,
		},
	})
}

// sanitizeFormBody redacts sensitive fields in a URL-encoded form payload.
// JSON bodies are redacted later in the pipeline by key; form bodies would
// otherwise slip through as opaque text, so they are scrubbed at capture
// time. Anything that does not parse as a form is returned unchanged.
func sanitizeFormBody(body string) string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" || !strings.Contains(trimmed, "=") ||
		strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return body
	}
	values, err := url.ParseQuery(body)
	if err != nil {
		return body
	}
	sensitive := false
	for name := range values {
		if redact.IsSensitiveField(name) {
			sensitive = true
			break
		}
	}
	if !sensitive {
		return body
	}
	return redact.FormValues(values).Encode()
}

func (m *Monitor) runAction(action chromedp.Action) error {
	taskCtx, cancel := context.WithTimeout(m.browserCtx, bodyFetchTimeout)
	defer cancel()
	return chromedp.Run(taskCtx, action)
}

// waitHostBudget throttles body fetches per host so a chatty page cannot
// flood the DevTools connection.
func (m *Monitor) waitHostBudget(rawURL string) error {
	if m.bodyRate <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	host := strings.ToLower(parsed.Host)
	burst := m.bodyBurst
	if burst <= 0 {
		burst = 1
	}
	val, _ := m.hostLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(m.bodyRate), burst))
	limiter := val.(*rate.Limiter)
	waitCtx, cancel := context.WithTimeout(m.browserCtx, bodyFetchTimeout)
	defer cancel()
	return limiter.Wait(waitCtx)
}
