// Package session attaches to a Chrome tab over the DevTools protocol and
// streams its console and network activity into the ingest hub. It also
// serves as the screenshot and environment source for capture passes.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/webdiag-project/webdiag/internal/capture"
	"github.com/webdiag-project/webdiag/internal/ingest"
)

// Config controls the browser session monitor.
type Config struct {
	Headless       bool
	NavTimeout     time.Duration
	BodyFetchRate  float64
	BodyFetchBurst int
	UserAgent      string
}

// Monitor owns a headless browser tab and forwards its telemetry as ingest
// events keyed by a single session key.
type Monitor struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	sessionKey      string
	emitter         ingest.Emitter
	clock           capture.Clock
	logger          *zap.Logger
	navTimeout      time.Duration
	bodyRate        float64
	bodyBurst       int
	hostLimiters    sync.Map
	requests        sync.Map // network.RequestID -> *requestMeta
	requestSeq      atomic.Uint64
}

// Requests that never see a loading-finished or loading-failed event would
// otherwise pin their metadata forever, so entries older than this are swept
// periodically.
const staleRequestAfter = 5 * time.Minute

// sweepInterval is measured in request starts, not time. A quiet tab grows
// no metadata, so there is nothing to sweep without new requests.
const sweepInterval = 64

// requestMeta remembers the facts of an in-flight request that later
// lifecycle events no longer carry.
type requestMeta struct {
	url    string
	method string
	start  int64
}

// NewMonitor launches a browser and starts listening on a fresh tab.
func NewMonitor(cfg Config, sessionKey string, emitter ingest.Emitter, clock capture.Clock, logger *zap.Logger) (*Monitor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 25 * time.Second
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx, network.Enable(), runtime.Enable()); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	m := &Monitor{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		sessionKey:      sessionKey,
		emitter:         emitter,
		clock:           clock,
		logger:          logger,
		navTimeout:      cfg.NavTimeout,
		bodyRate:        cfg.BodyFetchRate,
		bodyBurst:       cfg.BodyFetchBurst,
	}
	m.listen()
	return m, nil
}

// SessionKey returns the key all emitted events carry.
func (m *Monitor) SessionKey() string {
	return m.sessionKey
}

// Navigate loads a page in the monitored tab.
func (m *Monitor) Navigate(ctx context.Context, rawURL string) error {
	taskCtx, cancel := context.WithTimeout(m.browserCtx, m.navTimeout)
	defer cancel()

	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	return nil
}

// Close tears down the browser and allocator contexts.
func (m *Monitor) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.browserCancel()
	m.allocatorCancel()
	select {
	case <-ctx.Done():
	default:
	}
	return nil
}

// listen wires the DevTools event stream into ingest events. Handlers must
// not block; anything slow runs on its own goroutine.
func (m *Monitor) listen() {
	chromedp.ListenTarget(m.browserCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			m.onRequestStart(e)
		case *network.EventResponseReceived:
			m.onResponse(e)
		case *network.EventLoadingFinished:
			m.onLoadingFinished(e)
		case *network.EventLoadingFailed:
			m.onLoadingFailed(e)
		case *runtime.EventConsoleAPICalled:
			m.onConsole(e)
		}
	})
}

func (m *Monitor) onRequestStart(ev *network.EventRequestWillBeSent) {
	start := m.clock.Now().UnixMilli()
	if ev.WallTime != nil {
		start = ev.WallTime.Time().UnixMilli()
	}
	meta := &requestMeta{
		url:    ev.Request.URL,
		method: ev.Request.Method,
		start:  start,
	}
	m.requests.Store(ev.RequestID, meta)
	if m.requestSeq.Add(1)%sweepInterval == 0 {
		m.sweepStale(m.clock.Now().UnixMilli())
	}

	record := &capture.NetworkRequest{
		ID:        string(ev.RequestID),
		Method:    ev.Request.Method,
		URL:       ev.Request.URL,
		Type:      strings.ToLower(string(ev.Type)),
		StartTime: start,
	}
	m.emitter.Emit(ingest.Event{
		SessionKey: m.sessionKey,
		Kind:       ingest.KindRequestStart,
		TS:         time.UnixMilli(start),
		Record:     record,
	})

	if ev.Request.HasPostData {
		go m.fetchRequestBody(ev.RequestID, meta)
	}
}

func (m *Monitor) onResponse(ev *network.EventResponseReceived) {
	status := int(ev.Response.Status)
	m.emitter.Emit(ingest.Event{
		SessionKey: m.sessionKey,
		Kind:       ingest.KindRequestUpdate,
		TS:         m.clock.Now(),
		RequestID:  string(ev.RequestID),
		Patch:      &capture.NetworkPatch{StatusCode: &status},
	})
}

func (m *Monitor) onLoadingFinished(ev *network.EventLoadingFinished) {
	end := m.clock.Now().UnixMilli()
	size := int64(ev.EncodedDataLength)
	patch := &capture.NetworkPatch{
		EndTime:      &end,
		ResponseSize: &size,
	}
	var meta *requestMeta
	if val, ok := m.requests.Load(ev.RequestID); ok {
		meta = val.(*requestMeta)
		duration := end - meta.start
		patch.Duration = &duration
	}
	m.emitter.Emit(ingest.Event{
		SessionKey: m.sessionKey,
		Kind:       ingest.KindRequestUpdate,
		TS:         time.UnixMilli(end),
		RequestID:  string(ev.RequestID),
		Patch:      patch,
	})

	if meta != nil {
		go m.fetchResponseBody(ev.RequestID, meta)
	}
}

func (m *Monitor) onLoadingFailed(ev *network.EventLoadingFailed) {
	end := m.clock.Now().UnixMilli()
	errText := ev.ErrorText
	if ev.Canceled {
		errText = "canceled"
	}
	patch := &capture.NetworkPatch{
		EndTime: &end,
		Error:   &errText,
	}
	if val, ok := m.requests.Load(ev.RequestID); ok {
		meta := val.(*requestMeta)
		duration := end - meta.start
		patch.Duration = &duration
	}
	m.requests.Delete(ev.RequestID)
	m.emitter.Emit(ingest.Event{
		SessionKey: m.sessionKey,
		Kind:       ingest.KindRequestError,
		TS:         time.UnixMilli(end),
		RequestID:  string(ev.RequestID),
		Patch:      patch,
	})
}

// sweepStale drops metadata for requests whose start predates the staleness
// window relative to now (epoch milliseconds).
func (m *Monitor) sweepStale(now int64) {
	cutoff := now - staleRequestAfter.Milliseconds()
	m.requests.Range(func(key, value any) bool {
		if meta, ok := value.(*requestMeta); ok && meta.start < cutoff {
			m.requests.Delete(key)
		}
		return true
	})
}

func (m *Monitor) onConsole(ev *runtime.EventConsoleAPICalled) {
	ts := m.clock.Now().UnixMilli()
	if ev.Timestamp != nil {
		ts = ev.Timestamp.Time().UnixMilli()
	}
	entry := capture.ConsoleEntry{
		Timestamp: ts,
		Level:     consoleLevel(ev.Type),
		Message:   consoleMessage(ev.Args),
	}
	if src := consoleSource(ev.StackTrace); src != "" {
		entry.Source = &src
	}
	m.emitter.Emit(ingest.Event{
		SessionKey: m.sessionKey,
		Kind:       ingest.KindConsole,
		TS:         time.UnixMilli(ts),
		Console:    []capture.ConsoleEntry{entry},
	})
}

func consoleLevel(t runtime.APIType) capture.Level {
	switch t {
	case runtime.APITypeWarning:
		return capture.LevelWarn
	case runtime.APITypeError, runtime.APITypeAssert:
		return capture.LevelError
	case runtime.APITypeInfo:
		return capture.LevelInfo
	default:
		return capture.LevelLog
	}
}

func consoleMessage(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		switch {
		case len(arg.Value) > 0:
			parts = append(parts, strings.Trim(string(arg.Value), `"`))
		case arg.Description != "":
			parts = append(parts, arg.Description)
		default:
			parts = append(parts, string(arg.Type))
		}
	}
	return strings.Join(parts, " ")
}

func consoleSource(st *runtime.StackTrace) string {
	if st == nil || len(st.CallFrames) == 0 {
		return ""
	}
	frame := st.CallFrames[0]
	return fmt.Sprintf("%s:%d", frame.URL, frame.LineNumber)
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
