// Package orchestrator drives one capture pass: trigger the screenshot,
// drain the session buffers, request environment facts, and assemble the
// report. Every step is best-effort; a failed step leaves its field empty
// and the pass still completes. Only assembling no report at all is an
// error.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/webdiag-project/webdiag/internal/buffer"
	"github.com/webdiag-project/webdiag/internal/capture"
	"github.com/webdiag-project/webdiag/internal/kv"
	"github.com/webdiag-project/webdiag/internal/metrics"
	"github.com/webdiag-project/webdiag/internal/report"
	"github.com/webdiag-project/webdiag/internal/screenshot"
)

// pendingReportKey is where the latest assembled report is persisted for
// recovery across restarts.
const pendingReportKey = "pendingReport"

// Config controls what a capture pass collects.
type Config struct {
	CaptureConsole     bool
	CaptureNetwork     bool
	CaptureEnvironment bool
	MaxScreenshotBytes int
	// SourceTimeout bounds the screenshot and environment requests. The
	// sources run in another execution context and are not required to
	// ever resolve; the orchestrator must not hang on them.
	SourceTimeout time.Duration
}

// Orchestrator assembles diagnostic reports from the capture subsystems.
type Orchestrator struct {
	console *buffer.Console
	network *buffer.Network
	shots   capture.ScreenshotSource
	env     capture.EnvironmentSource
	store   kv.Store
	reports *report.Store
	idGen   capture.IDGenerator
	clock   capture.Clock
	cfg     Config
	logger  *zap.Logger
}

// New constructs an Orchestrator.
func New(
	console *buffer.Console,
	network *buffer.Network,
	shots capture.ScreenshotSource,
	env capture.EnvironmentSource,
	store kv.Store,
	reports *report.Store,
	idGen capture.IDGenerator,
	clock capture.Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 10 * time.Second
	}
	return &Orchestrator{
		console: console,
		network: network,
		shots:   shots,
		env:     env,
		store:   store,
		reports: reports,
		idGen:   idGen,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Capture runs one pass for the session and returns the assembled report.
func (o *Orchestrator) Capture(ctx context.Context, sessionKey string) (capture.Report, error) {
	id, err := o.idGen.NewID()
	if err != nil {
		metrics.ObserveCapture("failed")
		return capture.Report{}, fmt.Errorf("generate report id: %w", err)
	}

	r := capture.Report{
		ID:              id,
		Status:          capture.ReportStatusCapturing,
		SessionKey:      sessionKey,
		ConsoleEntries:  []capture.ConsoleEntry{},
		NetworkRequests: []capture.NetworkRequest{},
		CapturedAt:      o.clock.Now(),
	}

	r.Screenshot = o.captureScreenshot(ctx, sessionKey)

	if o.cfg.CaptureConsole {
		r.ConsoleEntries = o.drainConsole(ctx, sessionKey)
	}
	if o.cfg.CaptureNetwork {
		r.NetworkRequests = o.drainNetwork(ctx, sessionKey)
	}
	if o.cfg.CaptureEnvironment && o.env != nil {
		r.Environment, r.PageContext = o.fetchEnvironment(ctx, sessionKey)
	}

	r.Status = capture.ReportStatusCaptured

	if err := o.persistPending(ctx, r); err != nil {
		o.logger.Warn("pending report persist failed", zap.String("report", id), zap.Error(err))
	}
	if err := o.reports.Create(ctx, r); err != nil {
		metrics.ObserveCapture("failed")
		return capture.Report{}, fmt.Errorf("store report: %w", err)
	}

	metrics.ObserveCapture("captured")
	o.logger.Info("capture pass completed",
		zap.String("report", id),
		zap.String("session", sessionKey),
		zap.Int("console_entries", len(r.ConsoleEntries)),
		zap.Int("network_requests", len(r.NetworkRequests)),
		zap.Bool("screenshot", r.Screenshot != nil),
	)
	return r, nil
}

func (o *Orchestrator) captureScreenshot(ctx context.Context, sessionKey string) *capture.Screenshot {
	if o.shots == nil {
		return nil
	}
	shotCtx, cancel := context.WithTimeout(ctx, o.cfg.SourceTimeout)
	defer cancel()
	shot, err := o.shots.CaptureScreenshot(shotCtx, sessionKey)
	if err != nil {
		o.logger.Warn("screenshot capture failed", zap.String("session", sessionKey), zap.Error(err))
		return nil
	}
	if shot == nil {
		return nil
	}
	if o.cfg.MaxScreenshotBytes > 0 {
		compressed, err := screenshot.CompressScreenshot(*shot, o.cfg.MaxScreenshotBytes)
		if err != nil {
			o.logger.Warn("screenshot compression failed", zap.String("session", sessionKey), zap.Error(err))
			return shot
		}
		return &compressed
	}
	return shot
}

// drainConsole reads then clears the buffer. An event arriving between the
// two is lost; accepted best-effort semantics, not corrected with a
// transactional drain.
func (o *Orchestrator) drainConsole(ctx context.Context, sessionKey string) []capture.ConsoleEntry {
	entries, err := o.console.Read(ctx, sessionKey)
	if err != nil {
		o.logger.Warn("console drain failed", zap.String("session", sessionKey), zap.Error(err))
		return []capture.ConsoleEntry{}
	}
	if err := o.console.Clear(ctx, sessionKey); err != nil {
		o.logger.Warn("console clear failed", zap.String("session", sessionKey), zap.Error(err))
	}
	if entries == nil {
		entries = []capture.ConsoleEntry{}
	}
	return entries
}

func (o *Orchestrator) drainNetwork(ctx context.Context, sessionKey string) []capture.NetworkRequest {
	records, err := o.network.Read(ctx, sessionKey)
	if err != nil {
		o.logger.Warn("network drain failed", zap.String("session", sessionKey), zap.Error(err))
		return []capture.NetworkRequest{}
	}
	if err := o.network.Clear(ctx, sessionKey); err != nil {
		o.logger.Warn("network clear failed", zap.String("session", sessionKey), zap.Error(err))
	}
	if records == nil {
		records = []capture.NetworkRequest{}
	}
	return records
}

func (o *Orchestrator) fetchEnvironment(ctx context.Context, sessionKey string) (*capture.EnvironmentSnapshot, *capture.PageContext) {
	envCtx, cancel := context.WithTimeout(ctx, o.cfg.SourceTimeout)
	defer cancel()
	env, pageCtx, err := o.env.Environment(envCtx, sessionKey)
	if err != nil {
		o.logger.Warn("environment fetch failed", zap.String("session", sessionKey), zap.Error(err))
		return nil, nil
	}
	return env, pageCtx
}

func (o *Orchestrator) persistPending(ctx context.Context, r capture.Report) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode pending report: %w", err)
	}
	return o.store.Set(ctx, pendingReportKey, raw)
}
