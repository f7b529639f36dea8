package artifacts

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/webdiag-project/webdiag/internal/capture"
	"github.com/webdiag-project/webdiag/internal/har"
	"github.com/webdiag-project/webdiag/internal/metrics"
	"github.com/webdiag-project/webdiag/internal/screenshot"
)

// Exporter writes a report's attachments to a blob provider. Every step is
// best-effort: a failed artifact is logged and skipped, the remaining
// artifacts still export, and the report itself is never invalidated.
type Exporter struct {
	provider Provider
	logger   *zap.Logger
}

// NewExporter creates an Exporter.
func NewExporter(provider Provider, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{provider: provider, logger: logger}
}

// ExportResult lists the URIs of successfully written artifacts.
type ExportResult struct {
	HarURI        string `json:"harUri,omitempty"`
	ScreenshotURI string `json:"screenshotUri,omitempty"`
}

// Export writes the HAR archive and screenshot for a report.
func (e *Exporter) Export(ctx context.Context, r capture.Report) ExportResult {
	var result ExportResult
	if uri, err := e.exportHar(ctx, r); err != nil {
		metrics.ObserveExportFailure("har")
		e.logger.Warn("har export failed", zap.String("report", r.ID), zap.Error(err))
	} else if uri != "" {
		result.HarURI = uri
	}
	if uri, err := e.exportScreenshot(ctx, r); err != nil {
		metrics.ObserveExportFailure("screenshot")
		e.logger.Warn("screenshot export failed", zap.String("report", r.ID), zap.Error(err))
	} else if uri != "" {
		result.ScreenshotURI = uri
	}
	return result
}

func (e *Exporter) exportHar(ctx context.Context, r capture.Report) (string, error) {
	if len(r.NetworkRequests) == 0 {
		return "", nil
	}
	raw, err := har.Marshal(har.Build(r.NetworkRequests))
	if err != nil {
		return "", err
	}
	path := fmt.Sprintf("reports/%s/%s", r.ID, har.Filename)
	uri, err := e.provider.PutObject(ctx, path, "application/json", raw)
	if err != nil {
		return "", fmt.Errorf("put har: %w", err)
	}
	return uri, nil
}

func (e *Exporter) exportScreenshot(ctx context.Context, r capture.Report) (string, error) {
	if r.Screenshot == nil {
		return "", nil
	}
	data := screenshot.ExportForUpload(*r.Screenshot)
	if len(data) == 0 {
		return "", nil
	}
	// Compression may have turned the annotated image into a JPEG.
	name, contentType := "screenshot.png", "image/png"
	if http.DetectContentType(data) == "image/jpeg" {
		name, contentType = "screenshot.jpg", "image/jpeg"
	}
	path := fmt.Sprintf("reports/%s/%s", r.ID, name)
	uri, err := e.provider.PutObject(ctx, path, contentType, data)
	if err != nil {
		return "", fmt.Errorf("put screenshot: %w", err)
	}
	return uri, nil
}
