// Package api exposes the HTTP interface for the diagnostic capture service.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/webdiag-project/webdiag/internal/artifacts"
	"github.com/webdiag-project/webdiag/internal/buffer"
	"github.com/webdiag-project/webdiag/internal/capture"
	"github.com/webdiag-project/webdiag/internal/har"
	"github.com/webdiag-project/webdiag/internal/metrics"
	"github.com/webdiag-project/webdiag/internal/orchestrator"
	"github.com/webdiag-project/webdiag/internal/report"
	"github.com/webdiag-project/webdiag/internal/screenshot"
)

// Server wires HTTP handlers to the capture orchestrator and report store.
type Server struct {
	router       chi.Router
	orchestrator *orchestrator.Orchestrator
	reports      *report.Store
	exporter     *artifacts.Exporter
	console      *buffer.Console
	network      *buffer.Network
	logger       *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	orch *orchestrator.Orchestrator,
	reports *report.Store,
	exporter *artifacts.Exporter,
	console *buffer.Console,
	network *buffer.Network,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		orchestrator: orch,
		reports:      reports,
		exporter:     exporter,
		console:      console,
		network:      network,
		logger:       logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/sessions/{session_key}/buffers", s.getBufferStatus)
		r.Route("/captures", func(r chi.Router) {
			r.Post("/", s.createCapture)
			r.Get("/", s.listCaptures)
			r.Route("/{capture_id}", func(r chi.Router) {
				r.Get("/", s.getCapture)
				r.Get("/har", s.getCaptureHar)
				r.Get("/screenshot", s.getCaptureScreenshot)
				r.Route("/annotations", func(r chi.Router) {
					r.Post("/", s.addAnnotation)
					r.Delete("/last", s.removeLastAnnotation)
					r.Delete("/", s.resetAnnotations)
				})
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type createCaptureRequest struct {
	SessionKey string `json:"sessionKey"`
}

type createCaptureResponse struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	ConsoleEntries  int    `json:"consoleEntries"`
	NetworkRequests int    `json:"networkRequests"`
	HasScreenshot   bool   `json:"hasScreenshot"`
	HarURI          string `json:"harUri,omitempty"`
	ScreenshotURI   string `json:"screenshotUri,omitempty"`
}

func (s *Server) createCapture(w http.ResponseWriter, r *http.Request) {
	var req createCaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SessionKey == "" {
		writeError(w, http.StatusBadRequest, "sessionKey required")
		return
	}

	rep, err := s.orchestrator.Capture(r.Context(), req.SessionKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := createCaptureResponse{
		ID:              rep.ID,
		Status:          string(rep.Status),
		ConsoleEntries:  len(rep.ConsoleEntries),
		NetworkRequests: len(rep.NetworkRequests),
		HasScreenshot:   rep.Screenshot != nil,
	}
	if s.exporter != nil {
		result := s.exporter.Export(r.Context(), rep)
		resp.HarURI = result.HarURI
		resp.ScreenshotURI = result.ScreenshotURI
	}
	writeJSON(w, http.StatusCreated, resp)
}

// getBufferStatus reports how much evidence is queued for a session before
// any capture drains it.
func (s *Server) getBufferStatus(w http.ResponseWriter, r *http.Request) {
	sessionKey := chi.URLParam(r, "session_key")
	consoleLen, err := s.console.Len(r.Context(), sessionKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read console buffer")
		return
	}
	networkLen, err := s.network.Len(r.Context(), sessionKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read network buffer")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionKey":      sessionKey,
		"consoleEntries":  consoleLen,
		"networkRequests": networkLen,
	})
}

func (s *Server) listCaptures(w http.ResponseWriter, r *http.Request) {
	reports, err := s.reports.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list captures")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"captures": reports})
}

func (s *Server) getCapture(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.loadReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) getCaptureHar(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.loadReport(w, r)
	if !ok {
		return
	}
	raw, err := har.Marshal(har.Build(rep.NetworkRequests))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", har.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(raw); err != nil {
		s.logger.Error("har write failed", zap.Error(err))
	}
}

func (s *Server) getCaptureScreenshot(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.loadReport(w, r)
	if !ok {
		return
	}
	if rep.Screenshot == nil {
		writeError(w, http.StatusNotFound, "capture has no screenshot")
		return
	}
	// The annotated image may be recompressed to JPEG, so sniff rather
	// than assume the original encoding.
	data := screenshot.ExportForUpload(*rep.Screenshot)
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("screenshot write failed", zap.Error(err))
	}
}

func (s *Server) addAnnotation(w http.ResponseWriter, r *http.Request) {
	var a capture.Annotation
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if a.Type != capture.AnnotationHighlight && a.Type != capture.AnnotationRedact {
		writeError(w, http.StatusBadRequest, "type must be highlight or redact")
		return
	}
	s.mutateScreenshot(w, r, func(shot capture.Screenshot) capture.Screenshot {
		return screenshot.AddAnnotation(shot, a)
	})
}

func (s *Server) removeLastAnnotation(w http.ResponseWriter, r *http.Request) {
	s.mutateScreenshot(w, r, screenshot.RemoveLastAnnotation)
}

func (s *Server) resetAnnotations(w http.ResponseWriter, r *http.Request) {
	s.mutateScreenshot(w, r, screenshot.ResetAnnotations)
}

// mutateScreenshot applies an annotation-list change, re-renders, and
// persists the updated report.
func (s *Server) mutateScreenshot(w http.ResponseWriter, r *http.Request, fn func(capture.Screenshot) capture.Screenshot) {
	rep, ok := s.loadReport(w, r)
	if !ok {
		return
	}
	if rep.Screenshot == nil {
		writeError(w, http.StatusConflict, "capture has no screenshot")
		return
	}
	shot := fn(*rep.Screenshot)
	rendered, err := screenshot.Render(shot)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render annotations")
		return
	}
	rep.Screenshot = &rendered
	if err := s.reports.Update(r.Context(), rep); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store capture")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          rep.ID,
		"annotations": rendered.Annotations,
	})
}

func (s *Server) loadReport(w http.ResponseWriter, r *http.Request) (capture.Report, bool) {
	id := chi.URLParam(r, "capture_id")
	rep, err := s.reports.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "capture not found")
		return capture.Report{}, false
	}
	return rep, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
