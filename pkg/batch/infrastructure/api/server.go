// Package api serves the notification endpoint and the read-only run status API.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	"github.com/tigerroll/suicsync/pkg/batch/engine/execution"
	"github.com/tigerroll/suicsync/pkg/batch/engine/flow"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

const maxNotificationBody = 64 << 10

// ExecutionService is the execution side used by the handlers.
type ExecutionService interface {
	GetStatus(ctx context.Context, runID string) (*model.ExecutionRecord, error)
	HandleNotification(ctx context.Context, n execution.Notification) (*model.ExecutionRecord, bool, error)
}

// FlowReader reads the flow view of a run.
type FlowReader interface {
	Get(ctx context.Context, runID string) (flow.View, error)
}

// ReportReader reads the aggregated report of a run.
type ReportReader interface {
	Query(ctx context.Context, runID string, filter model.ReportFilter) (*model.ReportResult, error)
}

// Handlers groups the HTTP endpoints. Reports and Metrics are optional.
type Handlers struct {
	Executions ExecutionService
	Flows      FlowReader
	Reports    ReportReader
	Metrics    http.Handler
	// Token is the bearer token required on notifications. Empty disables the check.
	Token string
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type notificationResponse struct {
	Applied   bool                   `json:"applied"`
	Execution *model.ExecutionRecord `json:"execution"`
}

type executionResponse struct {
	RunID     string                 `json:"runId"`
	Execution *model.ExecutionRecord `json:"execution"`
}

// Routes returns the request multiplexer of h.
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /notifications/executions", h.handleNotification)
	mux.HandleFunc("GET /runs/{runID}/execution", h.handleExecution)
	mux.HandleFunc("GET /runs/{runID}/flow", h.handleFlow)
	if h.Reports != nil {
		mux.HandleFunc("GET /runs/{runID}/report", h.handleReport)
	}
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return logRequests(mux)
}

func (h *Handlers) authorized(r *http.Request) bool {
	if h.Token == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(h.Token)) == 1
}

func (h *Handlers) handleNotification(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing or invalid bearer token"})
		return
	}
	var n execution.Notification
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxNotificationBody))
	if err := dec.Decode(&n); err != nil {
		writeError(w, exception.Validation("api", "malformed notification body", err))
		return
	}
	record, applied, err := h.Executions.HandleNotification(r.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notificationResponse{Applied: applied, Execution: record})
}

func (h *Handlers) handleExecution(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	record, err := h.Executions.GetStatus(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executionResponse{RunID: runID, Execution: record})
}

func (h *Handlers) handleFlow(w http.ResponseWriter, r *http.Request) {
	view, err := h.Flows.Get(r.Context(), r.PathValue("runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) handleReport(w http.ResponseWriter, r *http.Request) {
	filter := model.ReportFilter{Keys: r.URL.Query()["key"]}
	result, err := h.Reports.Query(r.Context(), r.PathValue("runID"), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// StatusOf maps an error kind to an HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, exception.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, exception.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, exception.ErrOptimisticLockingFailure):
		return http.StatusConflict
	case errors.Is(err, exception.ErrDispatch):
		return http.StatusBadGateway
	case errors.Is(err, exception.ErrConnectivity), errors.Is(err, exception.ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	resp := errorResponse{Error: exception.ExtractErrorMessage(err)}
	if kind := exception.KindOf(err); kind != nil {
		resp.Kind = kind.Error()
	}
	if status >= http.StatusInternalServerError {
		logger.Errorf("API: %v", err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warnf("API: failed to write response: %v", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debugf("API: %s %s -> %d (%v)", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}

// Server runs the handlers on one listen address.
type Server struct {
	srv *http.Server
}

// NewServer creates a server for h on addr.
func NewServer(addr string, h *Handlers) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("API: listening on %s.", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return exception.NewBatchErrorf("api", exception.ErrConnectivity, "server on %s stopped", s.srv.Addr, err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Infof("API: shutting down %s.", s.srv.Addr)
	return s.srv.Shutdown(shutdownCtx)
}
