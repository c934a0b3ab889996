// Package server implements the kubesage HTTP service: kubeconfig
// upload, diagnostic queries, and conversation lifecycle.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kubesage/kubesage/internal/agent"
	"github.com/kubesage/kubesage/internal/frontend"
	"github.com/kubesage/kubesage/internal/telemetry"
	"github.com/kubesage/kubesage/internal/validation"
)

// ClusterAccess is the kubeconfig-backed cluster client the server
// manages through uploads.
type ClusterAccess interface {
	Path() string
	Invalidate()
}

// Server is the kubesage HTTP server.
type Server struct {
	conv      *agent.Conversation
	cluster   ClusterAccess
	validator *validation.Validator
	metrics   *telemetry.Metrics
	mux       *http.ServeMux
	server    *http.Server
	logger    *slog.Logger
	startTime time.Time
	apiKey    string
	version   string

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) { s.apiKey = key }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics sets the metrics registry and exposes /metrics.
func WithMetrics(m *telemetry.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithValidator sets the answer-quality validator.
func WithValidator(v *validation.Validator) ServerOption {
	return func(s *Server) { s.validator = v }
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// WithTimeouts sets the HTTP read and write timeouts. The write timeout
// bounds a full agent turn, so it is much longer than usual.
func WithTimeouts(read, write time.Duration) ServerOption {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
	}
}

// NewServer creates the kubesage HTTP server.
func NewServer(conv *agent.Conversation, cluster ClusterAccess, opts ...ServerOption) *Server {
	s := &Server{
		conv:      conv,
		cluster:   cluster,
		logger:    slog.Default(),
		startTime: time.Now(),
		version:   "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("POST /clear", s.handleClear)
	mux.HandleFunc("POST /cleanup-all", s.handleCleanupAll)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.Handle("/", frontend.NewHandler("/"))

	s.mux = mux
	return s
}

// Handler returns the HTTP handler for use with httptest or custom servers.
func (s *Server) Handler() http.Handler {
	return s.authMiddleware(s.mux)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.authMiddleware(s.mux),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}
	s.logger.Info("server starting", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and removes the uploaded
// kubeconfig so credentials don't outlive the process.
func (s *Server) Shutdown(ctx context.Context) error {
	s.removeKubeconfig()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				key = auth[7:]
			}
		}

		if key != s.apiKey {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"uptime":     time.Since(s.startTime).String(),
		"kubeconfig": s.kubeconfigPresent(),
		"version":    s.version,
	})
}

// handleUpload stores the posted kubeconfig at the fixed path and
// invalidates the cached cluster client so the next query rebuilds it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Expected a multipart upload with a 'file' field")
		return
	}
	defer file.Close()

	target := s.cluster.Path()
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Could not prepare upload directory")
		return
	}

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Could not store kubeconfig")
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Could not store kubeconfig")
		return
	}

	s.cluster.Invalidate()
	s.logger.Info("kubeconfig uploaded", "path", target)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Kubeconfig uploaded successfully.",
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string `json:"query"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Query must not be empty")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}
	if !s.kubeconfigPresent() {
		writeError(w, http.StatusBadRequest, "no_kubeconfig", "No kubeconfig uploaded. Upload one via /upload first.")
		return
	}

	ctx := telemetry.WithCorrelationID(r.Context(), telemetry.NewCorrelationID())
	logger := telemetry.RequestLogger(s.logger, ctx, req.SessionID)

	turn, err := s.conv.Ask(ctx, req.SessionID, req.Query)
	if err != nil {
		logger.Error("query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	if s.validator != nil {
		result := s.validator.Validate(validation.TurnContext{
			Answer:          turn.Output,
			ToolCalls:       len(turn.ToolCalls),
			Rounds:          turn.Rounds,
			BudgetExhausted: turn.BudgetExhausted,
		})
		for _, msg := range result.Failures() {
			logger.Warn("answer quality", "issue", msg)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":    req.Query,
		"response": turn.Output,
	})
}

// handleClear resets one conversation and removes the uploaded
// kubeconfig, returning the service to its pre-upload state.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if req.SessionID != "" {
		if err := s.conv.Reset(r.Context(), req.SessionID); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
	}
	s.removeKubeconfig()

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Conversation memory and kubeconfig cleared.",
	})
}

func (s *Server) handleCleanupAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.conv.ResetAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	s.removeKubeconfig()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":          "All conversations and kubeconfig cleared.",
		"sessions_cleared": n,
	})
}

func (s *Server) kubeconfigPresent() bool {
	_, err := os.Stat(s.cluster.Path())
	return err == nil
}

func (s *Server) removeKubeconfig() {
	path := s.cluster.Path()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("could not remove kubeconfig", "path", path, "error", err)
		return
	}
	s.cluster.Invalidate()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
