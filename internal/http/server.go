// Package http serves the agent registry and relays graph runs to clients
// as server-sent events.
package http

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"plebchat/internal/runner"
)

// Server exposes /health, /agents, /stream and /runs.
type Server struct {
	svc    *runner.Service
	logger *zap.Logger
}

// NewServer creates a Server over a runner service.
func NewServer(svc *runner.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{svc: svc, logger: logger}
}

// Handler returns the routed handler with CORS and access logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.HealthHandler)
	mux.HandleFunc("GET /agents", s.AgentsHandler)
	mux.HandleFunc("POST /stream", s.StreamHandler)
	mux.HandleFunc("GET /runs", s.RunsHandler)
	return s.withAccessLog(withCORS(mux))
}

// HealthHandler answers GET /health.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type agentEntry struct {
	Data   any         `json:"data"`
	Schema agentSchema `json:"schema"`
}

type agentSchema struct {
	Input  any `json:"input"`
	Config any `json:"config"`
}

// AgentsHandler answers GET /agents with every agent's descriptor and
// schemas in registry order.
func (s *Server) AgentsHandler(w http.ResponseWriter, _ *http.Request) {
	list := make([]agentEntry, 0)
	if reg := s.svc.Registry(); reg != nil {
		for _, a := range reg.List() {
			list = append(list, agentEntry{
				Data:   a.Data(),
				Schema: agentSchema{Input: a.InputSchema, Config: a.ConfigSchema},
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": list})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder keeps the response status for the access log. It forwards
// Flush so streaming still works through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}
