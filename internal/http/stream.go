package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"plebchat/internal/agents"
	"plebchat/internal/runner"
	"plebchat/internal/schema"
)

// maxRunsLimit caps GET /runs.
const maxRunsLimit = 200

// StreamRequest is the JSON payload accepted by /stream.
type StreamRequest struct {
	AgentID   string         `json:"agent_id"`
	InputData map[string]any `json:"input_data,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
}

type validationBody struct {
	Message    string             `json:"message"`
	Violations []schema.Violation `json:"violations,omitempty"`
}

// StreamHandler is an HTTP handler for POST /stream that runs one agent and
// relays its events as SSE.
func (s *Server) StreamHandler(w http.ResponseWriter, r *http.Request) {
	var req StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.InputData == nil {
		req.InputData = map[string]any{agents.MessagesKey: []any{}}
	}
	if req.Config == nil {
		req.Config = map[string]any{}
	}

	sse, ok := newSSEWriter(w, s.logger)
	if !ok {
		writeMessage(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	events, err := s.svc.Run(ctx, runner.Request{
		AgentID: req.AgentID,
		Input:   req.InputData,
		Config:  req.Config,
	})
	if err != nil {
		s.writeRunError(w, req.AgentID, err)
		return
	}

	sse.start()
	for ev := range events {
		if err := sse.writeEvent(ev); err != nil {
			s.logger.Debug("client went away", zap.String("agent", req.AgentID), zap.Error(err))
			return
		}
	}
}

func (s *Server) writeRunError(w http.ResponseWriter, agentID string, err error) {
	switch {
	case errors.Is(err, runner.ErrAgentNotFound):
		writeMessage(w, http.StatusNotFound, "Agent not found")
	case errors.Is(err, runner.ErrInvalidRequest):
		body := validationBody{Message: err.Error()}
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			body.Violations = verr.Violations
		}
		writeJSON(w, http.StatusUnprocessableEntity, body)
	default:
		s.logger.Error("start run failed", zap.String("agent", agentID), zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, err.Error())
	}
}

// RunsHandler answers GET /runs with the latest recorded runs.
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}
	runs, err := s.svc.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	if runs == nil {
		runs = []runner.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
