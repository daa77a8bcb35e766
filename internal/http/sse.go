package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"plebchat/internal/graph"
)

// sseWriter frames events as server-sent events and flushes each one.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *zap.Logger
}

func newSSEWriter(w http.ResponseWriter, logger *zap.Logger) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &sseWriter{w: w, flusher: flusher, logger: logger}, true
}

func (s *sseWriter) start() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

// writeEvent sends one event. An event that cannot be marshalled is logged
// and skipped; only write failures are returned.
func (s *sseWriter) writeEvent(ev graph.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("drop unserializable event",
			zap.String("event", ev.Event), zap.String("name", ev.Name), zap.Error(err))
		return nil
	}
	return s.writeData(data)
}

func (s *sseWriter) writeData(data []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
