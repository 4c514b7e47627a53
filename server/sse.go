package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// SSE event names.
const (
	eventStart    = "start"
	eventProgress = "progress"
	eventComplete = "complete"
	eventError    = "error"
)

var errNoFlusher = errors.New("server: response writer does not support flushing")

// sseMessage is the payload of every "data:" line.
type sseMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// progressData is the payload of a progress event.
type progressData struct {
	Progress int    `json:"progress"`
	Details  string `json:"details"`
}

// sseWriter serializes events onto one streaming response. It is safe for
// concurrent use; after the first write error every send is a no-op.
type sseWriter struct {
	mu  sync.Mutex
	w   http.ResponseWriter
	f   http.Flusher
	err error
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errNoFlusher
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &sseWriter{w: w, f: f}, nil
}

func (s *sseWriter) send(event string, data any) error {
	b, err := json.Marshal(sseMessage{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("server: marshal %s event: %w", event, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		s.err = err
		return err
	}
	s.f.Flush()
	return nil
}

// Report implements dupefy.ProgressReporter.
func (s *sseWriter) Report(percent int, message string) {
	_ = s.send(eventProgress, progressData{Progress: percent, Details: message})
}
