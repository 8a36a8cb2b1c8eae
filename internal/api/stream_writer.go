package api

import (
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

// SSEStreamWriter emits generation events as server-sent events:
// generation.created, generation.delta per text chunk, then either
// generation.completed or generation.failed.
type SSEStreamWriter struct {
	mu      sync.Mutex
	w       io.Writer
	flusher func()
	id      string
	seq     int
	begun   bool
	err     error
}

func NewSSEStreamWriter(c *echo.Context, id string) (*SSEStreamWriter, error) {
	res := c.Response()
	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")

	return &SSEStreamWriter{
		w:       res,
		flusher: flusher.Flush,
		id:      id,
		seq:     1,
	}, nil
}

func (s *SSEStreamWriter) Begin(g Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begun = true
	return s.send(streamEvent{Type: "generation.created", Generation: &g, SequenceNumber: s.seq})
}

func (s *SSEStreamWriter) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begun
}

// Delta matches inference.StreamFunc. Write errors are kept and reported by
// Err; the client going away also cancels the request context.
func (s *SSEStreamWriter) Delta(row int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	s.err = s.send(streamDelta{
		Type:           "generation.delta",
		GenerationID:   s.id,
		Row:            row,
		Delta:          text,
		SequenceNumber: s.seq,
	})
}

func (s *SSEStreamWriter) Complete(g Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send(streamEvent{Type: "generation.completed", Generation: &g, SequenceNumber: s.seq})
}

func (s *SSEStreamWriter) Fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, errType, code := classify(err)
	return s.send(streamEvent{
		Type:           "generation.failed",
		Error:          &ResponseError{Message: err.Error(), Type: errType, Code: code, Param: paramFor(err)},
		SequenceNumber: s.seq,
	})
}

func (s *SSEStreamWriter) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *SSEStreamWriter) send(payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	s.seq++
	if s.flusher != nil {
		s.flusher()
	}
	return nil
}
