package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

type StreamMode string

const (
	StreamInstant StreamMode = "instant"
	StreamSmooth  StreamMode = "smooth"
	StreamQuiet   StreamMode = "quiet"
)

func parseStreamMode(s string) (StreamMode, error) {
	switch m := StreamMode(strings.ToLower(strings.TrimSpace(s))); m {
	case StreamInstant, StreamSmooth, StreamQuiet:
		return m, nil
	case "":
		return StreamInstant, nil
	}
	return "", fmt.Errorf("unknown stream mode %q (instant, smooth, quiet)", s)
}

// StreamWriter prints generated text for one row as it arrives.
type StreamWriter struct {
	mode   StreamMode
	raw    bool
	buffer *bufio.Writer

	mu            sync.Mutex
	batch         strings.Builder
	lastFlush     time.Time
	flushInterval time.Duration
	accumulator   strings.Builder
}

func NewStreamWriter(w io.Writer, mode StreamMode, raw bool) *StreamWriter {
	return &StreamWriter{
		mode:          mode,
		raw:           raw,
		buffer:        bufio.NewWriterSize(w, 4096),
		lastFlush:     time.Now(),
		flushInterval: 50 * time.Millisecond,
	}
}

// Write takes one decoded chunk.
func (w *StreamWriter) Write(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.accumulator.WriteString(text)
	switch w.mode {
	case StreamInstant:
		w.emit(text)
		_ = w.buffer.Flush()
	case StreamSmooth:
		w.batch.WriteString(text)
		if time.Since(w.lastFlush) >= w.flushInterval {
			w.flushBatch()
		}
	}
}

// Flush writes anything still held and returns the full text.
func (w *StreamWriter) Flush() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.mode {
	case StreamQuiet:
		w.emit(w.accumulator.String())
	case StreamSmooth:
		w.flushBatch()
	}
	_ = w.buffer.Flush()
	return w.accumulator.String()
}

func (w *StreamWriter) flushBatch() {
	if w.batch.Len() == 0 {
		return
	}
	w.emit(w.batch.String())
	_ = w.buffer.Flush()
	w.batch.Reset()
	w.lastFlush = time.Now()
}

func (w *StreamWriter) emit(text string) {
	if w.raw {
		text = escapeRawOutput(text)
	}
	_, _ = w.buffer.WriteString(text)
}

// escapeRawOutput makes control characters visible, keeping newlines.
func escapeRawOutput(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || strconv.IsPrint(r) {
			b.WriteRune(r)
			continue
		}
		q := strconv.QuoteRune(r)
		b.WriteString(q[1 : len(q)-1])
	}
	return b.String()
}
