// Package sse frames wire events as Server-Sent Events. Framing is 1:1 and
// order-preserving; the output is a single-pass byte stream terminated by the
// [DONE] sentinel.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// DoneFrame is the terminal sentinel frame.
var DoneFrame = []byte("data: [DONE]\n\n")

// Frame JSON-encodes a wire event into one SSE data frame.
func Frame(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode sse event: %w", err)
	}
	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}

// Writer streams frames to an HTTP response, flushing after every frame so
// events reach the client immediately.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares the response for event streaming and returns a Writer.
// Returns an error if the transport cannot flush.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

// Send frames and writes one wire event.
func (s *Writer) Send(v any) error {
	frame, err := Frame(v)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Done writes the terminal sentinel.
func (s *Writer) Done() error {
	if _, err := s.w.Write(DoneFrame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
