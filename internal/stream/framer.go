// Package stream frames relay events as Server-Sent Events and flushes each
// one to the client as soon as it is written.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// EventType names an event on the wire.
type EventType string

// Event types emitted by the relay.
const (
	EventMessageStart      EventType = "message_start"
	EventContentBlockStart EventType = "content_block_start"
	EventTextDelta         EventType = "text_delta"
	EventContentBlockStop  EventType = "content_block_stop"
	EventToolUseStart      EventType = "tool_use_start"
	EventToolUseDelta      EventType = "tool_use_delta"
	EventToolUseStop       EventType = "tool_use_stop"
	EventToolResult        EventType = "tool_result"
	EventMessageStop       EventType = "message_stop"
	EventDone              EventType = "done"
	EventError             EventType = "error"
)

// Framing selects how events are laid out on the wire.
type Framing string

const (
	// FramingEvent writes "event: <type>\ndata: <json>\n\n"
	FramingEvent Framing = "event"
	// FramingData writes "data: {"type":..,"data":..}\n\n"
	FramingData Framing = "data"
)

var (
	// ErrClosed is returned by Write after Close
	ErrClosed = errors.New("stream: write after close")
)

// Event is one frame. Data is marshalled as JSON; nil becomes {}.
type Event struct {
	Type EventType
	Data any
}

// Framer serializes events onto a response. SSE headers are committed on
// the first write; until then the caller may still send a plain response.
type Framer struct {
	mu      sync.Mutex
	w       io.Writer
	header  http.Header
	status  func(int)
	flusher http.Flusher
	framing Framing
	started bool
	closed  bool
}

// NewFramer wraps an http.ResponseWriter.
func NewFramer(w http.ResponseWriter, framing Framing) *Framer {
	f := &Framer{
		w:       w,
		header:  w.Header(),
		status:  w.WriteHeader,
		framing: framing,
	}
	if flusher, ok := w.(http.Flusher); ok {
		f.flusher = flusher
	}
	return f
}

// NewWriterFramer frames onto a plain writer, with no headers and no flushing.
func NewWriterFramer(w io.Writer, framing Framing) *Framer {
	return &Framer{w: w, framing: framing}
}

// Write frames evt and flushes it.
func (f *Framer) Write(evt Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}

	frame, err := f.encode(evt)
	if err != nil {
		return err
	}

	if !f.started {
		f.started = true
		if f.header != nil {
			f.header.Set("Content-Type", "text/event-stream")
			f.header.Set("Cache-Control", "no-cache")
			f.header.Set("Connection", "keep-alive")
			f.header.Set("X-Accel-Buffering", "no")
		}
		if f.status != nil {
			f.status(http.StatusOK)
		}
	}

	if _, err := f.w.Write(frame); err != nil {
		return fmt.Errorf("stream: writing %s: %w", evt.Type, err)
	}
	if f.flusher != nil {
		f.flusher.Flush()
	}
	return nil
}

// Started reports whether any bytes have been committed to the client.
func (f *Framer) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// Close marks the stream finished. It is safe to call more than once.
func (f *Framer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *Framer) encode(evt Event) ([]byte, error) {
	data := evt.Data
	if data == nil {
		data = struct{}{}
	}

	switch f.framing {
	case FramingData:
		payload, err := json.Marshal(struct {
			Type EventType `json:"type"`
			Data any       `json:"data"`
		}{evt.Type, data})
		if err != nil {
			return nil, fmt.Errorf("stream: encoding %s: %w", evt.Type, err)
		}
		return []byte("data: " + string(payload) + "\n\n"), nil
	default:
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("stream: encoding %s: %w", evt.Type, err)
		}
		return []byte("event: " + string(evt.Type) + "\ndata: " + string(payload) + "\n\n"), nil
	}
}
