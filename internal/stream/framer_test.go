package stream

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flushRecorder struct {
	*httptest.ResponseRecorder
	flushes int
}

func (r *flushRecorder) Flush() {
	r.flushes++
	r.ResponseRecorder.Flush()
}

func TestFramerEventFraming(t *testing.T) {
	rec := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
	f := NewFramer(rec, FramingEvent)

	assert.False(t, f.Started())
	require.NoError(t, f.Write(Event{Type: EventTextDelta, Data: TextDelta{Text: "Hel", Index: 0}}))
	require.NoError(t, f.Write(Event{Type: EventDone}))

	assert.True(t, f.Started())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, 2, rec.flushes)
	assert.Equal(t,
		"event: text_delta\ndata: {\"text\":\"Hel\",\"index\":0}\n\n"+
			"event: done\ndata: {}\n\n",
		rec.Body.String())
}

func TestFramerDataFraming(t *testing.T) {
	var buf bytes.Buffer
	f := NewWriterFramer(&buf, FramingData)

	require.NoError(t, f.Write(Event{Type: EventError, Data: Error{Kind: "timeout", Message: "Request timed out"}}))
	assert.Equal(t,
		"data: {\"type\":\"error\",\"data\":{\"kind\":\"timeout\",\"message\":\"Request timed out\"}}\n\n",
		buf.String())
}

func TestFramerWriteAfterClose(t *testing.T) {
	var buf bytes.Buffer
	f := NewWriterFramer(&buf, FramingEvent)

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
	assert.ErrorIs(t, f.Write(Event{Type: EventDone}), ErrClosed)
	assert.Empty(t, buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestFramerTransportError(t *testing.T) {
	f := NewWriterFramer(failingWriter{}, FramingEvent)
	err := f.Write(Event{Type: EventDone})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
}

func TestFramerUnencodableData(t *testing.T) {
	var buf bytes.Buffer
	f := NewWriterFramer(&buf, FramingEvent)
	err := f.Write(Event{Type: EventToolResult, Data: map[string]any{"bad": make(chan int)}})
	require.Error(t, err)
	assert.False(t, f.Started())
}
