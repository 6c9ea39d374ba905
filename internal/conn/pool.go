// Package conn tracks the relay streams that are currently open so they can
// be capped per client and cancelled on shutdown.
package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTooManyStreams is returned by Open when the client is at its cap
var ErrTooManyStreams = errors.New("too many concurrent streams")

// StreamID identifies an open stream. Request IDs are used.
type StreamID string

// Stream represents an active relay stream
type Stream struct {
	ID        StreamID
	ClientIP  string
	CreatedAt time.Time
	cancel    context.CancelFunc
}

// Pool manages the active streams between clients and the relay
type Pool struct {
	maxPerClient    int
	streams         map[StreamID]*Stream
	streamsByClient map[string]map[StreamID]struct{}
	now             func() time.Time
	mu              sync.RWMutex
}

// NewPool creates a new stream pool. maxPerClient <= 0 disables the cap.
func NewPool(maxPerClient int) *Pool {
	return &Pool{
		maxPerClient:    maxPerClient,
		streams:         make(map[StreamID]*Stream),
		streamsByClient: make(map[string]map[StreamID]struct{}),
		now:             time.Now,
	}
}

// Open registers a stream and returns a context cancelled by CancelAll, and
// the function that removes the stream again.
func (p *Pool) Open(parent context.Context, id StreamID, clientIP string) (context.Context, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.streams[id]; exists {
		return nil, nil, fmt.Errorf("stream %s already open", id)
	}
	if p.maxPerClient > 0 && len(p.streamsByClient[clientIP]) >= p.maxPerClient {
		return nil, nil, fmt.Errorf("%w: %d open for %s", ErrTooManyStreams, len(p.streamsByClient[clientIP]), clientIP)
	}

	ctx, cancel := context.WithCancel(parent)
	p.streams[id] = &Stream{
		ID:        id,
		ClientIP:  clientIP,
		CreatedAt: p.now(),
		cancel:    cancel,
	}

	// Track streams by client
	if _, exists := p.streamsByClient[clientIP]; !exists {
		p.streamsByClient[clientIP] = make(map[StreamID]struct{})
	}
	p.streamsByClient[clientIP][id] = struct{}{}

	return ctx, func() { p.remove(id) }, nil
}

func (p *Pool) remove(id StreamID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, exists := p.streams[id]
	if !exists {
		return
	}
	s.cancel()

	if clientStreams, exists := p.streamsByClient[s.ClientIP]; exists {
		delete(clientStreams, id)
		if len(clientStreams) == 0 {
			delete(p.streamsByClient, s.ClientIP)
		}
	}
	delete(p.streams, id)
}

// Get returns a stream by ID
func (p *Pool) Get(id StreamID) (*Stream, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, exists := p.streams[id]
	return s, exists
}

// ClientStreamIDs returns all stream IDs for a given client address
func (p *Pool) ClientStreamIDs(clientIP string) []StreamID {
	p.mu.RLock()
	defer p.mu.RUnlock()

	clientStreams, exists := p.streamsByClient[clientIP]
	if !exists {
		return nil
	}

	ids := make([]StreamID, 0, len(clientStreams))
	for id := range clientStreams {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of open streams
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.streams)
}

// CancelAll cancels every open stream and returns how many there were.
// Streams stay registered until their owners call the release function.
func (p *Pool) CancelAll() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, s := range p.streams {
		s.cancel()
	}
	return len(p.streams)
}
