// Package mock implements an stt.Provider entirely in memory, for tests
// that drive the voice pipeline without a real transcription backend.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/mossgate/voxbridge/pkg/provider/stt"
)

// Provider is a test double that hands out Sessions the test can drive
// directly via Feed/Close, rather than reacting to audio content.
type Provider struct {
	mu       sync.Mutex
	sessions []*Session

	// StartErr, when set, is returned by every StartStream call instead of a
	// session.
	StartErr error
}

// New returns an empty mock Provider.
func New() *Provider {
	return &Provider{}
}

// Sessions returns every Session handed out so far, in creation order.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// StartStream returns a new Session, or StartErr if set.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	sess := &Session{
		cfg:    cfg,
		events: make(chan stt.Event, 64),
		sent:   make(chan []byte, 256),
		done:   make(chan struct{}),
	}
	p.mu.Lock()
	p.sessions = append(p.sessions, sess)
	p.mu.Unlock()
	return sess, nil
}

// Session is a controllable stt.SessionHandle. Tests call Emit to push
// events as if the backend produced them, and inspect Sent for audio the
// pipeline fed in.
type Session struct {
	cfg stt.StreamConfig

	events chan stt.Event
	sent   chan []byte
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	closed bool
}

// Config returns the StreamConfig this session was started with.
func (s *Session) Config() stt.StreamConfig { return s.cfg }

// Emit pushes an event to the session's Events channel, as if received from
// a real backend. It is a no-op after Close.
func (s *Session) Emit(ev stt.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Sent returns the channel of audio chunks handed to SendAudio.
func (s *Session) Sent() <-chan []byte { return s.sent }

// SendAudio records the chunk for inspection via Sent.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return errors.New("mock: session is closed")
	}
	select {
	case s.sent <- chunk:
		return nil
	case <-s.done:
		return errors.New("mock: session is closed")
	}
}

// Events returns the channel of session events.
func (s *Session) Events() <-chan stt.Event { return s.events }

// Close terminates the session and closes Events.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		close(s.events)
	})
	return nil
}

var (
	_ stt.Provider      = (*Provider)(nil)
	_ stt.SessionHandle = (*Session)(nil)
)
