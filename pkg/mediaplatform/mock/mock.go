// Package mock implements mediaplatform.Driver entirely in memory, for
// tests that drive the gateway/receiver without a real Discord connection.
package mock

import (
	"context"
	"sync"

	"github.com/mossgate/voxbridge/pkg/mediaplatform"
)

// Driver hands out Sessions the test can drive directly.
type Driver struct {
	mu       sync.Mutex
	sessions []*Session

	// ConnectErr, when set, is returned by every Connect call instead of a
	// session.
	ConnectErr error
}

// New returns an empty mock Driver.
func New() *Driver {
	return &Driver{}
}

// Sessions returns every Session handed out so far, in creation order.
func (d *Driver) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Session, len(d.sessions))
	copy(out, d.sessions)
	return out
}

// Connect returns a new Session, or ConnectErr if set.
func (d *Driver) Connect(ctx context.Context, params mediaplatform.ConnectParams) (mediaplatform.Session, error) {
	if d.ConnectErr != nil {
		return nil, d.ConnectErr
	}
	sess := &Session{
		params:   params,
		packets:  make(chan mediaplatform.OpusPacket, 256),
		speaking: make(chan mediaplatform.SpeakingEvent, 32),
		sent:     make(chan []byte, 64),
		done:     make(chan struct{}),
	}
	d.mu.Lock()
	d.sessions = append(d.sessions, sess)
	d.mu.Unlock()
	return sess, nil
}

// Session is a controllable mediaplatform.Session.
type Session struct {
	params mediaplatform.ConnectParams

	packets  chan mediaplatform.OpusPacket
	speaking chan mediaplatform.SpeakingEvent
	sent     chan []byte

	once   sync.Once
	done   chan struct{}
	closed bool
	mu     sync.Mutex
}

// Params returns the ConnectParams this session was created with.
func (s *Session) Params() mediaplatform.ConnectParams { return s.params }

// FeedPacket pushes an inbound Opus packet as if received from the wire.
func (s *Session) FeedPacket(pkt mediaplatform.OpusPacket) {
	select {
	case s.packets <- pkt:
	case <-s.done:
	}
}

// FeedSpeaking pushes a speaking-state transition.
func (s *Session) FeedSpeaking(ev mediaplatform.SpeakingEvent) {
	select {
	case s.speaking <- ev:
	case <-s.done:
	}
}

// Sent returns the channel of frames handed to SendOpus.
func (s *Session) Sent() <-chan []byte { return s.sent }

func (s *Session) Packets() <-chan mediaplatform.OpusPacket           { return s.packets }
func (s *Session) SpeakingEvents() <-chan mediaplatform.SpeakingEvent { return s.speaking }

// SendOpus records the frame for inspection via Sent.
func (s *Session) SendOpus(frame []byte) error {
	select {
	case s.sent <- frame:
	case <-s.done:
	default:
	}
	return nil
}

// Close terminates the session and closes all channels.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		close(s.packets)
		close(s.speaking)
	})
	return nil
}

var (
	_ mediaplatform.Driver  = (*Driver)(nil)
	_ mediaplatform.Session = (*Session)(nil)
)
