// Package ws implements an stt.Provider backed by a generic JSON/binary
// framed streaming WebSocket, per spec.md §6's "STT provider" contract:
// the client opens a connection, sends a JSON config frame, then streams
// PCM s16le audio as binary frames; the server streams back typed JSON
// events.
//
// The wire shape mirrors github.com/MrWong99/glyphoxa's Deepgram provider
// (one goroutine reading, one goroutine writing) but authenticates with a
// bearer Authorization header,
// speaks the spec's own config-frame/event-frame protocol instead of
// Deepgram's native one, and reconnects with exponential backoff on an
// unexpected close.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/mossgate/voxbridge/pkg/provider/stt"
)

const (
	defaultReconnectInterval = 500 * time.Millisecond
	defaultMaxReconnectAttempts = 5
	maxBackoff                  = 60 * time.Second

	// wsConfigSampleRate is the sample rate advertised in the outbound config
	// frame. It is a fixed value of the server's own wire contract, not a
	// reflection of cfg.SampleRate: the pipeline always feeds this provider
	// 16 kHz mono regardless of what the config frame claims.
	wsConfigSampleRate = 48000
)

// Option configures a Provider.
type Option func(*Provider)

// WithAPIKey sets the bearer token sent as an Authorization header.
func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = key }
}

// WithReconnect configures the reconnect backoff base interval and the
// maximum number of attempts before a session gives up and closes.
func WithReconnect(interval time.Duration, maxAttempts int) Option {
	return func(p *Provider) {
		p.reconnectInterval = interval
		p.maxReconnectAttempts = maxAttempts
	}
}

// Provider implements stt.Provider over a JSON/binary framed WebSocket.
type Provider struct {
	endpoint string
	apiKey   string

	reconnectInterval     time.Duration
	maxReconnectAttempts  int
}

// New creates a Provider dialing endpoint for every new session.
func New(endpoint string, opts ...Option) *Provider {
	p := &Provider{
		endpoint:             endpoint,
		reconnectInterval:    defaultReconnectInterval,
		maxReconnectAttempts: defaultMaxReconnectAttempts,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// configFrame is the outbound JSON frame sent immediately after connecting.
type configFrame struct {
	Type           string  `json:"type"`
	SampleRate     int     `json:"sample_rate"`
	Channels       int     `json:"channels"`
	Encoding       string  `json:"encoding"`
	Language       string  `json:"language,omitempty"`
	InterimResults bool    `json:"interim_results"`
	Temperature    float64 `json:"temperature,omitempty"`
}

// StartStream dials endpoint, sends the config frame, and returns a live
// session. The session reconnects transparently on transport loss using
// exponential backoff, re-sending the original config frame.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	sess := &session{
		provider: p,
		cfg:      cfg,
		events:   make(chan stt.Event, 64),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}

	conn, err := p.dial(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ws: initial dial: %w", err)
	}
	sess.setConn(conn)

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// dial opens a new WebSocket connection and sends the config frame.
func (p *Provider) dial(ctx context.Context, cfg stt.StreamConfig) (*websocket.Conn, error) {
	headers := http.Header{}
	if p.apiKey != "" {
		headers.Set("Authorization", "Bearer "+p.apiKey)
	}

	conn, _, err := websocket.Dial(ctx, p.endpoint, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	payload, err := json.Marshal(buildConfigFrame(cfg))
	if err != nil {
		conn.Close(websocket.StatusInternalError, "marshal config")
		return nil, fmt.Errorf("marshal config frame: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		conn.Close(websocket.StatusInternalError, "write config")
		return nil, fmt.Errorf("write config frame: %w", err)
	}
	return conn, nil
}

// buildConfigFrame builds the config frame sent immediately after dialing.
// SampleRate is always wsConfigSampleRate: it documents the server's wire
// contract, not the rate cfg actually streams (the pipeline's own feed rate,
// typically 16000, is irrelevant to this field).
func buildConfigFrame(cfg stt.StreamConfig) configFrame {
	return configFrame{
		Type:           "config",
		SampleRate:     wsConfigSampleRate,
		Channels:       cfg.Channels,
		Encoding:       "pcm_s16le",
		Language:       cfg.Language,
		InterimResults: cfg.InterimResults,
		Temperature:    cfg.Temperature,
	}
}

// eventFrame is the shape of an inbound server message; fields not relevant
// to the frame's type are left zero.
type eventFrame struct {
	Type       string  `json:"type"`
	TimestampMs int64  `json:"timestamp_ms"`
	DurationMs  int64  `json:"duration_ms"`
	Text        string  `json:"text"`
	Language    string  `json:"language"`
	Confidence  float64 `json:"confidence"`
	IsFinal     bool    `json:"is_final"`
}

// toEvent maps a raw event frame to an stt.Event. Returns ok=false for
// frames that should be ignored.
func toEvent(f eventFrame) (stt.Event, bool) {
	switch f.Type {
	case "speech_start":
		return stt.Event{Kind: stt.SpeechStart, Timestamp: time.Duration(f.TimestampMs) * time.Millisecond}, true
	case "partial":
		return stt.Event{Kind: stt.Partial, Text: f.Text}, true
	case "final":
		return stt.Event{
			Kind:       stt.Final,
			Text:       f.Text,
			Language:   f.Language,
			Confidence: f.Confidence,
			Duration:   time.Duration(f.DurationMs) * time.Millisecond,
		}, true
	case "speech_end":
		return stt.Event{
			Kind:      stt.SpeechEnd,
			Timestamp: time.Duration(f.TimestampMs) * time.Millisecond,
			Duration:  time.Duration(f.DurationMs) * time.Millisecond,
		}, true
	case "transcript":
		// Alternative server shape: a single "transcript" event type carrying
		// is_final, mapped onto final/partial.
		if f.IsFinal {
			return stt.Event{Kind: stt.Final, Text: f.Text, Confidence: f.Confidence}, true
		}
		return stt.Event{Kind: stt.Partial, Text: f.Text}, true
	default:
		return stt.Event{}, false
	}
}

// session is a live streaming session. It implements stt.SessionHandle.
type session struct {
	provider *Provider
	cfg      stt.StreamConfig

	events chan stt.Event
	audio  chan []byte
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	connMu sync.RWMutex
	conn   *websocket.Conn
}

func (s *session) setConn(c *websocket.Conn) {
	s.connMu.Lock()
	s.conn = c
	s.connMu.Unlock()
}

func (s *session) getConn() *websocket.Conn {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.conn
}

// SendAudio queues a PCM chunk for delivery over the current connection.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("ws: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("ws: session is closed")
	}
}

// Events returns the channel of session events.
func (s *session) Events() <-chan stt.Event { return s.events }

// Close terminates the session cleanly, sending an end_of_stream frame.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		if conn := s.getConn(); conn != nil {
			_ = conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"end_of_stream"}`))
		}
		s.wg.Wait()
		if conn := s.getConn(); conn != nil {
			conn.Close(websocket.StatusNormalClosure, "session closed")
		}
	})
	return nil
}

// writeLoop drains the audio channel to the current connection, reconnecting
// with exponential backoff if a write fails.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			conn := s.getConn()
			if conn == nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				s.reconnect(ctx)
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// readLoop receives event frames from the current connection, reconnecting
// on unexpected close until the backoff budget is exhausted.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)

	for {
		conn := s.getConn()
		if conn == nil {
			return
		}
		_, msg, err := conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
				return
			case <-ctx.Done():
				return
			default:
			}
			if !s.reconnect(ctx) {
				return
			}
			continue
		}

		var frame eventFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue
		}
		ev, ok := toEvent(frame)
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// reconnect attempts to re-dial with exponential backoff capped at
// maxBackoff, up to maxReconnectAttempts tries. Returns false if the budget
// was exhausted or the session was closed meanwhile.
func (s *session) reconnect(ctx context.Context) bool {
	backoff := s.provider.reconnectInterval
	for attempt := 1; attempt <= s.provider.maxReconnectAttempts; attempt++ {
		select {
		case <-s.done:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, err := s.provider.dial(ctx, s.cfg)
		if err == nil {
			s.setConn(conn)
			return true
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return false
}
