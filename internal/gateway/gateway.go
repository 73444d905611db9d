// Package gateway implements VoiceGateway: the per-guild media connection
// state machine. It buffers the two asynchronous handshake halves
// (session credential, media endpoint+token), drives the media driver
// through Connect/Close, and reconnects with exponential backoff on
// transport loss.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mossgate/voxbridge/pkg/mediaplatform"
	"github.com/mossgate/voxbridge/pkg/types"
)

const (
	defaultMaxReconnectAttempts = 10
	defaultBackoff              = 1 * time.Second
	defaultMaxBackoff           = 60 * time.Second
)

// ErrInvalidTransition is returned when a caller requests a state
// transition that §4.1's validated set does not allow.
var ErrInvalidTransition = errors.New("gateway: invalid state transition")

// ErrNotConnected is returned by Play when no media session is active.
var ErrNotConnected = errors.New("gateway: not connected")

// ControlTransport sends the outbound half of the join handshake. The
// inbound halves (session credential, media endpoint+token) arrive via
// HandleVoiceState/HandleVoiceServer instead, since they are pushed
// asynchronously by the platform rather than returned from this call.
type ControlTransport interface {
	SendJoin(ctx context.Context, guildID, channelID string, selfMute, selfDeaf bool) error
}

// Config configures a Gateway.
type Config struct {
	GuildID   string
	BotUserID string

	Driver  mediaplatform.Driver
	Control ControlTransport

	// OnSession is called after every successful connect, initial or
	// reconnect, with the new Session. Typically wired to start an
	// AudioReceiver against it.
	OnSession func(mediaplatform.Session)

	MaxReconnectAttempts int
	Backoff               time.Duration
	MaxBackoff            time.Duration
}

// Gateway owns one guild's media connection lifecycle.
type Gateway struct {
	cfg Config

	mu        sync.Mutex
	state     types.ConnectionState
	channelID string
	since     time.Time
	attempt   int
	session   mediaplatform.Session

	pendingVoiceState  *types.VoiceStateData
	pendingVoiceServer *types.VoiceServerData
	lastParams         mediaplatform.ConnectParams

	disconnected chan struct{}
	done         chan struct{}
	stopOnce     sync.Once
}

// New returns a Gateway in the Disconnected state. Zero-valued
// MaxReconnectAttempts/Backoff/MaxBackoff fall back to 10/1s/60s.
func New(cfg Config) *Gateway {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	return &Gateway{
		cfg:          cfg,
		state:        types.Disconnected,
		since:        time.Now(),
		disconnected: make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Snapshot returns a read-only view of the gateway's current state.
func (g *Gateway) Snapshot() types.ConnectionSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return types.ConnectionSnapshot{
		State:      g.state,
		GuildID:    g.cfg.GuildID,
		ChannelID:  g.channelID,
		Since:      g.since,
		Attempt:    g.attempt,
		MaxAttempt: g.cfg.MaxReconnectAttempts,
	}
}

// Join requests joining channelID: sends the control-transport join command
// and transitions Disconnected -> Connecting. The handshake completes
// asynchronously via HandleVoiceState/HandleVoiceServer.
func (g *Gateway) Join(ctx context.Context, channelID string) error {
	g.mu.Lock()
	if g.state != types.Disconnected {
		g.mu.Unlock()
		return fmt.Errorf("gateway: join guild %s: %w", g.cfg.GuildID, ErrInvalidTransition)
	}
	g.setStateLocked(types.Connecting, channelID)
	g.mu.Unlock()

	return g.cfg.Control.SendJoin(ctx, g.cfg.GuildID, channelID, false, false)
}

// HandleVoiceState processes an inbound session-credential event. Events
// for a different guild or a different user than the bot are ignored. An
// empty ChannelID means the bot was removed from its channel.
func (g *Gateway) HandleVoiceState(ctx context.Context, d types.VoiceStateData) {
	if d.GuildID != g.cfg.GuildID || d.UserID != g.cfg.BotUserID {
		return
	}
	if d.ChannelID == "" {
		g.leave()
		return
	}

	g.mu.Lock()
	g.pendingVoiceState = &d
	g.mu.Unlock()
	g.tryAssemble(ctx)
}

// HandleVoiceServer processes an inbound media-endpoint event. An endpoint
// change while already Connected (e.g. a voice server migration) never
// leaves the Connected state directly for Connecting — that transition is
// outside the validated set in §4.1 — it is instead folded into the
// existing Connected -> Reconnecting -> Connected backoff path, reusing the
// session credential already on file (or the one that arrived while
// Connected, if any).
func (g *Gateway) HandleVoiceServer(ctx context.Context, d types.VoiceServerData) {
	if d.GuildID != g.cfg.GuildID {
		return
	}

	g.mu.Lock()
	if g.state == types.Connected {
		if vs := g.pendingVoiceState; vs != nil {
			g.lastParams.SessionID = vs.SessionID
			g.lastParams.ChannelID = vs.ChannelID
			g.pendingVoiceState = nil
		}
		g.lastParams.Token = d.Token
		g.lastParams.Endpoint = sanitizeEndpoint(d.Endpoint)
		g.mu.Unlock()
		go g.attemptReconnect(ctx)
		return
	}
	g.pendingVoiceServer = &d
	g.mu.Unlock()
	g.tryAssemble(ctx)
}

// tryAssemble consumes both handshake halves atomically once present,
// validates them, and starts a connection attempt.
func (g *Gateway) tryAssemble(ctx context.Context) {
	g.mu.Lock()
	if g.pendingVoiceState == nil || g.pendingVoiceServer == nil {
		g.mu.Unlock()
		return
	}
	vs := *g.pendingVoiceState
	vsrv := *g.pendingVoiceServer
	g.pendingVoiceState = nil
	g.pendingVoiceServer = nil
	g.mu.Unlock()

	if vs.GuildID == "" || vs.UserID == "" {
		slog.Warn("gateway: dropping handshake with zero guild or user id", "guild_id", vs.GuildID)
		return
	}

	params := mediaplatform.ConnectParams{
		GuildID:   vs.GuildID,
		ChannelID: vs.ChannelID,
		UserID:    vs.UserID,
		SessionID: vs.SessionID,
		Token:     vsrv.Token,
		Endpoint:  sanitizeEndpoint(vsrv.Endpoint),
	}

	g.mu.Lock()
	g.lastParams = params
	g.setStateLocked(types.Connecting, vs.ChannelID)
	g.mu.Unlock()

	g.connect(ctx, params)
}

// sanitizeEndpoint strips the wss:// scheme and a trailing slash, per
// §4.11.
func sanitizeEndpoint(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "wss://")
	endpoint = strings.TrimSuffix(endpoint, "/")
	return endpoint
}

func (g *Gateway) connect(ctx context.Context, params mediaplatform.ConnectParams) {
	sess, err := g.cfg.Driver.Connect(ctx, params)
	if err != nil {
		slog.Error("gateway: connect failed", "guild_id", g.cfg.GuildID, "error", err)
		g.mu.Lock()
		g.setStateLocked(types.Disconnected, "")
		g.mu.Unlock()
		return
	}

	g.mu.Lock()
	g.session = sess
	g.attempt = 0
	g.setStateLocked(types.Connected, params.ChannelID)
	g.mu.Unlock()

	if g.cfg.OnSession != nil {
		g.cfg.OnSession(sess)
	}
}

// NotifyDisconnect signals the gateway that its current session's transport
// was lost. Callers typically invoke this once their Packets()-draining
// loop returns (the channel closes when the session ends). Safe to call
// more than once; only the first call per reconnection cycle has effect.
func (g *Gateway) NotifyDisconnect() {
	select {
	case g.disconnected <- struct{}{}:
	default:
	}
}

// Monitor starts a background goroutine that reacts to NotifyDisconnect by
// attempting reconnection with exponential backoff, capped at 60s.
func (g *Gateway) Monitor(ctx context.Context) {
	go g.monitorLoop(ctx)
}

func (g *Gateway) monitorLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-g.done:
			return
		case <-g.disconnected:
			g.attemptReconnect(ctx)
		}
	}
}

func (g *Gateway) attemptReconnect(ctx context.Context) {
	g.mu.Lock()
	if g.state != types.Connected {
		// Already reconnecting, disconnected, or mid-fresh-handshake:
		// a stale or duplicate disconnect signal.
		g.mu.Unlock()
		return
	}
	params := g.lastParams
	g.setStateLocked(types.Reconnecting, g.channelID)
	g.mu.Unlock()

	backoff := g.cfg.Backoff
	for attempt := 1; attempt <= g.cfg.MaxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-g.done:
			return
		default:
		}

		g.mu.Lock()
		g.attempt = attempt
		g.mu.Unlock()

		sess, err := g.cfg.Driver.Connect(ctx, params)
		if err == nil {
			g.mu.Lock()
			g.session = sess
			g.attempt = 0
			g.setStateLocked(types.Connected, params.ChannelID)
			g.mu.Unlock()
			if g.cfg.OnSession != nil {
				g.cfg.OnSession(sess)
			}
			slog.Info("gateway: reconnected", "guild_id", g.cfg.GuildID, "attempt", attempt)
			return
		}

		slog.Warn("gateway: reconnect attempt failed", "guild_id", g.cfg.GuildID, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-g.done:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > g.cfg.MaxBackoff {
			backoff = g.cfg.MaxBackoff
		}
	}

	slog.Error("gateway: reconnect attempts exhausted", "guild_id", g.cfg.GuildID, "max_attempts", g.cfg.MaxReconnectAttempts)
	g.mu.Lock()
	g.setStateLocked(types.Disconnected, "")
	g.mu.Unlock()
}

// leave tears down the current session, if any, and transitions to
// Disconnected. Idempotent.
func (g *Gateway) leave() {
	g.mu.Lock()
	sess := g.session
	g.session = nil
	g.setStateLocked(types.Disconnected, "")
	g.mu.Unlock()
	if sess != nil {
		_ = sess.Close()
	}
}

// Shutdown tears down any active session and stops the monitor goroutine.
// Idempotent.
func (g *Gateway) Shutdown() {
	g.stopOnce.Do(func() { close(g.done) })
	g.leave()
}

// Play converts seg's f32 PCM to 48 kHz stereo Opus frames and feeds them
// to the active session. Playback within a guild is serial: Play blocks
// until every frame of seg has been handed to the driver (which itself
// never blocks on a full send buffer — see mediaplatform.Session.SendOpus).
func (g *Gateway) Play(ctx context.Context, seg types.TtsSegment) error {
	g.mu.Lock()
	sess := g.session
	g.mu.Unlock()
	if sess == nil {
		return ErrNotConnected
	}

	frames, err := encodeOpusFrames(seg.Audio, seg.SampleRate)
	if err != nil {
		return fmt.Errorf("gateway: encode playback audio: %w", err)
	}

	for _, frame := range frames {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := sess.SendOpus(frame); err != nil {
			return fmt.Errorf("gateway: send opus frame: %w", err)
		}
	}
	return nil
}

func (g *Gateway) setStateLocked(s types.ConnectionState, channelID string) {
	g.state = s
	g.channelID = channelID
	g.since = time.Now()
}
