// Package app wires configuration, provider instances, and the per-guild
// voice pipeline packages into a running Voxbridge process. It owns the
// process-wide HTTP listener (health checks and metrics) and one
// GuildSession per guild currently asked to join a voice channel.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mossgate/voxbridge/internal/config"
	"github.com/mossgate/voxbridge/internal/contextwindow"
	"github.com/mossgate/voxbridge/internal/dispatcher"
	"github.com/mossgate/voxbridge/internal/gateway"
	"github.com/mossgate/voxbridge/internal/gateway/discordctl"
	"github.com/mossgate/voxbridge/internal/health"
	"github.com/mossgate/voxbridge/internal/lrs"
	"github.com/mossgate/voxbridge/internal/observe"
	"github.com/mossgate/voxbridge/internal/receiver"
	"github.com/mossgate/voxbridge/internal/ssrcmap"
	"github.com/mossgate/voxbridge/internal/transcript/phonetic"
	"github.com/mossgate/voxbridge/internal/transcriptsink"
	"github.com/mossgate/voxbridge/internal/transcriptsink/postgres"
	"github.com/mossgate/voxbridge/internal/ttscache"
	"github.com/mossgate/voxbridge/internal/turngate"
	"github.com/mossgate/voxbridge/internal/worker"
	"github.com/mossgate/voxbridge/pkg/agentbridge"
	"github.com/mossgate/voxbridge/pkg/mediaplatform"
	mediadiscord "github.com/mossgate/voxbridge/pkg/mediaplatform/discord"
	"github.com/mossgate/voxbridge/pkg/provider/stt"
	"github.com/mossgate/voxbridge/pkg/provider/tts"
	"github.com/mossgate/voxbridge/pkg/types"
)

// ErrVoiceDisabled is returned by StartGuildSession when voice.enabled is
// false in the active configuration.
var ErrVoiceDisabled = errors.New("app: voice pipeline disabled")

// ErrSessionExists is returned by StartGuildSession when the guild already
// has an active session.
var ErrSessionExists = errors.New("app: guild already has an active session")

// ErrNoSession is returned by StopGuildSession for a guild with no active
// session.
var ErrNoSession = errors.New("app: no active session for guild")

// App is the top-level Voxbridge process: shared providers, the HTTP
// health/metrics listener, and the set of guilds currently running a voice
// pipeline.
type App struct {
	cfg      *config.Config
	registry *config.Registry
	discord  *discordgo.Session
	metrics  *observe.Metrics

	sttProvider stt.Provider
	ttsProvider tts.Provider
	agentBridge agentbridge.Bridge
	cache       *ttscache.Cache
	corrector   *phonetic.Corrector
	driver      mediaplatform.Driver
	control     gateway.ControlTransport

	health     *health.Handler
	httpServer *http.Server

	mu     sync.Mutex
	guilds map[string]*GuildSession

	closers  []func() error
	stopOnce sync.Once
}

// Option configures an App at construction time, primarily to inject test
// doubles in place of the registry-built providers.
type Option func(*App)

// WithSTTProvider overrides the shared speech-to-text provider instead of
// building one from cfg.Voice.STT via the registry.
func WithSTTProvider(p stt.Provider) Option { return func(a *App) { a.sttProvider = p } }

// WithTTSProvider overrides the shared text-to-speech provider.
func WithTTSProvider(p tts.Provider) Option { return func(a *App) { a.ttsProvider = p } }

// WithAgentBridge overrides the shared agent bridge.
func WithAgentBridge(b agentbridge.Bridge) Option { return func(a *App) { a.agentBridge = b } }

// WithCache overrides the shared TTS synthesis cache. Passing nil disables
// caching even if voice.tts_cache.db_path is configured.
func WithCache(c *ttscache.Cache) Option { return func(a *App) { a.cache = c } }

// WithCorrector overrides the shared phonetic transcript corrector.
func WithCorrector(c *phonetic.Corrector) Option { return func(a *App) { a.corrector = c } }

// WithMediaDriver overrides the media transport driver used to connect
// guild voice sessions, in place of the real Discord voice driver.
func WithMediaDriver(d mediaplatform.Driver) Option { return func(a *App) { a.driver = d } }

// WithControlTransport overrides the join-handshake transport, in place of
// the real discordctl.Transport wrapping the Discord session.
func WithControlTransport(c gateway.ControlTransport) Option { return func(a *App) { a.control = c } }

// New builds an App: it resolves the STT/TTS/agent providers named in cfg
// through reg (unless overridden by an Option), opens the TTS cache and
// phonetic corrector if configured, and assembles the health/metrics HTTP
// server. discordSession may be nil only if every provider and the media
// driver are supplied via Options (e.g. in tests).
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, discordSession *discordgo.Session, metrics *observe.Metrics, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		registry: reg,
		discord:  discordSession,
		metrics:  metrics,
		guilds:   make(map[string]*GuildSession),
	}
	for _, o := range opts {
		o(a)
	}

	if cfg.Voice.Enabled {
		if a.sttProvider == nil {
			p, err := reg.CreateSTT(cfg.Voice.STT)
			if err != nil {
				return nil, fmt.Errorf("app: create stt provider: %w", err)
			}
			a.sttProvider = p
		}
		if a.ttsProvider == nil {
			p, err := reg.CreateTTS(cfg.Voice.TTS)
			if err != nil {
				return nil, fmt.Errorf("app: create tts provider: %w", err)
			}
			a.ttsProvider = p
		}
	}

	if a.agentBridge == nil {
		b, err := reg.CreateAgent(cfg.Agent)
		if err != nil {
			return nil, fmt.Errorf("app: create agent bridge: %w", err)
		}
		a.agentBridge = b
	}

	if a.cache == nil && cfg.Voice.TTSCache.DBPath != "" {
		limitBytes := int64(cfg.Voice.TTSCache.MaxTotalMB) * 1024 * 1024
		cache, err := ttscache.Open(ctx, cfg.Voice.TTSCache.DBPath, limitBytes)
		if err != nil {
			return nil, fmt.Errorf("app: open tts cache: %w", err)
		}
		a.cache = cache
		a.closers = append(a.closers, cache.Close)
	}

	if a.corrector == nil && cfg.Voice.Correction.Enabled && len(cfg.Voice.Correction.Vocabulary) > 0 {
		a.corrector = phonetic.NewCorrector(cfg.Voice.Correction.Vocabulary)
	}

	a.health = health.New(a.buildCheckers()...)
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	if metrics != nil {
		handler = observe.Middleware(metrics)(handler)
	}

	if cfg.Server.ListenAddr != "" {
		a.httpServer = &http.Server{
			Addr:    cfg.Server.ListenAddr,
			Handler: handler,
		}
	}

	return a, nil
}

// buildCheckers assembles the readiness checks exposed at /readyz, one per
// voice-pipeline dependency that can fail independently of the process:
// the agent bridge, the Discord gateway session, and — only when voice is
// enabled — the configured STT/TTS providers and, if configured, the TTS
// synthesis cache.
func (a *App) buildCheckers() []health.Checker {
	checkers := []health.Checker{
		{Name: "agent", Check: func(context.Context) error {
			if a.agentBridge == nil {
				return errors.New("agent bridge not configured")
			}
			return nil
		}},
	}
	if a.discord != nil {
		checkers = append(checkers, health.Checker{Name: "discord", Check: func(context.Context) error {
			if a.discord.State == nil {
				return errors.New("discord session state unavailable")
			}
			return nil
		}})
	}
	if a.cfg.Voice.Enabled {
		checkers = append(checkers,
			health.Checker{Name: "stt_provider", Check: func(context.Context) error {
				if a.sttProvider == nil {
					return errors.New("stt provider not configured")
				}
				return nil
			}},
			health.Checker{Name: "tts_provider", Check: func(context.Context) error {
				if a.ttsProvider == nil {
					return errors.New("tts provider not configured")
				}
				return nil
			}},
		)
	}
	if a.cache != nil {
		checkers = append(checkers, health.Checker{
			Name:    "tts_cache",
			Check:   a.cache.Ping,
			Timeout: 2 * time.Second,
		})
	}
	return checkers
}

// Run starts the HTTP health/metrics listener, if configured, and blocks
// until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.httpServer != nil {
		go func() {
			if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("app: http server failed", "addr", a.httpServer.Addr, "error", err)
			}
		}()
		slog.Info("app: http server listening", "addr", a.httpServer.Addr)
	}

	<-ctx.Done()
	return nil
}

// Shutdown stops every active guild session, then the HTTP server, then
// runs every registered closer in reverse registration order. Safe to call
// more than once; only the first call has effect.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		a.mu.Lock()
		sessions := make([]*GuildSession, 0, len(a.guilds))
		for _, gs := range a.guilds {
			sessions = append(sessions, gs)
		}
		a.guilds = make(map[string]*GuildSession)
		a.mu.Unlock()

		for _, gs := range sessions {
			gs.shutdown()
		}

		if a.httpServer != nil {
			if shutdownErr := a.httpServer.Shutdown(ctx); shutdownErr != nil {
				err = errors.Join(err, shutdownErr)
			}
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			if closeErr := a.closers[i](); closeErr != nil {
				err = errors.Join(err, closeErr)
			}
		}
	})
	return err
}

// StartGuildSession begins a voice pipeline for guildID and requests
// joining channelID. botUserID identifies the bot's own Discord user,
// needed to recognise which VOICE_STATE_UPDATE events are addressed to it.
func (a *App) StartGuildSession(ctx context.Context, guildID, channelID, botUserID string) (*GuildSession, error) {
	if !a.cfg.Voice.Enabled {
		return nil, ErrVoiceDisabled
	}

	a.mu.Lock()
	if _, exists := a.guilds[guildID]; exists {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, guildID)
	}
	a.mu.Unlock()

	var windowBuf *contextwindow.Buffer
	if ms := a.cfg.Voice.Pipeline.ContextWindowMs; ms > 0 {
		windowBuf = contextwindow.New(time.Duration(ms) * time.Millisecond)
	}

	gs := &GuildSession{
		guildID:    guildID,
		ssrcMap:    ssrcmap.New(),
		lrsTracker: lrs.New(),
		turnGate:   turngate.New(),
		window:     windowBuf,
		sinkCh:     make(chan types.TranscriptEntry, 64),
		sink:       a.buildSink(ctx, guildID),
	}

	recv := receiver.New(a.cfg.Voice.Audio.SttSampleRate)
	gs.receiver = recv

	gw := gateway.New(gateway.Config{
		GuildID:   guildID,
		BotUserID: botUserID,
		Driver:    a.mediaDriver(),
		Control:   a.controlTransport(),
		OnSession: func(sess mediaplatform.Session) {
			gs.bindSpeakingEvents(a, sess)
			go func() {
				recv.Run(ctx, sess)
				gs.gateway.NotifyDisconnect()
			}()
		},
	})
	gw.Monitor(ctx)
	gs.gateway = gw
	if a.discord != nil {
		gs.removeHandlers = discordctl.Bind(a.discord, gw)
	}

	gs.dispatcher = dispatcher.New(dispatcher.Config{
		SsrcMap:               gs.ssrcMap,
		Lrs:                   gs.lrsTracker,
		NewWorker:             a.workerFactory(gs),
		MaxConcurrentSessions: a.cfg.Voice.Pipeline.MaxConcurrentSTT,
		InterruptsEnabled:     a.cfg.Voice.Pipeline.InterruptEnabled,
	})

	go gs.sinkLoop(ctx)
	go gs.dispatchLoop(ctx)
	go gs.windowFlushLoop(ctx)

	if err := gw.Join(ctx, channelID); err != nil {
		return nil, fmt.Errorf("app: join guild %s channel %s: %w", guildID, channelID, err)
	}

	a.mu.Lock()
	a.guilds[guildID] = gs
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.ActiveSessions.Add(ctx, 1)
	}

	return gs, nil
}

// StopGuildSession tears down guildID's active session, if any.
func (a *App) StopGuildSession(guildID string) error {
	a.mu.Lock()
	gs, ok := a.guilds[guildID]
	if ok {
		delete(a.guilds, guildID)
	}
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSession, guildID)
	}

	gs.shutdown()
	if a.metrics != nil {
		a.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	return nil
}

// HandleVoiceState forwards an inbound session-credential event to the
// matching guild's gateway, if a session is active for that guild. It is
// the entry point discordctl.Bind's handler normally drives, exposed
// directly so callers with their own Discord event routing (or tests) can
// feed the handshake without registering a discordgo handler.
func (a *App) HandleVoiceState(ctx context.Context, d types.VoiceStateData) {
	a.mu.Lock()
	gs, ok := a.guilds[d.GuildID]
	a.mu.Unlock()
	if !ok {
		return
	}
	gs.gateway.HandleVoiceState(ctx, d)
}

// HandleVoiceServer forwards an inbound media-endpoint event to the
// matching guild's gateway, if a session is active for that guild.
func (a *App) HandleVoiceServer(ctx context.Context, d types.VoiceServerData) {
	a.mu.Lock()
	gs, ok := a.guilds[d.GuildID]
	a.mu.Unlock()
	if !ok {
		return
	}
	gs.gateway.HandleVoiceServer(ctx, d)
}

// GuildSnapshot returns the connection snapshot for guildID's active
// session, if any.
func (a *App) GuildSnapshot(guildID string) (types.ConnectionSnapshot, bool) {
	a.mu.Lock()
	gs, ok := a.guilds[guildID]
	a.mu.Unlock()
	if !ok {
		return types.ConnectionSnapshot{}, false
	}
	return gs.gateway.Snapshot(), true
}

// mediaDriver returns the configured media driver, or the real Discord
// voice driver wrapping a.discord.
func (a *App) mediaDriver() mediaplatform.Driver {
	if a.driver != nil {
		return a.driver
	}
	return mediadiscord.New(a.discord)
}

// controlTransport returns the configured join-handshake transport, or the
// real discordctl.Transport wrapping a.discord.
func (a *App) controlTransport() gateway.ControlTransport {
	if a.control != nil {
		return a.control
	}
	return discordctl.New(a.discord)
}

// buildSink resolves the transcript sink for a new guild session: durable
// Postgres storage when both transcript logging and a DSN are configured,
// falling back to the process log otherwise.
func (a *App) buildSink(ctx context.Context, guildID string) transcriptsink.Sink {
	if !a.cfg.Voice.Transcript.Enabled || a.cfg.Memory.PostgresDSN == "" {
		return transcriptsink.LogSink{GuildID: guildID}
	}
	sink, err := postgres.New(ctx, a.cfg.Memory.PostgresDSN, guildID)
	if err != nil {
		slog.Error("app: connect transcript sink, falling back to log sink", "guild_id", guildID, "error", err)
		return transcriptsink.LogSink{GuildID: guildID}
	}
	return sink
}

// botName returns the display name attached to BotResponse transcript
// entries.
func (a *App) botName() string {
	if a.discord != nil && a.discord.State != nil && a.discord.State.User != nil {
		return a.discord.State.User.Username
	}
	return "voxbridge"
}

// workerFactory returns the dispatcher.WorkerFactory that builds workers
// sharing gs's turn gate, transcript sink, and playback target, wired to
// the App's shared providers.
func (a *App) workerFactory(gs *GuildSession) dispatcher.WorkerFactory {
	return func(userID, displayName string, onBargeIn func()) *worker.Worker {
		var corrector interface{ Correct(string) string }
		if a.corrector != nil {
			corrector = a.corrector
		}

		cfg := worker.Config{
			UserID:   userID,
			Username: displayName,
			BotName:  a.botName(),

			STT: a.sttProvider,
			STTConfig: stt.StreamConfig{
				SampleRate:     a.cfg.Voice.Audio.SttSampleRate,
				Channels:       1,
				InterimResults: true,
				Temperature:    a.cfg.Voice.STT.Temperature,
			},

			TTS: a.ttsProvider,
			TTSParams: types.CacheParams{
				Model: a.cfg.Voice.TTS.Model,
				Speed: a.cfg.Voice.TTS.SpeedScale,
			},
			Cache: a.cache,

			Agent: a.agentBridge,

			TurnGate: gs.turnGate,

			Sink: gs.sinkCh,

			Playback: gs.gateway.Play,

			OnBargeIn: onBargeIn,

			Corrector: corrector,

			IdleTimeout:       time.Duration(a.cfg.Voice.Pipeline.IdleTimeoutSec) * time.Second,
			MinSentenceLength: a.cfg.Voice.Pipeline.SentenceMinLength,
			MaxConcurrentTTS:  a.cfg.Voice.Pipeline.MaxConcurrentTTS,
		}
		return worker.New(cfg)
	}
}

// GuildSession owns one guild's voice gateway, dispatcher, and supporting
// per-guild state. TurnGate is scoped per session rather than process-wide:
// each guild serialises its own agent turns independently of every other
// guild's.
type GuildSession struct {
	guildID string

	gateway    *gateway.Gateway
	dispatcher *dispatcher.Dispatcher
	receiver   *receiver.Receiver
	ssrcMap    *ssrcmap.Map
	lrsTracker *lrs.Tracker
	turnGate   *turngate.Gate
	window     *contextwindow.Buffer

	sink   transcriptsink.Sink
	sinkCh chan types.TranscriptEntry

	removeHandlers func()
}

// Snapshot returns the session's current connection state.
func (gs *GuildSession) Snapshot() types.ConnectionSnapshot {
	return gs.gateway.Snapshot()
}

// ActiveSpeakers returns the number of users with an active worker.
func (gs *GuildSession) ActiveSpeakers() int {
	return gs.dispatcher.ActiveCount()
}

func (gs *GuildSession) shutdown() {
	gs.dispatcher.Shutdown()
	gs.gateway.Shutdown()
	if gs.removeHandlers != nil {
		gs.removeHandlers()
	}
	if closer, ok := gs.sink.(interface{ Close() }); ok {
		closer.Close()
	}
}

// bindSpeakingEvents starts a goroutine translating sess's speaking-state
// transitions into ssrcMap bindings, resolving each user's display name via
// the Discord session's member cache.
func (gs *GuildSession) bindSpeakingEvents(a *App, sess mediaplatform.Session) {
	go func() {
		for ev := range sess.SpeakingEvents() {
			if !ev.Speaking {
				continue
			}
			gs.ssrcMap.Bind(ev.SourceID, ev.UserID, a.resolveDisplayName(gs.guildID, ev.UserID))
		}
	}()
}

// dispatchLoop forwards every decoded audio chunk from the receiver to the
// dispatcher for the lifetime of the session; it survives across gateway
// reconnects since the receiver and its output channel are created once per
// GuildSession.
func (gs *GuildSession) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-gs.receiver.Chunks():
			if !ok {
				return
			}
			gs.dispatcher.Dispatch(chunk)
		}
	}
}

// sinkLoop drains transcript entries, writing each to the durable sink and
// feeding UserSpeech entries into the multi-speaker context window.
func (gs *GuildSession) sinkLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-gs.sinkCh:
			if !ok {
				return
			}
			if err := gs.sink.Write(ctx, entry); err != nil {
				slog.Warn("app: transcript sink write failed", "guild_id", gs.guildID, "error", err)
			}
			if entry.Kind == types.UserSpeech && gs.window != nil {
				gs.window.Push(types.LabeledUtterance{
					UserID:    entry.UserID,
					Username:  entry.UserName,
					Text:      entry.Text,
					Timestamp: entry.Timestamp,
				})
			}
		}
	}
}

// windowFlushLoop periodically flushes the multi-speaker context window
// once it is ready, logging the combined labelled block. The agent is
// still invoked once per user final by the worker package; this loop gives
// operators a coalesced view of concurrent speakers without changing that
// per-user call boundary.
func (gs *GuildSession) windowFlushLoop(ctx context.Context) {
	if gs.window == nil {
		return
	}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !gs.window.IsReady() {
				continue
			}
			if combined := gs.window.Flush(); combined != "" {
				slog.Info("app: coalesced multi-speaker window flushed", "guild_id", gs.guildID, "text", combined)
			}
		}
	}
}

// resolveDisplayName looks up userID's guild nickname or username via the
// Discord session's member cache, falling back to the raw id when
// unavailable (e.g. the member cache hasn't been populated yet, or a has
// been supplied in tests with no Discord session at all).
func (a *App) resolveDisplayName(guildID, userID string) string {
	if a.discord == nil || a.discord.State == nil {
		return userID
	}
	member, err := a.discord.State.Member(guildID, userID)
	if err != nil || member == nil {
		return userID
	}
	if member.Nick != "" {
		return member.Nick
	}
	if member.User != nil {
		return member.User.Username
	}
	return userID
}
