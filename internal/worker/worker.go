// Package worker implements PipelineWorker: a long-lived, per-user task
// owning one STT session and driving the full speech-in, agent, speech-out
// cycle for that user's utterances.
package worker

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mossgate/voxbridge/internal/playback"
	"github.com/mossgate/voxbridge/internal/splitter"
	"github.com/mossgate/voxbridge/internal/ttscache"
	"github.com/mossgate/voxbridge/internal/ttspipeline"
	"github.com/mossgate/voxbridge/internal/turngate"
	"github.com/mossgate/voxbridge/internal/unboundedchan"
	"github.com/mossgate/voxbridge/pkg/agentbridge"
	"github.com/mossgate/voxbridge/pkg/provider/stt"
	"github.com/mossgate/voxbridge/pkg/provider/tts"
	"github.com/mossgate/voxbridge/pkg/types"
)

// ExitReason classifies why Run returned.
type ExitReason int

const (
	// Cancelled means the worker's own cancellation token fired (shutdown or
	// dispatcher-driven teardown, not a barge-in — barge-in derives a child
	// token scoped to one response instead).
	Cancelled ExitReason = iota

	// IdleTimeout means no audio arrived for the configured idle duration.
	IdleTimeout

	// ChannelClosed means the audio input channel was closed by the
	// dispatcher.
	ChannelClosed

	// SttStartFailed means the STT session could not be opened.
	SttStartFailed
)

// String returns the human-readable name of the exit reason.
func (r ExitReason) String() string {
	switch r {
	case Cancelled:
		return "cancelled"
	case IdleTimeout:
		return "idle_timeout"
	case ChannelClosed:
		return "channel_closed"
	case SttStartFailed:
		return "stt_start_failed"
	default:
		return "unknown"
	}
}

// Config configures a Worker. All fields are required unless noted.
type Config struct {
	UserID   string
	Username string
	// BotName labels BotResponse/BotResponseInterrupted transcript entries.
	BotName string

	STT       stt.Provider
	STTConfig stt.StreamConfig

	TTS       tts.Provider
	TTSParams types.CacheParams
	Cache     *ttscache.Cache // optional

	Agent agentbridge.Bridge

	TurnGate *turngate.Gate

	// Sink receives UserSpeech/BotResponse/BotResponseInterrupted entries.
	Sink chan<- types.TranscriptEntry

	// Playback hands a completed, in-order TtsSegment to the media layer.
	Playback func(ctx context.Context, seg types.TtsSegment) error

	// OnBargeIn is invoked synchronously when SpeechStart arrives while a
	// response is playing. The worker only signals; the dispatcher decides
	// whether to act (interrupts may be globally disabled) and, if so, calls
	// Interrupt. May be nil.
	OnBargeIn func()

	// Corrector runs over every STT Final before it is logged or handed to
	// the agent bridge. Optional; typically a *phonetic.Corrector.
	Corrector interface{ Correct(string) string }

	IdleTimeout       time.Duration
	MinSentenceLength int
	MaxConcurrentTTS  int
}

// Worker drives one user's full pipeline. Create with New and run with Run
// in its own goroutine; interact with it via AudioIn, Interrupt, and Cancel.
type Worker struct {
	cfg Config

	audioIn *unboundedchan.Chan[[]float32]

	isPlaying atomic.Bool

	mu          sync.Mutex
	childCancel context.CancelFunc
}

// New returns a Worker ready to Run. The audio input queue is unbounded: the
// dispatcher must never apply backpressure to, or drop chunks for, a user
// who is mid-utterance.
func New(cfg Config) *Worker {
	return &Worker{
		cfg:     cfg,
		audioIn: unboundedchan.New[[]float32](),
	}
}

// AudioIn returns the channel the dispatcher sends resolved PCM chunks on.
func (w *Worker) AudioIn() chan<- []float32 { return w.audioIn.In() }

// IsPlaying reports whether a response is currently being synthesised or
// played for this user.
func (w *Worker) IsPlaying() bool { return w.isPlaying.Load() }

// Interrupt cancels the in-flight response, if any. A no-op when nothing is
// playing.
func (w *Worker) Interrupt() {
	if !w.isPlaying.Load() {
		return
	}
	w.mu.Lock()
	cancel := w.childCancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run executes the worker's main loop until ctx is cancelled, the audio
// channel is closed, or the idle timeout elapses. It closes the STT session
// on every exit path.
func (w *Worker) Run(ctx context.Context) ExitReason {
	session, err := w.cfg.STT.StartStream(ctx, w.cfg.STTConfig)
	if err != nil {
		slog.Error("worker: start STT stream failed", "user_id", w.cfg.UserID, "error", err)
		return SttStartFailed
	}
	defer session.Close()

	idleTimer := time.NewTimer(w.cfg.IdleTimeout)
	defer idleTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Cancelled

		case <-idleTimer.C:
			return IdleTimeout

		case chunk, ok := <-w.audioIn.Out():
			if !ok {
				return ChannelClosed
			}
			resetIdleTimer(idleTimer, w.cfg.IdleTimeout)

			if err := session.SendAudio(float32ToS16LE(chunk)); err != nil {
				slog.Warn("worker: send audio to STT failed", "user_id", w.cfg.UserID, "error", err)
				continue
			}
			w.drainEvents(ctx, session, idleTimer)
		}
	}
}

// drainEvents consumes every STT event currently available without
// blocking, per spec's "drain STT events non-blockingly until None".
func (w *Worker) drainEvents(ctx context.Context, session stt.SessionHandle, idleTimer *time.Timer) {
	for {
		select {
		case ev, ok := <-session.Events():
			if !ok {
				return
			}
			w.handleEvent(ctx, ev, idleTimer)
		default:
			return
		}
	}
}

func (w *Worker) handleEvent(ctx context.Context, ev stt.Event, idleTimer *time.Timer) {
	switch ev.Kind {
	case stt.SpeechStart:
		resetIdleTimer(idleTimer, w.cfg.IdleTimeout)
		if w.isPlaying.Load() && w.cfg.OnBargeIn != nil {
			w.cfg.OnBargeIn()
		}

	case stt.Partial:
		slog.Debug("worker: partial transcript", "user_id", w.cfg.UserID, "text", ev.Text)

	case stt.Final:
		text := ev.Text
		if strings.TrimSpace(text) == "" {
			return
		}
		if w.cfg.Corrector != nil {
			text = w.cfg.Corrector.Correct(text)
		}
		w.cfg.Sink <- types.TranscriptEntry{
			Kind:      types.UserSpeech,
			UserID:    w.cfg.UserID,
			UserName:  w.cfg.Username,
			Text:      text,
			Timestamp: time.Now(),
		}
		w.processText(ctx, text)

	case stt.SpeechEnd:
		resetIdleTimer(idleTimer, w.cfg.IdleTimeout)
	}
}

// processText drives one full agent exchange: generation, splitting,
// bounded-concurrency synthesis, and in-order playback.
func (w *Worker) processText(parent context.Context, text string) {
	release, ok := w.cfg.TurnGate.Acquire(parent)
	if !ok {
		return
	}
	defer release()

	childCtx, cancel := context.WithCancel(parent)
	w.setChildCancel(cancel)
	defer func() {
		cancel()
		w.setChildCancel(nil)
	}()

	chunks, err := w.cfg.Agent.Generate(childCtx, w.cfg.UserID, text)
	if err != nil {
		slog.Error("worker: agent generate failed", "user_id", w.cfg.UserID, "error", err)
		return
	}

	select {
	case <-childCtx.Done():
		return
	default:
	}

	w.isPlaying.Store(true)
	defer w.isPlaying.Store(false)

	sp := splitter.New(w.cfg.MinSentenceLength)
	pipeline := ttspipeline.New(w.cfg.TTS, w.cfg.TTSParams,
		ttspipeline.WithMaxConcurrent(w.cfg.MaxConcurrentTTS),
		ttspipeline.WithCache(w.cfg.Cache))
	queue := playback.New()

	var (
		fullText   strings.Builder
		playedText strings.Builder
		submitted  int
		played     int
		cancelled  bool
	)

	submit := func(seg types.SentenceSegment) {
		fullText.WriteString(seg.Text)
		pipeline.Submit(childCtx, seg)
		submitted++
	}

	play := func(seg types.TtsSegment) {
		played++
		playedText.WriteString(seg.Text)
		if err := w.cfg.Playback(childCtx, seg); err != nil {
			slog.Warn("worker: playback failed", "user_id", w.cfg.UserID, "error", err)
		}
	}

generate:
	for {
		select {
		case <-childCtx.Done():
			cancelled = true
			break generate

		case chunk, chOk := <-chunks:
			if !chOk || chunk.Done || chunk.Err != nil {
				if chunk.Err != nil {
					slog.Warn("worker: agent stream error", "user_id", w.cfg.UserID, "error", chunk.Err)
				}
				if seg := sp.Flush(); seg != nil {
					submit(*seg)
				}
				break generate
			}
			for _, seg := range sp.Push(chunk.Text) {
				submit(seg)
			}

		case seg := <-pipeline.Out():
			queue.Submit(seg)

		case seg := <-queue.Out():
			play(seg)
		}
	}

	if !cancelled {
		cancelled = w.drainRemaining(childCtx, pipeline, queue, &submitted, &played, play)
	}

	if cancelled {
		w.cfg.Sink <- types.TranscriptEntry{
			Kind:       types.BotResponseInterrupted,
			BotName:    w.cfg.BotName,
			Text:       fullText.String(),
			PlayedText: playedText.String(),
			Timestamp:  time.Now(),
		}
		return
	}

	w.cfg.Sink <- types.TranscriptEntry{
		Kind:      types.BotResponse,
		BotName:   w.cfg.BotName,
		Text:      fullText.String(),
		Timestamp: time.Now(),
	}
}

// drainRemaining waits for every already-submitted synthesis task to finish
// and forwards its result through the playback queue, returning true if
// cancelled before all submitted segments were played.
func (w *Worker) drainRemaining(ctx context.Context, pipeline *ttspipeline.Pipeline, queue *playback.Queue, submitted, played *int, play func(types.TtsSegment)) bool {
	waitDone := make(chan struct{})
	go func() {
		pipeline.Wait()
		close(waitDone)
	}()

	pipelineFinished := false
	for {
		if pipelineFinished && *played >= *submitted {
			return false
		}
		select {
		case <-ctx.Done():
			return true
		case seg := <-pipeline.Out():
			queue.Submit(seg)
		case seg := <-queue.Out():
			play(seg)
		case <-waitDone:
			pipelineFinished = true
			waitDone = nil // nil channel is never selectable again
		}
	}
}

func (w *Worker) setChildCancel(cancel context.CancelFunc) {
	w.mu.Lock()
	w.childCancel = cancel
	w.mu.Unlock()
}

// resetIdleTimer drains and reprograms t to fire idleTimeout from now.
func resetIdleTimer(t *time.Timer, idleTimeout time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(idleTimeout)
}

// float32ToS16LE converts mono float32 samples in [-1.0, 1.0] to s16le PCM
// bytes for the STT provider wire format.
func float32ToS16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		sample := int16(v)
		out[i*2] = byte(sample)
		out[i*2+1] = byte(sample >> 8)
	}
	return out
}
