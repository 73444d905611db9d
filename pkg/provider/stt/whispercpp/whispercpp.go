// Package whispercpp implements an stt.Provider backed by a local
// whisper.cpp model, for deployments that want offline transcription
// instead of a hosted WebSocket endpoint.
//
// whisper.cpp is a batch recogniser, not a streaming one: a session
// buffers incoming PCM until an RMS-energy silence gap (or a maximum
// buffer duration) is reached, then runs one inference pass over the
// buffered audio and emits the result as a single Final event, bracketed
// by synthetic SpeechStart/SpeechEnd events. No Partial events are ever
// produced.
package whispercpp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/mossgate/voxbridge/pkg/provider/stt"
)

const (
	bitsPerSample             = 16
	defaultRMSThreshold       = 300.0
	defaultSilenceThresholdMs = 500
	defaultMaxBufferDurationMs = 10000
)

// Option configures a Provider.
type Option func(*Provider)

// WithSilenceThreshold overrides how many milliseconds of sub-threshold RMS
// audio must elapse after speech before the buffered audio is flushed.
func WithSilenceThreshold(ms int) Option {
	return func(p *Provider) { p.silenceThresholdMs = ms }
}

// WithMaxBufferDuration overrides the hard cap on buffered audio before a
// flush is forced regardless of silence.
func WithMaxBufferDuration(ms int) Option {
	return func(p *Provider) { p.maxBufferDurationMs = ms }
}

// WithRMSThreshold overrides the RMS energy level below which a chunk is
// considered silence.
func WithRMSThreshold(threshold float64) Option {
	return func(p *Provider) { p.rmsThreshold = threshold }
}

// Provider implements stt.Provider over a single shared whisper.cpp model.
// The model is loaded once and its Context instances (one per inference
// call) are created fresh per flush, since a whisper.cpp context is not
// safe for concurrent use but the model itself may be shared.
type Provider struct {
	model whisperlib.Model

	rmsThreshold        float64
	silenceThresholdMs  int
	maxBufferDurationMs int
}

// New loads a whisper.cpp model from modelPath and returns a Provider
// sharing it across every session.
func New(modelPath string, opts ...Option) (*Provider, error) {
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: load model: %w", err)
	}
	p := &Provider{
		model:               model,
		rmsThreshold:        defaultRMSThreshold,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the underlying whisper.cpp model.
func (p *Provider) Close() error {
	return p.model.Close()
}

// StartStream starts a new buffering session against the shared model.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	sess := &session{
		provider: p,
		cfg:      cfg,
		events:   make(chan stt.Event, 16),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}
	sess.wg.Add(1)
	go sess.processLoop(ctx)
	return sess, nil
}

// session buffers audio for one speaker and flushes it through whisper.cpp
// on a silence gap. It implements stt.SessionHandle.
type session struct {
	provider *Provider
	cfg      stt.StreamConfig

	events chan stt.Event
	audio  chan []byte
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// SendAudio queues a PCM chunk for buffering.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("whispercpp: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("whispercpp: session is closed")
	}
}

// Events returns the channel of session events.
func (s *session) Events() <-chan stt.Event { return s.events }

// Close flushes any pending buffered audio and terminates the session.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func bytesPerMs(sampleRate, channels int) int {
	return sampleRate * channels * (bitsPerSample / 8) / 1000
}

func chunkDurationMs(chunk []byte, sampleRate, channels int) int64 {
	bpm := bytesPerMs(sampleRate, channels)
	if bpm == 0 {
		return 0
	}
	return int64(len(chunk)) / int64(bpm)
}

func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sumSquares float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sumSquares += v * v
	}
	return sqrt(sumSquares / float64(n))
}

// sqrt avoids pulling in math for a single call site beyond this file's
// narrow need; kept local so this package's only external dependency is
// whisper.cpp itself.
func sqrt(x float64) float64 {
	if x <= 0 {
		return 0
	}
	z := x
	for range 20 {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

// processLoop accumulates chunks by RMS-energy silence detection and flushes
// buffered audio through whisper.cpp whenever a silence gap or the max
// buffer duration is reached.
func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)

	var (
		buffer      []byte
		hadSpeech   bool
		silenceMs   int64
		emittedStart bool
	)

	bpm := bytesPerMs(s.cfg.SampleRate, s.cfg.Channels)
	maxBufferBytes := s.provider.maxBufferDurationMs * bpm

	emit := func(ev stt.Event) {
		select {
		case s.events <- ev:
		case <-s.done:
		}
	}

	doFlush := func() {
		if !hadSpeech || len(buffer) == 0 {
			buffer = nil
			hadSpeech = false
			silenceMs = 0
			return
		}
		pcm := buffer
		buffer = nil
		hadSpeech = false
		silenceMs = 0

		text, err := s.infer(pcm)
		if err != nil {
			slog.Warn("whispercpp: inference failed", "error", err)
			emittedStart = false
			return
		}
		text = strings.TrimSpace(text)
		if text == "" {
			emittedStart = false
			return
		}
		dur := time.Duration(chunkDurationMs(pcm, s.cfg.SampleRate, s.cfg.Channels)) * time.Millisecond
		emit(stt.Event{Kind: stt.Final, Text: text, Language: s.cfg.Language, Duration: dur})
		emit(stt.Event{Kind: stt.SpeechEnd, Duration: dur})
		emittedStart = false
	}

	for {
		select {
		case <-ctx.Done():
			doFlush()
			return

		case <-s.done:
			doFlush()
			return

		case chunk, ok := <-s.audio:
			if !ok {
				doFlush()
				return
			}

			rms := computeRMS(chunk)
			chunkMs := chunkDurationMs(chunk, s.cfg.SampleRate, s.cfg.Channels)

			if rms < s.provider.rmsThreshold {
				if hadSpeech {
					silenceMs += chunkMs
					buffer = append(buffer, chunk...)
					if silenceMs >= int64(s.provider.silenceThresholdMs) {
						doFlush()
					}
				}
			} else {
				if !hadSpeech {
					if !emittedStart {
						emit(stt.Event{Kind: stt.SpeechStart})
						emittedStart = true
					}
				}
				hadSpeech = true
				silenceMs = 0
				buffer = append(buffer, chunk...)
				if maxBufferBytes > 0 && len(buffer) >= maxBufferBytes {
					doFlush()
				}
			}
		}
	}
}

// infer converts the buffered PCM audio to float32 mono samples and runs a
// whisper.cpp inference pass using a fresh context.
func (s *session) infer(pcm []byte) (string, error) {
	samples := pcmToFloat32Mono(pcm, s.cfg.Channels)

	wctx, err := s.provider.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whispercpp: create context: %w", err)
	}

	if s.cfg.Language != "" {
		if err := wctx.SetLanguage(s.cfg.Language); err != nil {
			slog.Warn("whispercpp: failed to set language, using default", "language", s.cfg.Language, "error", err)
		}
	}
	if s.cfg.Temperature > 0 {
		wctx.SetTemperature(float32(s.cfg.Temperature))
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whispercpp: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whispercpp: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

// pcmToFloat32Mono down-mixes 16-bit signed little-endian PCM to mono
// float32 samples normalised to [-1.0, 1.0], averaging channels per frame.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		n := len(pcm) / 2
		samples := make([]float32, n)
		for i := 0; i < n; i++ {
			sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
			samples[i] = float32(sample) / 32768.0
		}
		return samples
	}
	samplesPerChannel := len(pcm) / (2 * channels)
	mono := make([]float32, samplesPerChannel)
	for i := 0; i < samplesPerChannel; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			idx := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(sample) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// Compile-time assertions.
var (
	_ stt.Provider      = (*Provider)(nil)
	_ stt.SessionHandle = (*session)(nil)
)
