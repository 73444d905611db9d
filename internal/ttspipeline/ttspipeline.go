// Package ttspipeline implements TtsPipeline: a concurrency-bounded fan-out
// that synthesises each sentence segment independently, consulting a cache
// before calling the TTS provider, and emits completed segments in
// whatever order they finish.
package ttspipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mossgate/voxbridge/internal/ttscache"
	"github.com/mossgate/voxbridge/pkg/provider/tts"
	"github.com/mossgate/voxbridge/pkg/types"
)

const defaultMaxConcurrent = 3

// Pipeline bounds synthesis fan-out to maxConcurrent permits. Safe for
// concurrent Submit calls.
type Pipeline struct {
	provider tts.Provider
	cache    *ttscache.Cache
	params   types.CacheParams // template; Text is overwritten per segment

	sem chan struct{}
	out chan types.TtsSegment
	wg  sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxConcurrent overrides the synthesis concurrency bound (default 3).
func WithMaxConcurrent(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.sem = make(chan struct{}, n)
		}
	}
}

// WithCache attaches a TtsCache; synthesis results are looked up and stored
// there keyed by the content hash of the synthesis parameters. Without a
// cache every segment is synthesised directly.
func WithCache(c *ttscache.Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// New returns a Pipeline calling provider for cache misses, using params as
// the per-response synthesis parameter template (its Text field is
// overwritten per segment before hashing/calling).
func New(provider tts.Provider, params types.CacheParams, opts ...Option) *Pipeline {
	p := &Pipeline{
		provider: provider,
		params:   params,
		sem:      make(chan struct{}, defaultMaxConcurrent),
		out:      make(chan types.TtsSegment, 16),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Out returns the channel of completed TtsSegments. Emission order is not
// guaranteed; callers needing strict order should feed this through
// playback.Queue.
func (p *Pipeline) Out() <-chan types.TtsSegment { return p.out }

// Submit acquires a permit (blocking until one is free or ctx is done) and
// spawns an independent synthesis task for seg. Submit itself does not
// block on synthesis completing.
func (p *Pipeline) Submit(ctx context.Context, seg types.SentenceSegment) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		p.synthesize(ctx, seg)
	}()
}

// Wait blocks until every submitted synthesis task has completed.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) synthesize(ctx context.Context, seg types.SentenceSegment) {
	params := p.params
	params.Text = seg.Text

	key, keyErr := ttscache.Key(params)
	if keyErr != nil {
		slog.Warn("ttspipeline: compute cache key failed", "error", keyErr)
	}

	if keyErr == nil && p.cache != nil {
		cached, ok, lookupErr := p.cache.Lookup(ctx, key)
		if lookupErr != nil {
			slog.Warn("ttspipeline: cache lookup failed", "error", lookupErr)
		} else if ok {
			p.emit(seg, pcmS16LEToFloat32(cached.AudioData), 16000, time.Duration(cached.DurationMs)*time.Millisecond)
			return
		}
	}

	result, err := p.provider.Synthesize(ctx, seg.Text, tts.Params{
		Model:     params.Model,
		Speed:     params.Speed,
		StyleID:   params.StyleID,
		SpeakerID: params.SpeakerID,
		Pitch:     params.Pitch,
	})
	if err != nil {
		slog.Error("ttspipeline: synthesis failed", "index", seg.Index, "error", err)
		return
	}

	duration := pcmDuration(len(result.PCM), result.SampleRate)

	if keyErr == nil && p.cache != nil {
		if err := p.cache.Insert(ctx, types.CachedAudio{
			CacheKey:    key,
			Text:        seg.Text,
			Model:       params.Model,
			Speed:       params.Speed,
			StyleID:     params.StyleID,
			SpeakerID:   params.SpeakerID,
			Pitch:       params.Pitch,
			AudioFormat: "pcm_s16le",
			AudioData:   result.PCM,
			DurationMs:  duration.Milliseconds(),
		}); err != nil {
			slog.Warn("ttspipeline: cache insert failed", "error", err)
		}
	}

	p.emit(seg, pcmS16LEToFloat32(result.PCM), result.SampleRate, duration)
}

func (p *Pipeline) emit(seg types.SentenceSegment, audio []float32, sampleRate int, duration time.Duration) {
	p.out <- types.TtsSegment{
		Index:      seg.Index,
		Text:       seg.Text,
		Audio:      audio,
		SampleRate: sampleRate,
		DurationMs: duration.Milliseconds(),
	}
}

// pcmDuration computes the playback duration of n bytes of mono s16le PCM
// at sampleRate.
func pcmDuration(nBytes, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := nBytes / 2
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// pcmS16LEToFloat32 converts mono s16le PCM to float32 samples in
// [-1.0, 1.0].
func pcmS16LEToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		out[i] = float32(s) / 32768.0
	}
	return out
}
