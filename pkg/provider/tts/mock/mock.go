// Package mock implements a tts.Provider entirely in memory, for tests.
package mock

import (
	"context"
	"encoding/binary"
	"strings"
	"sync"

	"github.com/mossgate/voxbridge/pkg/provider/tts"
)

// Provider synthesises deterministic silence: one 16-bit PCM sample per
// rune of the input text, so callers can assert on output length without
// depending on real audio content. Every call is recorded for inspection.
type Provider struct {
	// SampleRate is reported in every Result. Defaults to 22050 if zero.
	SampleRate int

	// SynthesizeErr, when set, is returned by every Synthesize call instead
	// of a Result.
	SynthesizeErr error

	mu    sync.Mutex
	calls []Call
}

// Call records one Synthesize invocation.
type Call struct {
	Text   string
	Params tts.Params
}

// New returns a Provider defaulting to a 22050 Hz sample rate.
func New() *Provider {
	return &Provider{SampleRate: 22050}
}

// Calls returns every Synthesize call seen so far, in order.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// Synthesize records the call and returns deterministic silent PCM sized to
// the input text, or SynthesizeErr if set.
func (p *Provider) Synthesize(ctx context.Context, text string, params tts.Params) (tts.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Text: text, Params: params})
	p.mu.Unlock()

	if p.SynthesizeErr != nil {
		return tts.Result{}, p.SynthesizeErr
	}
	if strings.TrimSpace(text) == "" {
		return tts.Result{}, tts.ErrEmptyText
	}

	n := len([]rune(text))
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:i*2+2], 0)
	}

	rate := p.SampleRate
	if rate == 0 {
		rate = 22050
	}
	return tts.Result{PCM: pcm, SampleRate: rate}, nil
}

var _ tts.Provider = (*Provider)(nil)
