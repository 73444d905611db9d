// Package aivis implements a tts.Provider over the AivisSpeech-style REST
// contract: a single GET call per sentence,
// "{base}/voice?model=M&text=T&speed=S&format=wav", returning mono 16-bit
// WAV at a sample rate advertised in the WAV header.
package aivis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mossgate/voxbridge/pkg/provider/tts"
)

const defaultTimeout = 15 * time.Second

// Option configures a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 15s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider implements tts.Provider over the AivisSpeech REST endpoint.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Provider targeting baseURL (e.g. "http://localhost:10101").
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("aivis: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize issues a single GET {base}/voice request and returns the
// decoded PCM.
func (p *Provider) Synthesize(ctx context.Context, text string, params tts.Params) (tts.Result, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Result{}, tts.ErrEmptyText
	}

	q := url.Values{}
	q.Set("text", text)
	q.Set("format", "wav")
	if params.Model != "" {
		q.Set("model", params.Model)
	}
	if params.Speed > 0 {
		q.Set("speed", strconv.FormatFloat(params.Speed, 'f', -1, 64))
	}
	if params.SpeakerID != "" {
		q.Set("speaker_id", params.SpeakerID)
	}
	if params.StyleID != "" {
		q.Set("style_id", params.StyleID)
	}

	reqURL := p.baseURL + "/voice?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return tts.Result{}, fmt.Errorf("aivis: create request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return tts.Result{}, fmt.Errorf("aivis: GET /voice: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tts.Result{}, fmt.Errorf("aivis: GET /voice returned status %d", resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Result{}, fmt.Errorf("aivis: read WAV response: %w", err)
	}

	dataOffset, sampleRate, _, err := tts.ParseWAV(wav)
	if err != nil {
		return tts.Result{}, fmt.Errorf("aivis: %w", err)
	}

	return tts.Result{PCM: wav[dataOffset:], SampleRate: sampleRate}, nil
}

var _ tts.Provider = (*Provider)(nil)
