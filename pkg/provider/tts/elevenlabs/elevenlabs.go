// Package elevenlabs implements a tts.Provider over the ElevenLabs batch
// text-to-speech REST endpoint, as a second concrete backend alongside
// aivis — both satisfy the same one-call-per-sentence tts.Provider
// contract, but with distinct wire shapes.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
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

const (
	synthEndpointFmt = "https://api.elevenlabs.io/v1/text-to-speech/%s"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
	defaultTimeout   = 15 * time.Second
)

// Option configures a Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g. "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat sets the raw PCM output format query value (e.g.
// "pcm_16000", "pcm_24000"). The provider parses the rate out of this
// string to populate tts.Result.SampleRate.
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.outputFormat = format }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 15s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider implements tts.Provider backed by the ElevenLabs batch synthesis
// endpoint.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	httpClient   *http.Client
}

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type synthRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize issues a single POST to the voice's synthesis endpoint,
// requesting raw PCM output, and returns the decoded samples.
//
// params.SpeakerID selects the ElevenLabs voice_id; params.Speed maps onto
// voice_settings.stability as the closest available knob (ElevenLabs has no
// direct speed parameter on this endpoint).
func (p *Provider) Synthesize(ctx context.Context, text string, params tts.Params) (tts.Result, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Result{}, tts.ErrEmptyText
	}
	if params.SpeakerID == "" {
		return tts.Result{}, errors.New("elevenlabs: params.SpeakerID (voice id) must not be empty")
	}

	model := params.Model
	if model == "" {
		model = p.model
	}

	stability := 0.5
	if params.Speed > 0 {
		stability = clamp01(params.Speed / 2)
	}

	body := synthRequest{
		Text:    text,
		ModelID: model,
		VoiceSettings: &voiceSettings{
			Stability:       stability,
			SimilarityBoost: 0.75,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return tts.Result{}, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	q := url.Values{}
	q.Set("output_format", p.outputFormat)

	reqURL := fmt.Sprintf(synthEndpointFmt, params.SpeakerID) + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return tts.Result{}, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return tts.Result{}, fmt.Errorf("elevenlabs: POST synthesize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tts.Result{}, fmt.Errorf("elevenlabs: POST synthesize returned status %d", resp.StatusCode)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Result{}, fmt.Errorf("elevenlabs: read response: %w", err)
	}

	return tts.Result{PCM: pcm, SampleRate: outputFormatSampleRate(p.outputFormat)}, nil
}

// outputFormatSampleRate extracts the sample rate embedded in an ElevenLabs
// "pcm_NNNNN" output format string, defaulting to 16000 if unparseable.
func outputFormatSampleRate(format string) int {
	const prefix = "pcm_"
	if !strings.HasPrefix(format, prefix) {
		return 16000
	}
	rate, err := strconv.Atoi(strings.TrimPrefix(format, prefix))
	if err != nil || rate <= 0 {
		return 16000
	}
	return rate
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var _ tts.Provider = (*Provider)(nil)
