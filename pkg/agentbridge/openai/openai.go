// Package openai implements agentbridge.Bridge directly against the OpenAI
// chat completions API, as an alternative to the any-llm-go bridge for
// deployments that want to stay on the official SDK.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/mossgate/voxbridge/pkg/agentbridge"
)

// config holds optional construction settings.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	systemPrompt string
}

// Option is a functional option for New.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option { return func(c *config) { c.baseURL = url } }

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option { return func(c *config) { c.organization = org } }

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option { return func(c *config) { c.timeout = d } }

// WithSystemPrompt sets a system prompt prepended to every user's history.
func WithSystemPrompt(prompt string) Option { return func(c *config) { c.systemPrompt = prompt } }

// Bridge implements agentbridge.Bridge using the OpenAI chat completions API.
type Bridge struct {
	client oai.Client
	model  string

	systemPrompt string

	mu      sync.Mutex
	history map[string][]oai.ChatCompletionMessageParamUnion
}

// New constructs a Bridge. apiKey and model must be non-empty.
func New(apiKey, model string, opts ...Option) (*Bridge, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	client := oai.NewClient(reqOpts...)
	return &Bridge{
		client:       client,
		model:        model,
		systemPrompt: cfg.systemPrompt,
		history:      make(map[string][]oai.ChatCompletionMessageParamUnion),
	}, nil
}

// Generate streams a completion for userID, appending text as a new user
// message to that user's running history.
func (b *Bridge) Generate(ctx context.Context, userID, text string) (<-chan agentbridge.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, agentbridge.ErrEmptyText
	}

	b.mu.Lock()
	messages := append([]oai.ChatCompletionMessageParamUnion{}, b.history[userID]...)
	messages = append(messages, oai.UserMessage(text))
	b.mu.Unlock()

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(b.model),
		Messages: withSystemPrompt(b.systemPrompt, messages),
	}

	stream := b.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	out := make(chan agentbridge.Chunk, 32)
	go func() {
		defer close(out)
		defer stream.Close()

		var reply strings.Builder
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta != "" {
				reply.WriteString(delta)
			}
			select {
			case out <- agentbridge.Chunk{Text: delta}:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case out <- agentbridge.Chunk{Err: fmt.Errorf("openai: %w", err)}:
			case <-ctx.Done():
			}
			return
		}

		b.mu.Lock()
		b.history[userID] = append(messages, oai.AssistantMessage(reply.String()))
		b.mu.Unlock()

		select {
		case out <- agentbridge.Chunk{Done: true}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

// ResetContext discards userID's message history.
func (b *Bridge) ResetContext(userID string) error {
	b.mu.Lock()
	delete(b.history, userID)
	b.mu.Unlock()
	return nil
}

func withSystemPrompt(prompt string, messages []oai.ChatCompletionMessageParamUnion) []oai.ChatCompletionMessageParamUnion {
	if prompt == "" {
		return messages
	}
	out := make([]oai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	out = append(out, oai.SystemMessage(prompt))
	out = append(out, messages...)
	return out
}

var _ agentbridge.Bridge = (*Bridge)(nil)
