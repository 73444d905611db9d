// Package anyllm implements agentbridge.Bridge over
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface
// supporting OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// more. It is the default non-mock agent bridge: any provider name any-llm-go
// supports is reachable through this one bridge.
package anyllm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/mossgate/voxbridge/pkg/agentbridge"
)

// Bridge implements agentbridge.Bridge by wrapping any-llm-go and keeping a
// small rolling message history per user.
type Bridge struct {
	backend      anyllmlib.Provider
	model        string
	systemPrompt string

	mu      sync.Mutex
	history map[string][]anyllmlib.Message
}

// Option configures a Bridge beyond the any-llm-go provider options.
type Option func(*Bridge)

// WithSystemPrompt sets a system prompt prepended to every user's history.
func WithSystemPrompt(prompt string) Option {
	return func(b *Bridge) { b.systemPrompt = prompt }
}

// New creates a Bridge backed by the given any-llm-go provider name
// ("openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq",
// "llamacpp", "llamafile") and model.
func New(providerName, model string, opts []anyllmlib.Option, bridgeOpts ...Option) (*Bridge, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	b := &Bridge{
		backend: backend,
		model:   model,
		history: make(map[string][]anyllmlib.Message),
	}
	for _, o := range bridgeOpts {
		o(b)
	}
	return b, nil
}

func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Generate appends text to userID's history, streams a completion, and
// accumulates the assistant's reply back into the history once done.
func (b *Bridge) Generate(ctx context.Context, userID, text string) (<-chan agentbridge.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, agentbridge.ErrEmptyText
	}

	b.mu.Lock()
	messages := append([]anyllmlib.Message{}, b.history[userID]...)
	messages = append(messages, anyllmlib.Message{Role: anyllmlib.RoleUser, Content: text})
	b.mu.Unlock()

	params := anyllmlib.CompletionParams{
		Model:    b.model,
		Messages: withSystemPrompt(b.systemPrompt, messages),
		Stream:   true,
	}

	backendChunks, backendErrs := b.backend.CompletionStream(ctx, params)

	out := make(chan agentbridge.Chunk, 32)
	go func() {
		defer close(out)

		var reply strings.Builder
		for chunk := range backendChunks {
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

		if err := <-backendErrs; err != nil {
			select {
			case out <- agentbridge.Chunk{Err: fmt.Errorf("anyllm: %w", err)}:
			case <-ctx.Done():
			}
			return
		}

		b.mu.Lock()
		b.history[userID] = append(messages, anyllmlib.Message{Role: anyllmlib.RoleAssistant, Content: reply.String()})
		b.mu.Unlock()

		select {
		case out <- agentbridge.Chunk{Done: true}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

// ResetContext discards userID's conversation history.
func (b *Bridge) ResetContext(userID string) error {
	b.mu.Lock()
	delete(b.history, userID)
	b.mu.Unlock()
	return nil
}

func withSystemPrompt(prompt string, messages []anyllmlib.Message) []anyllmlib.Message {
	if prompt == "" {
		return messages
	}
	out := make([]anyllmlib.Message, 0, len(messages)+1)
	out = append(out, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: prompt})
	out = append(out, messages...)
	return out
}

var _ agentbridge.Bridge = (*Bridge)(nil)
