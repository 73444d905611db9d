package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mossgate/voxbridge/pkg/agentbridge"
	"github.com/mossgate/voxbridge/pkg/provider/stt"
	"github.com/mossgate/voxbridge/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	stt   map[STTProviderName]func(STT) (stt.Provider, error)
	tts   map[TTSProviderName]func(TTS) (tts.Provider, error)
	agent map[string]func(Entry) (agentbridge.Bridge, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:   make(map[STTProviderName]func(STT) (stt.Provider, error)),
		tts:   make(map[TTSProviderName]func(TTS) (tts.Provider, error)),
		agent: make(map[string]func(Entry) (agentbridge.Bridge, error)),
	}
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name STTProviderName, factory func(STT) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name TTSProviderName, factory func(TTS) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterAgent registers a conversational agent bridge factory under name.
func (r *Registry) RegisterAgent(name string, factory func(Entry) (agentbridge.Bridge, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agent[name] = factory
}

// CreateSTT instantiates an STT provider using the factory registered under cfg.Provider.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSTT(cfg STT) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateTTS instantiates a TTS provider using the factory registered under cfg.Provider.
func (r *Registry) CreateTTS(cfg TTS) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateAgent instantiates a conversational agent bridge using the factory
// registered under entry.Name.
func (r *Registry) CreateAgent(entry Entry) (agentbridge.Bridge, error) {
	r.mu.RLock()
	factory, ok := r.agent[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: agent/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
