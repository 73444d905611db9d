package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if !cfg.Voice.Enabled {
		return errors.Join(errs...)
	}

	if cfg.Discord.BotToken == "" {
		errs = append(errs, errors.New("discord.bot_token is required when voice.enabled is true"))
	}

	if cfg.Voice.Audio.InputSampleRate <= 0 {
		errs = append(errs, errors.New("voice.audio.input_sample_rate must be positive"))
	}
	if cfg.Voice.Audio.SttSampleRate <= 0 {
		errs = append(errs, errors.New("voice.audio.stt_sample_rate must be positive"))
	}

	if cfg.Voice.STT.Provider != "" && !cfg.Voice.STT.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("voice.stt.provider %q is invalid; valid values: ws, whispercpp, mock", cfg.Voice.STT.Provider))
	}
	if cfg.Voice.STT.Provider == STTWS && cfg.Voice.STT.WS.Endpoint == "" {
		errs = append(errs, errors.New("voice.stt.ws.endpoint is required when voice.stt.provider is \"ws\""))
	}

	if cfg.Voice.TTS.Provider != "" && !cfg.Voice.TTS.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("voice.tts.provider %q is invalid; valid values: aivis-speech, elevenlabs, mock", cfg.Voice.TTS.Provider))
	}
	if cfg.Voice.TTS.Provider != TTSMock && cfg.Voice.TTS.Provider != "" && cfg.Voice.TTS.Endpoint == "" {
		slog.Warn("voice.tts.endpoint is empty; provider will fall back to its built-in default", "provider", cfg.Voice.TTS.Provider)
	}

	if cfg.Voice.Pipeline.MaxConcurrentSTT < 0 {
		errs = append(errs, errors.New("voice.pipeline.max_concurrent_stt must not be negative"))
	}
	if cfg.Voice.Pipeline.MaxConcurrentTTS < 0 {
		errs = append(errs, errors.New("voice.pipeline.max_concurrent_tts must not be negative"))
	}
	if cfg.Voice.Pipeline.SentenceMinLength < 0 {
		errs = append(errs, errors.New("voice.pipeline.sentence_min_length must not be negative"))
	}

	if cfg.Voice.Transcript.Enabled && cfg.Voice.Transcript.ChannelID == "" {
		errs = append(errs, errors.New("voice.transcript.channel_id is required when voice.transcript.enabled is true"))
	}

	if cfg.Agent.Name == "" {
		slog.Warn("agent.name is not configured; voice sessions will have no conversational responses")
	}

	if cfg.Memory.PostgresDSN == "" && cfg.Voice.Transcript.Enabled {
		slog.Warn("memory.postgres_dsn is empty; transcripts will be logged but not durably persisted")
	}

	if cfg.Voice.TTSCache.MaxTotalMB < 0 {
		errs = append(errs, errors.New("voice.tts_cache.max_total_mb must not be negative"))
	}

	return errors.Join(errs...)
}
