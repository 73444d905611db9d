// Package config provides the configuration schema, loader, and provider
// registry for the Voxbridge voice pipeline.
package config

// Config is the root configuration structure for Voxbridge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  Server  `yaml:"server"`
	Discord Discord `yaml:"discord"`
	Agent   Entry   `yaml:"agent"`
	Memory  Memory  `yaml:"memory"`
	Voice   Voice   `yaml:"voice"`
}

// Discord holds the bot's own login credentials, separate from the
// per-guild state the gateway package tracks at runtime.
type Discord struct {
	// BotToken authenticates the bot user's gateway connection. Required
	// whenever voice.enabled is true.
	BotToken string `yaml:"bot_token"`
}

// Server holds network and logging settings for the voxbridge process.
type Server struct {
	// ListenAddr is the TCP address the health/metrics HTTP server listens
	// on (e.g., ":8080"). Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// LogLevel is a validated log verbosity name.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised log levels, or empty
// (meaning "use the default").
func (l LogLevel) IsValid() bool {
	switch l {
	case "", LogDebug, LogInfo, LogWarn, LogError:
		return true
	default:
		return false
	}
}

// Entry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type Entry struct {
	// Name selects the registered provider implementation (e.g., "anyllm", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration not covered above.
	Options map[string]any `yaml:"options"`
}

// Memory holds settings for the optional durable transcript sink.
type Memory struct {
	// PostgresDSN is the connection string for internal/transcriptsink/postgres.
	// Empty means transcripts are only logged, never persisted durably.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Voice is the root of the per-guild voice pipeline configuration, matching
// the "voice.*" option namespace.
type Voice struct {
	Enabled bool `yaml:"enabled"`

	Audio      Audio      `yaml:"audio"`
	STT        STT        `yaml:"stt"`
	TTS        TTS        `yaml:"tts"`
	Pipeline   Pipeline   `yaml:"pipeline"`
	Transcript Transcript `yaml:"transcript"`
	TTSCache   TTSCache   `yaml:"tts_cache"`
	Correction Correction `yaml:"correction"`
}

// Correction configures the phonetic mis-hearing correction pass applied to
// STT finals before they reach the context window and agent bridge.
type Correction struct {
	Enabled    bool     `yaml:"enabled"`
	Vocabulary []string `yaml:"vocabulary"`
}

// Audio configures the sample rates on either side of the pipeline.
type Audio struct {
	// InputSampleRate is the rate audio arrives from the media driver (Hz).
	InputSampleRate int `yaml:"input_sample_rate"`

	// SttSampleRate is the rate audio is resampled to before being sent to
	// the STT provider (Hz).
	SttSampleRate int `yaml:"stt_sample_rate"`
}

// STTProviderName selects an STT provider implementation.
type STTProviderName string

const (
	STTWS         STTProviderName = "ws"
	STTWhisperCpp STTProviderName = "whispercpp"
	STTMock       STTProviderName = "mock"
)

// IsValid reports whether p is a recognised STT provider name, or empty.
func (p STTProviderName) IsValid() bool {
	switch p {
	case "", STTWS, STTWhisperCpp, STTMock:
		return true
	default:
		return false
	}
}

// STT configures the speech-to-text provider and its WebSocket transport.
type STT struct {
	Provider STTProviderName `yaml:"provider"`

	WS WSTransport `yaml:"ws"`

	// Temperature is forwarded to the STT provider's config frame.
	Temperature float64 `yaml:"temperature"`

	// ModelPath is the on-disk GGML model used by the whispercpp provider.
	// Unused by the other providers.
	ModelPath string `yaml:"model_path"`

	// APIKey authenticates against the ws provider's backend, if it requires
	// one. Unused by whispercpp and mock.
	APIKey string `yaml:"api_key"`
}

// WSTransport configures the streaming STT WebSocket connection.
type WSTransport struct {
	Endpoint             string `yaml:"endpoint"`
	ReconnectIntervalMs  int    `yaml:"reconnect_interval_ms"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`
}

// TTSProviderName selects a TTS provider implementation.
type TTSProviderName string

const (
	TTSAivisSpeech TTSProviderName = "aivis-speech"
	TTSElevenLabs  TTSProviderName = "elevenlabs"
	TTSMock        TTSProviderName = "mock"
)

// IsValid reports whether p is a recognised TTS provider name, or empty.
func (p TTSProviderName) IsValid() bool {
	switch p {
	case "", TTSAivisSpeech, TTSElevenLabs, TTSMock:
		return true
	default:
		return false
	}
}

// TTS configures the text-to-speech provider's HTTP endpoint.
type TTS struct {
	Provider TTSProviderName `yaml:"provider"`
	Endpoint string          `yaml:"endpoint"`
	Model    string          `yaml:"model"`

	// APIKey authenticates against the elevenlabs provider. Unused by aivis
	// and mock.
	APIKey string `yaml:"api_key"`

	// SpeedScale is forwarded to the TTS request as the synthesis speed.
	// VolumeScale is loaded from the config file, but nothing reads it:
	// synthesised audio is played at its decoded level.
	SpeedScale  float64 `yaml:"speed_scale"`
	VolumeScale float64 `yaml:"volume_scale"`
}

// Pipeline configures the worker/splitter/ttspipeline tunables.
type Pipeline struct {
	InterruptEnabled  bool `yaml:"interrupt_enabled"`
	IdleTimeoutSec    int  `yaml:"idle_timeout_sec"`
	MaxConcurrentSTT  int  `yaml:"max_concurrent_stt"`
	MaxConcurrentTTS  int  `yaml:"max_concurrent_tts"`
	SentenceMinLength int  `yaml:"sentence_min_length"`
	ContextWindowMs   int  `yaml:"context_window_ms"`
}

// Transcript configures the transcript sink.
type Transcript struct {
	Enabled   bool   `yaml:"enabled"`
	ChannelID string `yaml:"channel_id"`
}

// TTSCache configures the on-disk synthesis cache.
type TTSCache struct {
	// DBPath is the SQLite database file backing the cache. Empty disables
	// caching even if MaxTotalMB is set.
	DBPath     string `yaml:"db_path"`
	MaxTotalMB int    `yaml:"max_total_mb"`
}
