// Package types defines the shared data model used across the voxbridge voice
// pipeline. These types form the lingua franca between the receiver,
// dispatcher, per-user worker, and the provider packages — each package owns
// its own internal types, but the cross-cutting structures that flow through
// channel boundaries live here to avoid circular imports.
package types

import "time"

// AudioChunk is the unit of PCM audio emitted by the receiver for a single
// speaker on a single media tick (~20 ms). It is created per tick, consumed
// immediately by the dispatcher, and never persisted.
type AudioChunk struct {
	// SourceID is the opaque speaker-source identifier (SSRC) the audio
	// arrived on.
	SourceID uint32

	// PCM holds 16 kHz mono float32 samples in the range [-1.0, 1.0].
	PCM []float32
}

// SpeakerIdentity binds a speaker-source id to a user identity. The mapping
// is maintained by ssrcmap.Map and updated from platform speaking-event
// callbacks.
type SpeakerIdentity struct {
	SourceID    uint32
	UserID      string
	DisplayName string
}

// SentenceSegment is a unit of agent-response text emitted by the sentence
// splitter. Index corresponds 1:1 with a TtsSegment of the same Index.
type SentenceSegment struct {
	// Index is monotonically assigned starting at 0 for each response.
	Index int

	// Text is non-empty and has leading/trailing whitespace trimmed.
	Text string
}

// TtsSegment is a unit of synthesised audio produced by the TTS pipeline for
// a SentenceSegment of the same Index. Segments may complete out of order;
// the playback queue reorders them before hand-off.
type TtsSegment struct {
	Index      int
	Text       string
	Audio      []float32
	SampleRate int
	DurationMs int64
}

// ConnectionState is the set of states a per-guild VoiceGateway may occupy.
type ConnectionState int

const (
	// Disconnected is the initial/idle state: no media connection.
	Disconnected ConnectionState = iota

	// Connecting indicates a join request has been sent and the gateway is
	// waiting on the handshake halves and the underlying connect call.
	Connecting

	// Connected indicates an active media session.
	Connected

	// Reconnecting indicates the transport was lost and a bounded number of
	// reconnect attempts are underway.
	Reconnecting
)

// String returns the human-readable name of the state.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ConnectionSnapshot is a read-only view of a VoiceGateway's current state,
// returned by VoiceGateway.Snapshot for diagnostics and tests.
type ConnectionSnapshot struct {
	State     ConnectionState
	GuildID   string
	ChannelID string
	Since     time.Time
	Attempt   int
	MaxAttempt int
}

// CachedAudio is a row of the TTS cache: synthesised audio keyed by the
// content hash of its synthesis parameters.
type CachedAudio struct {
	CacheKey    string
	Text        string
	Model       string
	Speed       float64
	StyleID     string
	SpeakerID   string
	Pitch       float64
	AudioFormat string
	AudioData   []byte
	DurationMs  int64
	CreatedAt   time.Time
	LastUsedAt  time.Time
	UseCount    int64
	AccessSeq   int64
}

// CacheParams is the synthesis parameter tuple CachedAudio rows and cache
// lookups are keyed on. Two CacheParams with identical field values hash to
// the same cache key regardless of field order.
type CacheParams struct {
	Text      string  `json:"text"`
	Model     string  `json:"model"`
	Speed     float64 `json:"speed"`
	StyleID   string  `json:"style_id"`
	SpeakerID string  `json:"speaker_id"`
	Pitch     float64 `json:"pitch"`
}

// LabeledUtterance is a single speaker turn accumulated by the
// ContextWindowBuffer for multi-speaker coalescing.
type LabeledUtterance struct {
	UserID    string
	Username  string
	Text      string
	Timestamp time.Time
}

// TranscriptEntryKind classifies a TranscriptEntry.
type TranscriptEntryKind int

const (
	// UserSpeech records a finalised player utterance.
	UserSpeech TranscriptEntryKind = iota

	// BotResponse records a completed agent response that played to
	// completion.
	BotResponse

	// BotResponseInterrupted records an agent response that was cut short by
	// a barge-in; PlayedText holds only the already-played prefix.
	BotResponseInterrupted
)

// String returns the human-readable name of the entry kind.
func (k TranscriptEntryKind) String() string {
	switch k {
	case UserSpeech:
		return "user_speech"
	case BotResponse:
		return "bot_response"
	case BotResponseInterrupted:
		return "bot_response_interrupted"
	default:
		return "unknown"
	}
}

// TranscriptEntry is emitted for external observation (logging, a persistent
// sink). The voice core never reads its own emitted entries back.
type TranscriptEntry struct {
	Kind TranscriptEntryKind

	// UserID/UserName are set for UserSpeech entries.
	UserID   string
	UserName string

	// BotName is set for BotResponse and BotResponseInterrupted entries.
	BotName string

	// Text is the utterance or response text. For BotResponseInterrupted,
	// PlayedText (not Text) holds the already-played prefix — Text holds the
	// full intended response for audit purposes.
	Text string

	// PlayedText is set only for BotResponseInterrupted: the concatenation of
	// segment texts that had already been handed to playback at the moment of
	// cancellation.
	PlayedText string

	Timestamp time.Time
}

// VoiceStateData mirrors the inbound session-credential half of the
// handshake described in spec.md §6 — a Discord VOICE_STATE_UPDATE event
// scoped to the bot's own user.
type VoiceStateData struct {
	GuildID   string
	ChannelID string // empty means the bot was removed from the channel
	UserID    string
	SessionID string
}

// VoiceServerData mirrors the inbound media-endpoint half of the handshake —
// a Discord VOICE_SERVER_UPDATE event.
type VoiceServerData struct {
	GuildID  string
	Token    string
	Endpoint string
}
