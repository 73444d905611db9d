// Package mediaplatform defines the Driver abstraction VoiceGateway uses for
// the actual real-time media session, once the control-transport handshake
// (VoiceStateData + VoiceServerData) has produced connection parameters.
//
// Decoding is pass-through by design: a Driver hands the core raw Opus
// payloads tagged by speaker source id; AudioReceiver owns Opus decode,
// downmix, and resample. Symmetrically, SendOpus accepts pre-encoded Opus
// frames — encoding happens in the core's play-out path, not here.
package mediaplatform

import "context"

// OpusPacket is one inbound media tick's payload for a single speaking
// source.
type OpusPacket struct {
	SourceID  uint32
	Payload   []byte
	Timestamp uint32
}

// SpeakingEvent reports a change in a source's speaking state, the signal
// SsrcUserMap uses to learn and retire source-id/user-id bindings.
type SpeakingEvent struct {
	SourceID uint32
	UserID   string
	Speaking bool
}

// ConnectParams carries the sanitised connection parameters assembled by
// VoiceGateway once both handshake halves (session credential, media
// endpoint+token) have arrived.
type ConnectParams struct {
	GuildID   string
	ChannelID string
	UserID    string
	SessionID string
	Token     string
	Endpoint  string // scheme and trailing slash already stripped
}

// Session is an established real-time media session for one guild.
//
// Implementations must be safe for concurrent use. Packets and
// SpeakingEvents are closed when the session ends, by either side.
type Session interface {
	// Packets returns the channel of inbound Opus payloads, one per speaking
	// source per media tick.
	Packets() <-chan OpusPacket

	// SpeakingEvents returns the channel of speaking state transitions.
	SpeakingEvents() <-chan SpeakingEvent

	// SendOpus transmits a single pre-encoded Opus frame. Implementations
	// must not block indefinitely; a full internal send buffer should drop
	// rather than stall the caller.
	SendOpus(frame []byte) error

	// Close tears down the session. Safe to call more than once.
	Close() error
}

// Driver is the entry point for a real-time media transport.
//
// Implementations must be safe for concurrent use.
type Driver interface {
	// Connect establishes a Session using params. ctx governs only the
	// connection attempt; the returned Session outlives it until Close.
	Connect(ctx context.Context, params ConnectParams) (Session, error)
}
