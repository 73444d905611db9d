// Package discord implements mediaplatform.Driver over a
// *discordgo.Session's voice connection machinery.
//
// discordgo.ChannelVoiceJoin performs its own VOICE_STATE_UPDATE /
// VOICE_SERVER_UPDATE handshake internally; there is no public discordgo API
// to hand it an externally-assembled session credential and media endpoint.
// params.SessionID/Token/Endpoint are therefore accepted for interface
// conformance and logged, but the actual join re-runs discordgo's own
// handshake against the same guild/channel — the outer VoiceGateway state
// machine still owns the observable Connecting/Connected/Reconnecting
// transitions and still buffers the two handshake halves for validation
// (§4.1/§4.11 in spec terms), it just isn't the party that feeds them to the
// wire.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/mossgate/voxbridge/pkg/mediaplatform"
)

const (
	opusSampleRate = 48000
	opusChannels   = 2

	packetChanBuffer   = 256
	speakingChanBuffer = 32
	sendChanBuffer     = 64
)

// Driver implements mediaplatform.Driver using an existing discordgo
// session. The session is owned by the bot layer and shared across guilds.
type Driver struct {
	session *discordgo.Session
}

// New creates a Driver wrapping session.
func New(session *discordgo.Session) *Driver {
	return &Driver{session: session}
}

// Connect joins params.ChannelID in params.GuildID and returns a live
// Session demuxing Opus by SSRC.
func (d *Driver) Connect(ctx context.Context, params mediaplatform.ConnectParams) (mediaplatform.Session, error) {
	vc, err := d.session.ChannelVoiceJoin(params.GuildID, params.ChannelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("mediaplatform/discord: join channel %q: %w", params.ChannelID, err)
	}

	sess := &session{
		vc:       vc,
		session:  d.session,
		guildID:  params.GuildID,
		packets:  make(chan mediaplatform.OpusPacket, packetChanBuffer),
		speaking: make(chan mediaplatform.SpeakingEvent, speakingChanBuffer),
		send:     make(chan []byte, sendChanBuffer),
		done:     make(chan struct{}),
	}
	sess.removeHandler = d.session.AddHandler(sess.handleSpeakingUpdate)

	go sess.recvLoop()
	go sess.sendLoop()

	return sess, nil
}

// session adapts a *discordgo.VoiceConnection to mediaplatform.Session.
type session struct {
	vc      *discordgo.VoiceConnection
	session *discordgo.Session
	guildID string

	packets  chan mediaplatform.OpusPacket
	speaking chan mediaplatform.SpeakingEvent
	send     chan []byte

	removeHandler func()

	done      chan struct{}
	closeOnce sync.Once
}

func (s *session) Packets() <-chan mediaplatform.OpusPacket       { return s.packets }
func (s *session) SpeakingEvents() <-chan mediaplatform.SpeakingEvent { return s.speaking }

// SendOpus queues a pre-encoded Opus frame; the frame is dropped if the send
// buffer is full rather than blocking the caller.
func (s *session) SendOpus(frame []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("mediaplatform/discord: session is closed")
	default:
	}
	select {
	case s.send <- frame:
		return nil
	default:
		slog.Warn("mediaplatform/discord: send buffer full, dropping frame", "guild", s.guildID)
		return nil
	}
}

// Close tears down the underlying voice connection and background loops.
func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.removeHandler != nil {
			s.removeHandler()
		}
		err = s.vc.Disconnect()
		close(s.packets)
		close(s.speaking)
	})
	return err
}

// recvLoop forwards discordgo's demultiplexed Opus packets onto Packets,
// dropping rather than blocking when the consumer falls behind.
func (s *session) recvLoop() {
	for {
		select {
		case <-s.done:
			return
		case pkt, ok := <-s.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}
			select {
			case s.packets <- mediaplatform.OpusPacket{
				SourceID:  pkt.SSRC,
				Payload:   pkt.Opus,
				Timestamp: pkt.Timestamp,
			}:
			default:
			}
		}
	}
}

// sendLoop drains queued outbound Opus frames to the Discord voice socket,
// toggling the speaking indicator around bursts of activity.
func (s *session) sendLoop() {
	speaking := false
	for {
		select {
		case <-s.done:
			if speaking {
				_ = s.vc.Speaking(false)
			}
			return
		case frame, ok := <-s.send:
			if !ok {
				return
			}
			if !speaking {
				if err := s.vc.Speaking(true); err != nil {
					slog.Warn("mediaplatform/discord: speaking(true) failed", "error", err)
				}
				speaking = true
			}
			select {
			case s.vc.OpusSend <- frame:
			case <-s.done:
				return
			}
		}
	}
}

// handleSpeakingUpdate translates discordgo's VoiceSpeakingUpdate events
// (SSRC <-> user binding) into SpeakingEvents.
func (s *session) handleSpeakingUpdate(_ *discordgo.Session, vsu *discordgo.VoiceSpeakingUpdate) {
	select {
	case s.speaking <- mediaplatform.SpeakingEvent{
		SourceID: uint32(vsu.SSRC),
		UserID:   vsu.UserID,
		Speaking: vsu.Speaking,
	}:
	case <-s.done:
	default:
	}
}

var _ mediaplatform.Driver = (*Driver)(nil)
