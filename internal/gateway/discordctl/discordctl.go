// Package discordctl implements gateway.ControlTransport over a
// *discordgo.Session and wires its VOICE_STATE_UPDATE/VOICE_SERVER_UPDATE
// events back into a gateway.Gateway's HandleVoiceState/HandleVoiceServer.
package discordctl

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/mossgate/voxbridge/internal/gateway"
	"github.com/mossgate/voxbridge/pkg/types"
)

// Transport sends voice-channel join requests over an existing discordgo
// session's gateway connection.
type Transport struct {
	session *discordgo.Session
}

// New returns a Transport wrapping session. session must already be open.
func New(session *discordgo.Session) *Transport {
	return &Transport{session: session}
}

// SendJoin sends the raw op4 voice state update. It does not wait for the
// resulting handshake: ChannelVoiceJoinManual only requests the state
// change, the VOICE_STATE_UPDATE/VOICE_SERVER_UPDATE events that follow are
// delivered to whichever handlers are registered, typically Bind's.
func (t *Transport) SendJoin(ctx context.Context, guildID, channelID string, selfMute, selfDeaf bool) error {
	if err := t.session.ChannelVoiceJoinManual(guildID, channelID, selfMute, selfDeaf); err != nil {
		return fmt.Errorf("discordctl: request voice join: %w", err)
	}
	return nil
}

// Bind registers session handlers that translate discordgo's
// VOICE_STATE_UPDATE/VOICE_SERVER_UPDATE events into calls against gw.
// Returns a function that removes both handlers.
func Bind(session *discordgo.Session, gw *gateway.Gateway) func() {
	removeState := session.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		gw.HandleVoiceState(context.Background(), types.VoiceStateData{
			GuildID:   vs.GuildID,
			ChannelID: vs.ChannelID,
			UserID:    vs.UserID,
			SessionID: vs.SessionID,
		})
	})
	removeServer := session.AddHandler(func(s *discordgo.Session, vsrv *discordgo.VoiceServerUpdate) {
		gw.HandleVoiceServer(context.Background(), types.VoiceServerData{
			GuildID:  vsrv.GuildID,
			Token:    vsrv.Token,
			Endpoint: vsrv.Endpoint,
		})
	})
	return func() {
		removeState()
		removeServer()
	}
}

var _ gateway.ControlTransport = (*Transport)(nil)
