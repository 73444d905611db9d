// Package transcriptsink defines the consumer boundary for
// types.TranscriptEntry values emitted by per-user workers: a labelled
// record of what was said and what the agent responded, including
// responses cut short by barge-in.
package transcriptsink

import (
	"context"
	"log/slog"

	"github.com/mossgate/voxbridge/pkg/types"
)

// Sink persists or forwards a single TranscriptEntry. Implementations must
// be safe for concurrent use; Run is expected to call Write from a single
// consuming goroutine, but nothing else in this package assumes that.
type Sink interface {
	Write(ctx context.Context, entry types.TranscriptEntry) error
}

// LogSink is a Sink that writes entries to slog. It never returns an error,
// making it a safe default when no durable sink is configured.
type LogSink struct {
	GuildID string
}

// Write logs entry at info level with its kind and speaker/bot label.
func (s LogSink) Write(ctx context.Context, entry types.TranscriptEntry) error {
	switch entry.Kind {
	case types.UserSpeech:
		slog.Info("transcript: user speech", "guild_id", s.GuildID, "user_id", entry.UserID, "user_name", entry.UserName, "text", entry.Text)
	case types.BotResponse:
		slog.Info("transcript: bot response", "guild_id", s.GuildID, "bot_name", entry.BotName, "text", entry.Text)
	case types.BotResponseInterrupted:
		slog.Info("transcript: bot response interrupted", "guild_id", s.GuildID, "bot_name", entry.BotName, "played_text", entry.PlayedText, "full_text", entry.Text)
	default:
		slog.Warn("transcript: unknown entry kind", "kind", entry.Kind)
	}
	return nil
}

// Run drains entries from ch and writes each to sink until ch is closed or
// ctx is cancelled. Write errors are logged, not fatal: a single failed
// persist should not stop the pipeline from continuing to record later
// entries.
func Run(ctx context.Context, ch <-chan types.TranscriptEntry, sink Sink) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			if err := sink.Write(ctx, entry); err != nil {
				slog.Warn("transcriptsink: write failed", "error", err)
			}
		}
	}
}

var _ Sink = LogSink{}
