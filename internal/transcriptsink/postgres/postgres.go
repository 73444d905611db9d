// Package postgres provides a durable, optional transcriptsink.Sink backed
// by PostgreSQL. It is a single append-only table with a full-text index;
// unlike the teacher's three-layer memory store this package replaces, a
// transcript is a flat log, not a retrieval index, so there is no vector
// column and no pgvector dependency.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mossgate/voxbridge/pkg/types"
)

const ddlTranscriptEntries = `
CREATE TABLE IF NOT EXISTS transcript_entries (
    id           BIGSERIAL    PRIMARY KEY,
    guild_id     TEXT         NOT NULL,
    kind         SMALLINT     NOT NULL,
    user_id      TEXT         NOT NULL DEFAULT '',
    user_name    TEXT         NOT NULL DEFAULT '',
    bot_name     TEXT         NOT NULL DEFAULT '',
    text         TEXT         NOT NULL DEFAULT '',
    played_text  TEXT         NOT NULL DEFAULT '',
    "timestamp"  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcript_entries_guild_id
    ON transcript_entries (guild_id);

CREATE INDEX IF NOT EXISTS idx_transcript_entries_guild_timestamp
    ON transcript_entries (guild_id, "timestamp");

CREATE INDEX IF NOT EXISTS idx_transcript_entries_fts
    ON transcript_entries USING GIN (to_tsvector('english', text));
`

// Migrate creates the transcript_entries table and its indexes if they do
// not already exist. Idempotent and safe to call on every application
// start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTranscriptEntries); err != nil {
		return fmt.Errorf("transcriptsink/postgres: migrate: %w", err)
	}
	return nil
}

// Sink is a transcriptsink.Sink backed by a pgxpool.Pool. Safe for
// concurrent use.
type Sink struct {
	pool    *pgxpool.Pool
	guildID string
}

// New connects to the database at dsn, runs Migrate, and returns a Sink
// scoped to guildID.
func New(ctx context.Context, dsn, guildID string) (*Sink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("transcriptsink/postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcriptsink/postgres: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Sink{pool: pool, guildID: guildID}, nil
}

// Write implements transcriptsink.Sink.
func (s *Sink) Write(ctx context.Context, entry types.TranscriptEntry) error {
	const q = `
		INSERT INTO transcript_entries
		    (guild_id, kind, user_id, user_name, bot_name, text, played_text, "timestamp")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, q,
		s.guildID,
		int16(entry.Kind),
		entry.UserID,
		entry.UserName,
		entry.BotName,
		entry.Text,
		entry.PlayedText,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("transcriptsink/postgres: write entry: %w", err)
	}
	return nil
}

// Recent returns the most recent limit entries for the sink's guild,
// ordered oldest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]types.TranscriptEntry, error) {
	const q = `
		SELECT kind, user_id, user_name, bot_name, text, played_text, "timestamp"
		FROM (
		    SELECT kind, user_id, user_name, bot_name, text, played_text, "timestamp"
		    FROM   transcript_entries
		    WHERE  guild_id = $1
		    ORDER  BY "timestamp" DESC
		    LIMIT  $2
		) recent
		ORDER BY "timestamp"`

	rows, err := s.pool.Query(ctx, q, s.guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("transcriptsink/postgres: recent: %w", err)
	}
	defer rows.Close()

	var entries []types.TranscriptEntry
	for rows.Next() {
		var (
			e    types.TranscriptEntry
			kind int16
		)
		if err := rows.Scan(&kind, &e.UserID, &e.UserName, &e.BotName, &e.Text, &e.PlayedText, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("transcriptsink/postgres: scan row: %w", err)
		}
		e.Kind = types.TranscriptEntryKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcriptsink/postgres: scan rows: %w", err)
	}
	return entries, nil
}

// Close releases all connections held by the underlying pool.
func (s *Sink) Close() {
	s.pool.Close()
}

var _ interface {
	Write(ctx context.Context, entry types.TranscriptEntry) error
} = (*Sink)(nil)
