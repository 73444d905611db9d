// Package ttscache implements TtsCache: a synthesised-audio cache keyed by
// the content hash of its synthesis parameters, backed by an embedded
// SQLite database. Reads and writes share one lock — the embedded store has
// no independent concurrent-writer support, and in practice lookups are
// cheap relative to synthesis.
package ttscache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mossgate/voxbridge/pkg/types"
)

const ddl = `
CREATE TABLE IF NOT EXISTS tts_cache (
    cache_key    TEXT PRIMARY KEY,
    text         TEXT NOT NULL,
    model        TEXT NOT NULL,
    speed        REAL NOT NULL,
    style_id     TEXT NOT NULL,
    speaker_id   TEXT NOT NULL,
    pitch        REAL NOT NULL,
    audio_format TEXT NOT NULL,
    audio_data   BLOB NOT NULL,
    duration_ms  INTEGER NOT NULL,
    created_at   INTEGER NOT NULL,
    last_used_at INTEGER NOT NULL,
    use_count    INTEGER NOT NULL,
    access_seq   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tts_cache_access_seq ON tts_cache (access_seq);
`

// Cache is a single-writer SQLite-backed TTS audio cache with size-bounded
// eviction by least-recently-used access sequence.
type Cache struct {
	limitBytes int64

	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures its schema exists. limitBytes bounds the total size of cached
// audio_data; Insert evicts least-recently-used rows to stay under it.
func Open(ctx context.Context, path string, limitBytes int64) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ttscache: open %q: %w", path, err)
	}
	// The embedded store has no meaningful concurrent-writer support; cap
	// the pool at one connection so every access is naturally serialised
	// at the driver level too.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("ttscache: migrate: %w", err)
	}

	return &Cache{limitBytes: limitBytes, db: db}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Ping verifies the underlying database connection is reachable. Intended
// for use as a health readiness check.
func (c *Cache) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Key computes the canonical cache key for a parameter tuple: SHA-256 of its
// canonical JSON encoding, hex-encoded. Two CacheParams with identical field
// values always hash to the same key.
func Key(params types.CacheParams) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("ttscache: marshal cache params: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Lookup returns the cached audio for key, bumping its last_used_at,
// use_count, and access_seq on hit. ok is false on miss.
func (c *Cache) Lookup(ctx context.Context, key string) (audio types.CachedAudio, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := c.db.QueryRowContext(ctx, `
		SELECT cache_key, text, model, speed, style_id, speaker_id, pitch,
		       audio_format, audio_data, duration_ms, created_at, last_used_at,
		       use_count, access_seq
		FROM tts_cache WHERE cache_key = ?`, key)

	var (
		a                   types.CachedAudio
		createdAt, lastUsed int64
	)
	scanErr := row.Scan(
		&a.CacheKey, &a.Text, &a.Model, &a.Speed, &a.StyleID, &a.SpeakerID, &a.Pitch,
		&a.AudioFormat, &a.AudioData, &a.DurationMs, &createdAt, &lastUsed,
		&a.UseCount, &a.AccessSeq,
	)
	if scanErr == sql.ErrNoRows {
		return types.CachedAudio{}, false, nil
	}
	if scanErr != nil {
		return types.CachedAudio{}, false, fmt.Errorf("ttscache: lookup: %w", scanErr)
	}
	a.CreatedAt = time.UnixMilli(createdAt)
	a.LastUsedAt = time.UnixMilli(lastUsed)

	nextSeq, err := c.nextAccessSeq(ctx)
	if err != nil {
		return types.CachedAudio{}, false, err
	}
	now := time.Now()
	if _, err := c.db.ExecContext(ctx, `
		UPDATE tts_cache SET last_used_at = ?, use_count = use_count + 1, access_seq = ?
		WHERE cache_key = ?`, now.UnixMilli(), nextSeq, key); err != nil {
		return types.CachedAudio{}, false, fmt.Errorf("ttscache: bump access: %w", err)
	}
	a.LastUsedAt = now
	a.UseCount++
	a.AccessSeq = nextSeq

	return a, true, nil
}

// Insert upserts a CachedAudio row by its CacheKey and then evicts rows, by
// ascending access_seq, until total audio_data size is within limitBytes.
func (c *Cache) Insert(ctx context.Context, a types.CachedAudio) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	nextSeq, err := c.nextAccessSeq(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO tts_cache
		    (cache_key, text, model, speed, style_id, speaker_id, pitch,
		     audio_format, audio_data, duration_ms, created_at, last_used_at,
		     use_count, access_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
		    text = excluded.text,
		    model = excluded.model,
		    speed = excluded.speed,
		    style_id = excluded.style_id,
		    speaker_id = excluded.speaker_id,
		    pitch = excluded.pitch,
		    audio_format = excluded.audio_format,
		    audio_data = excluded.audio_data,
		    duration_ms = excluded.duration_ms,
		    last_used_at = excluded.last_used_at,
		    access_seq = excluded.access_seq`,
		a.CacheKey, a.Text, a.Model, a.Speed, a.StyleID, a.SpeakerID, a.Pitch,
		a.AudioFormat, a.AudioData, a.DurationMs, now, now, nextSeq,
	)
	if err != nil {
		return fmt.Errorf("ttscache: insert: %w", err)
	}

	return c.evict(ctx)
}

// nextAccessSeq returns one greater than the current max access_seq. Must be
// called with c.mu held.
func (c *Cache) nextAccessSeq(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	if err := c.db.QueryRowContext(ctx, `SELECT MAX(access_seq) FROM tts_cache`).Scan(&max); err != nil {
		return 0, fmt.Errorf("ttscache: max access_seq: %w", err)
	}
	if !max.Valid {
		return 1, nil
	}
	return max.Int64 + 1, nil
}

// evict deletes the least-recently-used row repeatedly until the total
// audio_data size is within limitBytes or no rows remain. Must be called
// with c.mu held.
func (c *Cache) evict(ctx context.Context) error {
	if c.limitBytes <= 0 {
		return nil
	}
	for {
		var total sql.NullInt64
		if err := c.db.QueryRowContext(ctx, `SELECT SUM(LENGTH(audio_data)) FROM tts_cache`).Scan(&total); err != nil {
			return fmt.Errorf("ttscache: total size: %w", err)
		}
		if !total.Valid || total.Int64 <= c.limitBytes {
			return nil
		}

		res, err := c.db.ExecContext(ctx, `
			DELETE FROM tts_cache WHERE cache_key = (
				SELECT cache_key FROM tts_cache ORDER BY access_seq ASC LIMIT 1
			)`)
		if err != nil {
			return fmt.Errorf("ttscache: evict: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("ttscache: evict rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
}
