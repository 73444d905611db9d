package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mossgate/voxbridge/internal/transcriptsink/postgres"
	"github.com/mossgate/voxbridge/pkg/types"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if VOXBRIDGE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("VOXBRIDGE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOXBRIDGE_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestSink(t *testing.T, guildID string) *postgres.Sink {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS transcript_entries CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	sink, err := postgres.New(ctx, dsn, guildID)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(sink.Close)
	return sink
}

func TestSink_WriteAndRecent(t *testing.T) {
	sink := newTestSink(t, "guild-1")
	ctx := context.Background()

	now := time.Now()
	entries := []types.TranscriptEntry{
		{Kind: types.UserSpeech, UserID: "user-1", UserName: "Alice", Text: "hello there", Timestamp: now.Add(-2 * time.Minute)},
		{Kind: types.BotResponse, BotName: "Bot", Text: "hi Alice", Timestamp: now.Add(-1 * time.Minute)},
		{Kind: types.BotResponseInterrupted, BotName: "Bot", Text: "full intended response", PlayedText: "full int", Timestamp: now},
	}

	for _, e := range entries {
		if err := sink.Write(ctx, e); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	recent, err := sink.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("len(recent) = %d, want 3", len(recent))
	}
	if recent[0].Text != "hello there" || recent[2].Kind != types.BotResponseInterrupted {
		t.Errorf("unexpected ordering/content: %+v", recent)
	}
	if recent[2].PlayedText != "full int" {
		t.Errorf("PlayedText = %q, want %q", recent[2].PlayedText, "full int")
	}
}

func TestSink_IsolatesByGuild(t *testing.T) {
	sinkA := newTestSink(t, "guild-a")
	ctx := context.Background()

	dsn := testDSN(t)
	sinkB, err := postgres.New(ctx, dsn, "guild-b")
	if err != nil {
		t.Fatalf("New guild-b: %v", err)
	}
	t.Cleanup(sinkB.Close)

	if err := sinkA.Write(ctx, types.TranscriptEntry{Kind: types.UserSpeech, UserID: "u1", Text: "in guild a"}); err != nil {
		t.Fatalf("Write guild a: %v", err)
	}

	recentB, err := sinkB.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent guild b: %v", err)
	}
	if len(recentB) != 0 {
		t.Errorf("guild-b saw %d entries, want 0 (guild isolation)", len(recentB))
	}
}
