package ttspipeline

import (
	"context"
	"testing"
	"time"

	"github.com/mossgate/voxbridge/internal/ttscache"
	ttsmock "github.com/mossgate/voxbridge/pkg/provider/tts/mock"
	"github.com/mossgate/voxbridge/pkg/types"
)

func collect(t *testing.T, p *Pipeline, n int) []types.TtsSegment {
	t.Helper()
	var got []types.TtsSegment
	for i := 0; i < n; i++ {
		select {
		case seg := <-p.Out():
			got = append(got, seg)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for segment %d", i)
		}
	}
	return got
}

func TestPipeline_SynthesizesEachSegment(t *testing.T) {
	t.Parallel()

	provider := ttsmock.New()
	p := New(provider, types.CacheParams{Model: "m1"})

	p.Submit(context.Background(), types.SentenceSegment{Index: 0, Text: "hello"})
	p.Submit(context.Background(), types.SentenceSegment{Index: 1, Text: "world"})

	segs := collect(t, p, 2)
	byIndex := map[int]types.TtsSegment{}
	for _, s := range segs {
		byIndex[s.Index] = s
	}
	if byIndex[0].Text != "hello" || byIndex[1].Text != "world" {
		t.Errorf("got %+v", byIndex)
	}
	if len(provider.Calls()) != 2 {
		t.Errorf("provider.Calls() = %d, want 2", len(provider.Calls()))
	}
}

func TestPipeline_UsesCacheOnSecondCall(t *testing.T) {
	t.Parallel()

	cache, err := ttscache.Open(context.Background(), ":memory:", 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	provider := ttsmock.New()
	p := New(provider, types.CacheParams{Model: "m1"}, WithCache(cache))

	p.Submit(context.Background(), types.SentenceSegment{Index: 0, Text: "hello"})
	collect(t, p, 1)
	p.Wait()

	p.Submit(context.Background(), types.SentenceSegment{Index: 1, Text: "hello"})
	collect(t, p, 1)
	p.Wait()

	if len(provider.Calls()) != 1 {
		t.Errorf("provider.Calls() = %d, want 1 (second call should hit cache)", len(provider.Calls()))
	}
}

func TestPipeline_ConcurrencyBound(t *testing.T) {
	t.Parallel()

	provider := ttsmock.New()
	p := New(provider, types.CacheParams{}, WithMaxConcurrent(1))

	for i := 0; i < 3; i++ {
		p.Submit(context.Background(), types.SentenceSegment{Index: i, Text: "x"})
	}
	collect(t, p, 3)
	p.Wait()

	if len(provider.Calls()) != 3 {
		t.Errorf("provider.Calls() = %d, want 3", len(provider.Calls()))
	}
}

func TestPipeline_SynthesisErrorDropsSegment(t *testing.T) {
	t.Parallel()

	provider := ttsmock.New()
	provider.SynthesizeErr = context.DeadlineExceeded
	p := New(provider, types.CacheParams{})

	p.Submit(context.Background(), types.SentenceSegment{Index: 0, Text: "x"})
	p.Wait()

	select {
	case seg := <-p.Out():
		t.Fatalf("expected no segment to be emitted on error, got %+v", seg)
	case <-time.After(50 * time.Millisecond):
	}
}
