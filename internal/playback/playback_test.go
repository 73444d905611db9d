package playback

import (
	"testing"
	"time"

	"github.com/mossgate/voxbridge/pkg/types"
)

func drainAvailable(t *testing.T, q *Queue) []int {
	t.Helper()
	var got []int
	for {
		select {
		case seg := <-q.Out():
			got = append(got, seg.Index)
		case <-time.After(20 * time.Millisecond):
			return got
		}
	}
}

func TestQueue_InOrderEmitsImmediately(t *testing.T) {
	t.Parallel()

	q := New()
	q.Submit(types.TtsSegment{Index: 0})
	q.Submit(types.TtsSegment{Index: 1})

	got := drainAvailable(t, q)
	want := []int{0, 1}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestQueue_OutOfOrderBuffersUntilGapFills(t *testing.T) {
	t.Parallel()

	q := New()
	q.Submit(types.TtsSegment{Index: 2})
	q.Submit(types.TtsSegment{Index: 1})

	if got := drainAvailable(t, q); len(got) != 0 {
		t.Fatalf("expected nothing emitted yet (index 0 missing), got %v", got)
	}

	q.Submit(types.TtsSegment{Index: 0})

	got := drainAvailable(t, q)
	want := []int{0, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestQueue_Reset(t *testing.T) {
	t.Parallel()

	q := New()
	q.Submit(types.TtsSegment{Index: 5})
	q.Reset()

	q.Submit(types.TtsSegment{Index: 0})
	got := drainAvailable(t, q)
	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("got %v, want [0]", got)
	}
}
