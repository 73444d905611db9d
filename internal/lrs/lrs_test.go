package lrs

import (
	"testing"
	"time"
)

func TestTracker_FindLeastRecentlySpoken(t *testing.T) {
	t.Parallel()

	tr := New()
	base := time.Unix(1000, 0)
	tr.Touch(1, base.Add(3*time.Second))
	tr.Touch(2, base)
	tr.Touch(3, base.Add(time.Second))

	got, ok := tr.FindLeastRecentlySpoken()
	if !ok {
		t.Fatal("expected a result")
	}
	if got != 2 {
		t.Errorf("FindLeastRecentlySpoken() = %d, want 2", got)
	}
}

func TestTracker_EmptyReturnsFalse(t *testing.T) {
	t.Parallel()

	tr := New()
	if _, ok := tr.FindLeastRecentlySpoken(); ok {
		t.Error("expected false on empty tracker")
	}
}

func TestTracker_Remove(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.Touch(1, time.Unix(1000, 0))
	tr.Remove(1)

	if tr.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tr.Len())
	}
	if _, ok := tr.FindLeastRecentlySpoken(); ok {
		t.Error("expected false after removing the only entry")
	}
}

func TestTracker_TouchUpdatesExisting(t *testing.T) {
	t.Parallel()

	tr := New()
	base := time.Unix(1000, 0)
	tr.Touch(1, base)
	tr.Touch(2, base.Add(time.Second))

	// Re-touch source 1 so it becomes the most recent, not the least.
	tr.Touch(1, base.Add(2*time.Second))

	got, ok := tr.FindLeastRecentlySpoken()
	if !ok || got != 2 {
		t.Errorf("FindLeastRecentlySpoken() = %d, %v, want 2, true", got, ok)
	}
}
