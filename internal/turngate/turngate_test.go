package turngate

import (
	"context"
	"testing"
	"time"
)

func TestGate_TryAcquireSerializesTurns(t *testing.T) {
	t.Parallel()

	g := New()

	rel, ok := g.TryAcquire()
	if !ok {
		t.Fatal("expected first TryAcquire to succeed")
	}
	if _, ok := g.TryAcquire(); ok {
		t.Error("expected second TryAcquire to fail while busy")
	}
	rel()

	if _, ok := g.TryAcquire(); !ok {
		t.Error("expected TryAcquire to succeed after release")
	}
}

func TestGate_IsBusy(t *testing.T) {
	t.Parallel()

	g := New()
	if g.IsBusy() {
		t.Fatal("expected a fresh gate to be idle")
	}

	rel, _ := g.TryAcquire()
	if !g.IsBusy() {
		t.Error("expected gate to be busy after acquire")
	}
	rel()
	if g.IsBusy() {
		t.Error("expected gate to be idle after release")
	}
}

func TestGate_AcquireBlocksUntilReleased(t *testing.T) {
	t.Parallel()

	g := New()
	rel, _ := g.TryAcquire()

	done := make(chan struct{})
	go func() {
		r, ok := g.Acquire(context.Background())
		if !ok {
			t.Error("expected Acquire to eventually succeed")
		} else {
			r()
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Acquire returned before the permit was released")
	case <-time.After(50 * time.Millisecond):
	}

	rel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not return after release")
	}
}

func TestGate_AcquireRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	g := New()
	_, _ = g.TryAcquire() // hold the only permit

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := g.Acquire(ctx); ok {
		t.Error("expected Acquire to fail on a cancelled context")
	}
}
