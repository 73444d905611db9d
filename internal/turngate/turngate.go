// Package turngate provides a single-permit semaphore that serialises agent
// turns: while one holder has the permit, no other turn sharing the same
// Gate can start. internal/app creates one Gate per guild session, so turns
// within a guild are serialised; turns in different guilds are not
// serialised against each other.
package turngate

import "context"

// Gate is a single-permit semaphore. The zero value is not usable; use New.
type Gate struct {
	permit chan struct{}
}

// New returns a Gate with its single permit available.
func New() *Gate {
	g := &Gate{permit: make(chan struct{}, 1)}
	g.permit <- struct{}{}
	return g
}

// Release returns the permit to the gate. A second call while the permit is
// still free is ignored, but a second call after another caller has taken
// the permit hands that caller's permit back and lets one more turn start.
type Release func()

// Acquire blocks until the permit is available or ctx is done. On success it
// returns a Release to return the permit; the caller must call it on every
// exit path.
func (g *Gate) Acquire(ctx context.Context) (Release, bool) {
	select {
	case <-g.permit:
		return g.release, true
	case <-ctx.Done():
		return nil, false
	}
}

// TryAcquire attempts to take the permit without blocking. ok is false if
// another turn is already in flight.
func (g *Gate) TryAcquire() (rel Release, ok bool) {
	select {
	case <-g.permit:
		return g.release, true
	default:
		return nil, false
	}
}

// IsBusy reports whether the permit is currently held.
func (g *Gate) IsBusy() bool {
	select {
	case <-g.permit:
		// We took it just to inspect availability; put it straight back.
		g.permit <- struct{}{}
		return false
	default:
		return true
	}
}

func (g *Gate) release() {
	select {
	case g.permit <- struct{}{}:
	default:
		// Permit already present: a double-release. Ignored rather than
		// panicking so a defensive `defer release()` after an explicit
		// release is harmless.
	}
}
