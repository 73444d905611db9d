// Package dispatcher implements Dispatcher: it owns the per-user worker
// population, routes resolved audio chunks to the right one, and applies
// barge-in interrupts and STT-session admission control across them.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mossgate/voxbridge/internal/lrs"
	"github.com/mossgate/voxbridge/internal/ssrcmap"
	"github.com/mossgate/voxbridge/internal/worker"
	"github.com/mossgate/voxbridge/pkg/types"
)

// WorkerFactory builds a new Worker for a user. onBargeIn must be wired as
// the worker's Config.OnBargeIn so SpeechStart during playback reaches the
// dispatcher's interrupt handling. The dispatcher owns calling Run on the
// returned worker in its own goroutine.
type WorkerFactory func(userID, displayName string, onBargeIn func()) *worker.Worker

// Config configures a Dispatcher.
type Config struct {
	SsrcMap *ssrcmap.Map
	Lrs     *lrs.Tracker

	NewWorker WorkerFactory

	// MaxConcurrentSessions bounds the number of simultaneously open STT
	// sessions (one per active worker). Spawning beyond the limit evicts the
	// least recently spoken worker first. Zero means unbounded.
	MaxConcurrentSessions int

	// InterruptsEnabled gates whether HandleInterrupt actually cancels
	// in-flight responses; when false it is a no-op, useful for testing or
	// disabling barge-in globally.
	InterruptsEnabled bool
}

type handle struct {
	w      *worker.Worker
	cancel context.CancelFunc
	done   chan struct{}
}

// Dispatcher routes audio to per-user workers, spawning and retiring them as
// users start and stop speaking.
type Dispatcher struct {
	cfg Config

	mu      sync.Mutex
	handles map[string]*handle
}

// New returns a Dispatcher with no active workers.
func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		cfg:     cfg,
		handles: make(map[string]*handle),
	}
}

// Dispatch resolves chunk.SourceID to a user identity via the SsrcUserMap
// and routes the PCM to that user's worker, spawning one if none exists
// yet. Chunks for an unresolved source id are dropped (logged at debug
// level) since the speaking-event callback that would bind it may not have
// arrived yet.
func (d *Dispatcher) Dispatch(chunk types.AudioChunk) {
	identity, ok := d.cfg.SsrcMap.Lookup(chunk.SourceID)
	if !ok {
		slog.Debug("dispatcher: dropping chunk for unresolved source", "source_id", chunk.SourceID)
		return
	}

	h := d.getOrSpawn(identity.UserID, identity.DisplayName)
	if h == nil {
		return
	}

	if d.cfg.Lrs != nil {
		d.cfg.Lrs.Touch(chunk.SourceID, time.Now())
	}

	select {
	case h.w.AudioIn() <- chunk.PCM:
	case <-h.done:
		// The worker has already exited; drop this chunk and clean up so the
		// next chunk for this user spawns a fresh one. The audio queue itself
		// is unbounded, so this is the only condition under which a chunk is
		// ever dropped here.
		d.remove(identity.UserID, h)
	}
}

// HandleInterrupt applies a barge-in for userID: if interrupts are enabled
// and the user's worker is currently playing a response, cancels it. A
// no-op if interrupts are disabled, the user has no active worker, or
// nothing is playing.
func (d *Dispatcher) HandleInterrupt(userID string) {
	if !d.cfg.InterruptsEnabled {
		return
	}
	d.mu.Lock()
	h, ok := d.handles[userID]
	d.mu.Unlock()
	if !ok {
		return
	}
	h.w.Interrupt()
}

// Shutdown cancels every active worker and waits for them to exit.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	handles := make([]*handle, 0, len(d.handles))
	for _, h := range d.handles {
		handles = append(handles, h)
	}
	d.handles = make(map[string]*handle)
	d.mu.Unlock()

	for _, h := range handles {
		h.cancel()
		<-h.done
	}
}

// ActiveCount returns the number of users with an active worker.
func (d *Dispatcher) ActiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handles)
}

func (d *Dispatcher) getOrSpawn(userID, displayName string) *handle {
	d.mu.Lock()
	if h, ok := d.handles[userID]; ok {
		d.mu.Unlock()
		return h
	}

	if d.cfg.MaxConcurrentSessions > 0 && len(d.handles) >= d.cfg.MaxConcurrentSessions {
		d.evictLeastRecentlySpokenLocked()
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := d.cfg.NewWorker(userID, displayName, func() { d.HandleInterrupt(userID) })

	h := &handle{w: w, cancel: cancel, done: make(chan struct{})}
	d.handles[userID] = h
	d.mu.Unlock()

	go func() {
		reason := w.Run(ctx)
		close(h.done)
		slog.Info("dispatcher: worker exited", "user_id", userID, "reason", reason)
		d.removeIfCurrent(userID, h)
	}()

	return h
}

// evictLeastRecentlySpokenLocked cancels and removes the least recently
// spoken worker to make room for a new STT session. Callers must hold mu.
func (d *Dispatcher) evictLeastRecentlySpokenLocked() {
	if d.cfg.Lrs == nil {
		return
	}
	for {
		sourceID, ok := d.cfg.Lrs.FindLeastRecentlySpoken()
		if !ok {
			return
		}
		// Each source yielded here is dropped from the tracker: either its
		// worker is evicted below, or it no longer has a worker at all.
		d.cfg.Lrs.Remove(sourceID)
		identity, ok := d.cfg.SsrcMap.Lookup(sourceID)
		if !ok {
			continue
		}
		h, ok := d.handles[identity.UserID]
		if !ok {
			continue
		}
		slog.Info("dispatcher: evicting least recently spoken worker for admission", "user_id", identity.UserID)
		delete(d.handles, identity.UserID)
		h.cancel()
		return
	}
}

func (d *Dispatcher) remove(userID string, h *handle) {
	d.mu.Lock()
	d.removeLocked(userID, h)
	d.mu.Unlock()
}

func (d *Dispatcher) removeIfCurrent(userID string, h *handle) {
	d.mu.Lock()
	d.removeLocked(userID, h)
	d.mu.Unlock()
}

func (d *Dispatcher) removeLocked(userID string, h *handle) {
	if cur, ok := d.handles[userID]; ok && cur == h {
		delete(d.handles, userID)
	}
}
