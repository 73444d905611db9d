// Package contextwindow implements multi-speaker utterance coalescing: a
// short wall-clock window during which several users' finalised utterances
// are accumulated before being flushed as one combined prompt.
package contextwindow

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mossgate/voxbridge/pkg/types"
)

// Buffer accumulates LabeledUtterances for windowDuration after the first
// push, then is ready to be flushed into one combined prompt. Safe for
// concurrent use.
type Buffer struct {
	windowDuration time.Duration

	mu         sync.Mutex
	utterances []types.LabeledUtterance
	startedAt  time.Time
}

// New returns a Buffer with the given coalescing window.
func New(windowDuration time.Duration) *Buffer {
	return &Buffer{windowDuration: windowDuration}
}

// Push appends u to the buffer, starting the window timer if this is the
// first utterance since the last flush.
func (b *Buffer) Push(u types.LabeledUtterance) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.utterances) == 0 {
		b.startedAt = time.Now()
	}
	b.utterances = append(b.utterances, u)
}

// IsReady reports whether windowDuration has elapsed since the first push in
// the current window.
func (b *Buffer) IsReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.utterances) == 0 {
		return false
	}
	return time.Since(b.startedAt) >= b.windowDuration
}

// Flush returns the combined prompt text for every buffered utterance, in
// insertion order, and resets the buffer. Returns "" if nothing is buffered.
func (b *Buffer) Flush() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.utterances) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, u := range b.utterances {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%sさん: %s", u.Username, u.Text)
	}

	b.utterances = nil
	b.startedAt = time.Time{}
	return sb.String()
}

// Len returns the number of utterances currently buffered.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.utterances)
}
