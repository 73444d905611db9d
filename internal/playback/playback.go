// Package playback implements SequencedPlaybackQueue: a reordering buffer
// that lets TTS segments complete out of order while guaranteeing they are
// handed to the media driver in strict splitter order.
package playback

import "github.com/mossgate/voxbridge/pkg/types"

// Queue reorders incoming TtsSegments by Index before emitting them on Out.
// Not safe for concurrent Submit calls; intended for single-goroutine
// ownership by the worker driving one response.
type Queue struct {
	nextIndex int
	pending   map[int]types.TtsSegment
	out       chan types.TtsSegment
}

// New returns a Queue starting at index 0.
func New() *Queue {
	return &Queue{
		pending: make(map[int]types.TtsSegment),
		out:     make(chan types.TtsSegment, 16),
	}
}

// Out returns the channel of in-order TtsSegments.
func (q *Queue) Out() <-chan types.TtsSegment { return q.out }

// Submit adds seg to the queue. If seg.Index is the next expected index, it
// (and any consecutively buffered segments that follow) are emitted
// immediately; otherwise it is buffered until its turn comes.
func (q *Queue) Submit(seg types.TtsSegment) {
	if seg.Index != q.nextIndex {
		q.pending[seg.Index] = seg
		return
	}

	q.out <- seg
	q.nextIndex++

	for {
		next, ok := q.pending[q.nextIndex]
		if !ok {
			return
		}
		delete(q.pending, q.nextIndex)
		q.out <- next
		q.nextIndex++
	}
}

// Reset clears all buffered state and installs a fresh output channel,
// discarding anything still pending and any unread emitted segments.
func (q *Queue) Reset() {
	q.nextIndex = 0
	q.pending = make(map[int]types.TtsSegment)
	q.out = make(chan types.TtsSegment, 16)
}
