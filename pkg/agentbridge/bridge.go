// Package agentbridge defines the Bridge interface between a PipelineWorker
// and whatever conversational agent produces its responses.
//
// The bridge is deliberately opaque to the voice core: it may stream tokens
// (the common case, consumed incrementally by the sentence splitter) or
// return a complete string in one Chunk. Per-user conversational state, if
// any, is the bridge's concern — ResetContext is the hook for clearing it;
// nothing in the voice core calls it.
package agentbridge

import (
	"context"
	"errors"
)

// Chunk is a single fragment of a generated response.
type Chunk struct {
	// Text is the incremental text of this chunk. May be empty on the final
	// chunk if Err is set or the response ended exactly on a prior chunk.
	Text string

	// Done is set on the last chunk of a successful generation.
	Done bool

	// Err, if non-nil, terminates the stream; no further chunks follow.
	Err error
}

// Bridge is the abstraction over any conversational agent backend.
//
// Implementations must be safe for concurrent use across different userIDs;
// a single userID is only ever driven by one PipelineWorker at a time.
type Bridge interface {
	// Generate starts producing a response to text from userID and returns a
	// channel of incremental Chunks. The channel is closed after the chunk
	// with Done true or Err set. Cancelling ctx aborts generation and closes
	// the channel without necessarily sending a final chunk.
	Generate(ctx context.Context, userID, text string) (<-chan Chunk, error)

	// ResetContext discards any conversational state held for userID. Safe to
	// call for a userID with no state.
	ResetContext(userID string) error
}

// ErrEmptyText is returned by Generate when text is empty.
var ErrEmptyText = errors.New("agentbridge: text must not be empty")
