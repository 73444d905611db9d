// Package mock implements agentbridge.Bridge entirely in memory, for tests.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mossgate/voxbridge/pkg/agentbridge"
)

// Bridge echoes every input prefixed with "echo: " or, if Respond is set,
// replies with whatever it returns, split into one Chunk per word. Every
// call is recorded for inspection.
type Bridge struct {
	// Respond, if set, overrides the default echo behaviour: it is called
	// with the userID and text and its return value becomes the full
	// response text.
	Respond func(userID, text string) (string, error)

	// ChunkSize is not consulted: Generate always splits the response into
	// one Chunk per word, whatever its value.
	ChunkSize int

	mu       sync.Mutex
	calls    []Call
	resetIDs []string
}

// Call records one Generate invocation.
type Call struct {
	UserID string
	Text   string
}

// New returns a Bridge with default echo behaviour.
func New() *Bridge {
	return &Bridge{}
}

// Calls returns every Generate call seen so far, in order.
func (b *Bridge) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// ResetCalls returns every userID passed to ResetContext so far, in order.
func (b *Bridge) ResetCalls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.resetIDs))
	copy(out, b.resetIDs)
	return out
}

// Generate returns the (possibly overridden) response text split into
// Chunks followed by a final Done chunk.
func (b *Bridge) Generate(ctx context.Context, userID, text string) (<-chan agentbridge.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, agentbridge.ErrEmptyText
	}

	b.mu.Lock()
	b.calls = append(b.calls, Call{UserID: userID, Text: text})
	b.mu.Unlock()

	respond := b.Respond
	if respond == nil {
		respond = func(_, text string) (string, error) {
			return fmt.Sprintf("echo: %s", text), nil
		}
	}

	reply, err := respond(userID, text)
	if err != nil {
		out := make(chan agentbridge.Chunk, 1)
		out <- agentbridge.Chunk{Err: err}
		close(out)
		return out, nil
	}

	words := strings.Fields(reply)
	if len(words) == 0 {
		words = []string{reply}
	}

	out := make(chan agentbridge.Chunk, len(words)+1)
	go func() {
		defer close(out)
		for i, w := range words {
			text := w
			if i < len(words)-1 {
				text += " "
			}
			select {
			case out <- agentbridge.Chunk{Text: text}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- agentbridge.Chunk{Done: true}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// ResetContext records the reset call; the mock holds no state to clear.
func (b *Bridge) ResetContext(userID string) error {
	b.mu.Lock()
	b.resetIDs = append(b.resetIDs, userID)
	b.mu.Unlock()
	return nil
}

var _ agentbridge.Bridge = (*Bridge)(nil)
