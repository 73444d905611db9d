// Package splitter implements SentenceSplitter: a stateful transducer that
// turns an incremental stream of agent response text into complete
// sentences, suitable for per-sentence TTS synthesis while the agent is
// still generating later tokens.
package splitter

import (
	"strings"
	"unicode/utf8"

	"github.com/mossgate/voxbridge/pkg/types"
)

// delimiters are the sentence-ending runes that trigger a cut, scanned in
// byte order so multi-byte runes (the full-width Japanese punctuation) are
// handled UTF-8 safely.
var delimiters = []rune{'。', '！', '？', '!', '?'}

const paragraphBreak = "\n\n"

// Splitter accumulates text tokens and emits trimmed sentence segments once
// a delimiter or paragraph break is found and the trimmed text meets
// MinLength. Not safe for concurrent use; intended for single-goroutine
// ownership by one PipelineWorker response.
type Splitter struct {
	minLength int
	buffer    strings.Builder
	seq       int
}

// New returns a Splitter requiring at least minLength runes of trimmed text
// before a candidate cut is emitted as a segment.
func New(minLength int) *Splitter {
	return &Splitter{minLength: minLength}
}

// Push feeds the next token of agent output and returns every sentence
// segment it completes, in order. A single token may complete more than one
// segment.
func (s *Splitter) Push(token string) []types.SentenceSegment {
	s.buffer.WriteString(token)
	return s.drain()
}

// Flush emits the remaining buffered text as a final segment if non-empty,
// regardless of MinLength, and resets the splitter for reuse.
func (s *Splitter) Flush() *types.SentenceSegment {
	remaining := strings.TrimSpace(s.buffer.String())
	s.buffer.Reset()
	if remaining == "" {
		return nil
	}
	seg := types.SentenceSegment{Index: s.seq, Text: remaining}
	s.seq++
	return &seg
}

// drain repeatedly scans the buffer for the earliest cut point (delimiter or
// paragraph break), emitting segments until no more cuts are found. A cut
// that produces a too-short trimmed segment is skipped in favour of the next
// cut point further along the same buffer contents, merging the short
// segment with what follows it.
func (s *Splitter) drain() []types.SentenceSegment {
	var out []types.SentenceSegment

	for {
		text := s.buffer.String()
		searchFrom := 0
		cut := -1

		for {
			rel, ok := findCut(text[searchFrom:])
			if !ok {
				cut = -1
				break
			}
			abs := searchFrom + rel
			trimmed := strings.TrimSpace(text[:abs])
			if utf8.RuneCountInString(trimmed) >= s.minLength {
				cut = abs
				break
			}
			if abs >= len(text) {
				cut = -1
				break
			}
			searchFrom = abs
		}

		if cut == -1 {
			return out
		}

		trimmed := strings.TrimSpace(text[:cut])
		out = append(out, types.SentenceSegment{Index: s.seq, Text: trimmed})
		s.seq++

		s.buffer.Reset()
		s.buffer.WriteString(text[cut:])
	}
}

// findCut scans text for the earliest sentence-ending delimiter or
// paragraph break, returning the byte offset immediately past it.
func findCut(text string) (int, bool) {
	best := -1

	for _, d := range delimiters {
		if idx := strings.IndexRune(text, d); idx >= 0 {
			end := idx + utf8.RuneLen(d)
			if best == -1 || end < best {
				best = end
			}
		}
	}

	if idx := strings.Index(text, paragraphBreak); idx >= 0 {
		end := idx + len(paragraphBreak)
		if best == -1 || end < best {
			best = end
		}
	}

	if best == -1 {
		return 0, false
	}
	return best, true
}
