// Package phonetic corrects mis-heard proper nouns in STT transcripts
// against a small configurable vocabulary. It combines Double Metaphone
// phonetic encoding with Jaro-Winkler string similarity for ranked
// candidate selection.
//
// The algorithm proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word in the input and for each vocabulary term. If any code from
//     the input overlaps with any code from a term, the term becomes a
//     phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates, the term with the
//     highest Jaro-Winkler similarity (computed on the original strings,
//     case-insensitive) is selected, provided its score exceeds the
//     configurable phonetic threshold.
//
//     When no phonetic candidate is found, a secondary pass tests pure
//     Jaro-Winkler similarity against all terms using a higher fuzzy
//     threshold (default 0.85).
//
// Multi-word terms (e.g. "Hall of Echoes") are supported: the matcher
// computes phonetic codes per word and considers the best pairwise score
// across all word pairs when ranking candidates.
//
// A Matcher is bound to one vocabulary for its lifetime. Corrector calls
// Match once per n-gram window at every token position in a transcript
// (see corrector.go), so each term's Double Metaphone codes are computed
// once here, at construction, rather than being recomputed on every call.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a Matcher.
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// vocabTerm is a vocabulary entry with its Double Metaphone codes
// precomputed once, at Matcher construction.
type vocabTerm struct {
	original string
	lower    string
	tokens   []string
	codes    map[string]struct{}
}

// Matcher is a phonetic vocabulary matcher bound to a fixed vocabulary. It
// is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	terms             []vocabTerm
}

// New returns a Matcher that matches against vocabulary, configured with
// the supplied options. Default thresholds are 0.70 for phonetic matches
// and 0.85 for fuzzy fallback matches. Empty or blank vocabulary entries
// are ignored.
func New(vocabulary []string, opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}

	m.terms = make([]vocabTerm, 0, len(vocabulary))
	for _, term := range vocabulary {
		lower := strings.ToLower(strings.TrimSpace(term))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		m.terms = append(m.terms, vocabTerm{
			original: term,
			lower:    lower,
			tokens:   tokens,
			codes:    codesForTokens(tokens),
		})
	}
	return m
}

// Len returns the number of vocabulary terms the Matcher was built with.
func (m *Matcher) Len() int { return len(m.terms) }

// Match attempts to find the vocabulary term most phonetically similar to
// word.
//
// word may be a single word or a space-separated phrase. When word contains
// multiple tokens, the matcher checks whether any token phonetically
// aligns with any token in a multi-word vocabulary term, then ranks by
// Jaro-Winkler on the full strings.
//
// When matched is false, corrected equals word unchanged and confidence is
// 0.
func (m *Matcher) Match(word string) (corrected string, confidence float64, matched bool) {
	if len(m.terms) == 0 || strings.TrimSpace(word) == "" {
		return word, 0, false
	}

	wordLower := strings.ToLower(strings.TrimSpace(word))
	wordTokens := strings.Fields(wordLower)
	inputCodes := codesForTokens(wordTokens)

	type candidate struct {
		term     string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, vt := range m.terms {
		phoneticMatch := codesOverlap(inputCodes, vt.codes)
		jwScore := bestJWScore(wordTokens, vt.tokens, wordLower, vt.lower)

		if phoneticMatch {
			if jwScore >= m.phoneticThreshold {
				if !best.phonetic || jwScore > best.score {
					best = candidate{term: vt.original, score: jwScore, phonetic: true}
				}
			}
		} else if !best.phonetic {
			if jwScore >= m.fuzzyThreshold && jwScore > best.score {
				best = candidate{term: vt.original, score: jwScore, phonetic: false}
			}
		}
	}

	if best.term != "" {
		return best.term, best.score, true
	}
	return word, 0, false
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (too short, or no consonants) are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the
// input and the term using three strategies: full strings, space-stripped
// strings, and the best pairwise token comparison.
func bestJWScore(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)

	if len(inputTokens) > 1 || len(termTokens) > 1 {
		concat1 := strings.Join(inputTokens, "")
		concat2 := strings.Join(termTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	for _, it := range inputTokens {
		for _, tt := range termTokens {
			if s := matchr.JaroWinkler(it, tt, false); s > score {
				score = s
			}
		}
	}
	return score
}
