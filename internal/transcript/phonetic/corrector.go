package phonetic

import "strings"

// Corrector applies a Matcher n-gram-by-n-gram over a transcript, replacing
// tokens that phonetically match the Matcher's vocabulary. Safe for
// concurrent use once constructed.
type Corrector struct {
	matcher  *Matcher
	maxNGram int
}

// NewCorrector returns a Corrector matching against vocabulary, configured
// with the supplied Matcher options. vocabulary entries may be single words
// or short phrases; the corrector tries n-grams up to the longest
// vocabulary entry's word count.
func NewCorrector(vocabulary []string, opts ...Option) *Corrector {
	maxNGram := 1
	for _, term := range vocabulary {
		if n := len(strings.Fields(term)); n > maxNGram {
			maxNGram = n
		}
	}
	return &Corrector{matcher: New(vocabulary, opts...), maxNGram: maxNGram}
}

// Correct scans text for the longest n-gram (bounded by the vocabulary's
// longest term) at each position, replacing it with its best vocabulary
// match when one clears the matcher's threshold. Already-corrected spans
// are not reconsidered.
func (c *Corrector) Correct(text string) string {
	if c.matcher.Len() == 0 || strings.TrimSpace(text) == "" {
		return text
	}

	words := strings.Fields(text)
	var out []string

	for i := 0; i < len(words); {
		replaced := false
		for n := min(c.maxNGram, len(words)-i); n >= 1; n-- {
			candidate := strings.Join(words[i:i+n], " ")
			if corrected, _, matched := c.matcher.Match(candidate); matched {
				out = append(out, corrected)
				i += n
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, words[i])
			i++
		}
	}

	return strings.Join(out, " ")
}
