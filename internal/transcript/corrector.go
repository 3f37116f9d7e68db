// Package transcript implements custom-vocabulary correction of transcribed
// text.
//
// Dictation users routinely speak names and jargon that speech models
// mangle ("dikta flow" for "Dictaflow"). The corrector aligns transcribed
// words against a configured vocabulary using Double Metaphone phonetic
// encoding for candidate filtering and Jaro-Winkler similarity for ranked
// selection:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each window of transcribed words and for each vocabulary term. A term
//     whose codes overlap the window's becomes a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates, the term with the
//     highest similarity (case-insensitive) wins, provided it clears the
//     phonetic threshold. Without any phonetic candidate, a stricter fuzzy
//     threshold applies to pure string similarity.
//
// Windows are compared shape-aware: a window with the same word count as a
// term scores by per-word alignment, and a multi-word window against a
// single-word term scores on the concatenated strings (catching split
// compounds). Other shapes are not compared at all, which keeps a shared
// word like "request" from swallowing its neighbours.
package transcript

import (
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a Corrector.
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate exists and the corrector falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.fuzzyThreshold = threshold
	}
}

// term is one prepared vocabulary entry.
type term struct {
	canonical string
	lower     string
	tokens    []string
	codes     map[string]struct{}
}

// Corrector aligns transcribed text against a fixed vocabulary. It is
// read-only after construction and safe for concurrent use.
type Corrector struct {
	terms             []term
	maxWindow         int
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New prepares a corrector for the given vocabulary. Blank entries are
// ignored. A corrector with an empty vocabulary returns text unchanged.
func New(vocabulary []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	maxWords := 1
	for _, v := range vocabulary {
		lower := strings.ToLower(strings.TrimSpace(v))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		c.terms = append(c.terms, term{
			canonical: strings.TrimSpace(v),
			lower:     lower,
			tokens:    tokens,
			codes:     codesForTokens(tokens),
		})
		if len(tokens) > maxWords {
			maxWords = len(tokens)
		}
	}
	// One extra window slot so a single-word term still catches its spoken
	// form split in two ("dikta flow").
	c.maxWindow = maxWords + 1
	return c
}

// Correct replaces misrecognized vocabulary terms in text and returns the
// corrected string. Punctuation trailing a replaced window is preserved.
func (c *Corrector) Correct(text string) string {
	if len(c.terms) == 0 {
		return text
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text
	}

	var output []string
	i := 0
	for i < len(tokens) {
		maxN := c.maxWindow
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		// Longest window first so multi-word terms take precedence.
		for n := maxN; n >= 1 && !matched; n-- {
			core, trailing := splitTrailingPunct(strings.Join(tokens[i:i+n], " "))
			replacement, ok := c.match(core)
			if !ok {
				continue
			}
			output = append(output, strings.Fields(replacement+trailing)...)
			i += n
			matched = true
		}
		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}
	return strings.Join(output, " ")
}

// match finds the vocabulary term most similar to phrase, or ok=false when
// nothing clears the thresholds or the phrase already spells a term.
func (c *Corrector) match(phrase string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(phrase))
	if lower == "" {
		return "", false
	}
	inputTokens := strings.Fields(lower)
	inputCodes := codesForTokens(inputTokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, t := range c.terms {
		if t.lower == lower {
			return "", false
		}

		var (
			score    float64
			phonetic bool
		)
		switch {
		case len(inputTokens) == len(t.tokens) && len(t.tokens) == 1:
			score = matchr.JaroWinkler(lower, t.lower, false)
			phonetic = codesOverlap(inputCodes, t.codes)
		case len(inputTokens) == len(t.tokens):
			score = alignedSimilarity(inputTokens, t.tokens)
			phonetic = codesOverlap(inputCodes, t.codes)
		case len(t.tokens) == 1 && len(inputTokens) > 1:
			// Split compound: compare with spaces removed, fuzzy tier only.
			// A window already containing the exact spelling is not a split.
			if slices.Contains(inputTokens, t.lower) {
				continue
			}
			score = matchr.JaroWinkler(strings.Join(inputTokens, ""), t.lower, false)
		default:
			continue
		}

		switch {
		case phonetic && score >= c.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic = t.canonical, score, true
			}
		case !phonetic && !bestPhonetic && score >= c.fuzzyThreshold && score > bestScore:
			best, bestScore = t.canonical, score
		}
	}
	return best, best != ""
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
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

// codesOverlap reports whether the two code sets share at least one code.
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

// alignedSimilarity is the mean Jaro-Winkler score of positionally aligned
// tokens. Averaging keeps one exact shared word from carrying an otherwise
// unrelated window.
func alignedSimilarity(a, b []string) float64 {
	var sum float64
	for i := range a {
		sum += matchr.JaroWinkler(a[i], b[i], false)
	}
	return sum / float64(len(a))
}

// splitTrailingPunct splits sentence punctuation off the end of a phrase so
// it can be re-attached after replacement.
func splitTrailingPunct(phrase string) (core, trailing string) {
	core = strings.TrimRight(phrase, ".,!?;:")
	return core, phrase[len(core):]
}
