package live

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// annotationPattern matches non-speech annotations that speech models emit
// inline, like "[MUSIC]", "(inaudible)" or "*laughs*".
var annotationPattern = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\*[^*]*\*`)

// StripAnnotations removes non-speech annotation tags from transcribed text
// and collapses the surrounding whitespace.
func StripAnnotations(text string) string {
	stripped := annotationPattern.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(stripped), " ")
}

// IsUncertain flags a transcription as low-confidence. It is a heuristic for
// marking segments for human review, not a correctness guarantee. A segment
// is uncertain when, after stripping annotation tags:
//
//   - essentially no text remains,
//   - the text holds at most two words despite more than three seconds of
//     audio,
//   - the text contains an ellipsis, or
//   - any character repeats four or more times in a row.
func IsUncertain(text string, duration time.Duration) bool {
	stripped := StripAnnotations(text)
	if utf8.RuneCountInString(stripped) < 2 {
		return true
	}
	if len(strings.Fields(stripped)) <= 2 && duration > 3*time.Second {
		return true
	}
	if strings.Contains(stripped, "...") || strings.Contains(stripped, "…") {
		return true
	}
	return hasLongRun(stripped, 4)
}

// hasLongRun reports whether s contains n or more identical consecutive
// runes.
func hasLongRun(s string, n int) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev {
			run++
			if run >= n {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}
