package search

import (
	"strings"
	"unicode"
)

// Normalizer is the optional readability hook applied to winning pages.
// Implementations must be pure: same text and query, same output.
type Normalizer interface {
	Normalize(text, query string) string
}

// Heuristic is the built-in normalizer. It repairs the casing and spacing
// conventions the page alphabet cannot express (no uppercase available)
// without inventing content: sentence starts are capitalized and runs of
// spaces around punctuation are tightened.
type Heuristic struct{}

// NewHeuristic returns the built-in normalizer.
func NewHeuristic() Heuristic { return Heuristic{} }

func (Heuristic) Normalize(text, _ string) string {
	var b strings.Builder
	b.Grow(len(text))

	atSentenceStart := true
	pendingSpace := false
	for _, r := range text {
		switch {
		case r == ' ':
			pendingSpace = true
			continue
		case r == ',' || r == '.':
			// No space before punctuation.
			pendingSpace = false
			b.WriteRune(r)
			if r == '.' {
				atSentenceStart = true
			}
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		if atSentenceStart && unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
			atSentenceStart = false
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
