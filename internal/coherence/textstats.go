package coherence

import (
	"math"
	"strings"
	"unicode"
)

// Text statistics
//
// Pure helpers shared by the scorer. Everything here is a total function of
// its input text; ratios count runes so multi-byte input cannot skew them.

// TextStats bundles the character-level counts of one text.
type TextStats struct {
	Length  int // rune count
	Letters int
	Spaces  int
	Periods int
	Commas  int
}

// Measure walks the text once and collects character counts.
func Measure(text string) TextStats {
	var s TextStats
	for _, r := range text {
		s.Length++
		switch {
		case unicode.IsLetter(r):
			s.Letters++
		case r == ' ':
			s.Spaces++
		case r == '.':
			s.Periods++
		case r == ',':
			s.Commas++
		}
	}
	return s
}

// LetterRatio is letters over total length, 0 for empty text.
func (s TextStats) LetterRatio() float64 {
	if s.Length == 0 {
		return 0
	}
	return float64(s.Letters) / float64(s.Length)
}

// SpaceRatio is spaces over total length, 0 for empty text.
func (s TextStats) SpaceRatio() float64 {
	if s.Length == 0 {
		return 0
	}
	return float64(s.Spaces) / float64(s.Length)
}

// LetterBigrams returns the multiset of adjacent letter pairs, counted
// within maximal letter runs so pairs never bridge spaces or punctuation.
// The total is the multiset size.
func LetterBigrams(text string) (counts map[string]int, total int) {
	counts = make(map[string]int)
	var prev rune
	haveRun := false
	for _, r := range text {
		if !unicode.IsLetter(r) {
			haveRun = false
			continue
		}
		if haveRun {
			counts[string([]rune{prev, r})]++
			total++
		}
		prev = r
		haveRun = true
	}
	return counts, total
}

// BigramEntropy is the Shannon entropy in bits of the letter-bigram
// distribution. English prose sits near 4.2 bits; uniform noise over a
// 26-letter alphabet approaches log2(676) = 9.4 bits.
func BigramEntropy(text string) float64 {
	counts, total := LetterBigrams(text)
	if total == 0 {
		return 0
	}
	entropy := 0.0
	for _, c := range counts {
		p := float64(c) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// Tokens splits on whitespace after lowercasing, the tokenization used by
// the language score. No punctuation stripping: a trailing period keeps a
// token out of the vocabulary, exactly like the page alphabet produces it.
func Tokens(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// CountSentences approximates sentence count as terminal-punctuation marks,
// at least 1 for non-empty text.
func CountSentences(text string) int {
	n := strings.Count(text, ".") + strings.Count(text, "!") + strings.Count(text, "?")
	if n < 1 {
		return 1
	}
	return n
}

// CountNonOverlapping counts non-overlapping occurrences of needle in
// haystack; 0 when needle is empty.
func CountNonOverlapping(haystack, needle string) int {
	if needle == "" {
		return 0
	}
	return strings.Count(haystack, needle)
}
