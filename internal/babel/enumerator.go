package babel

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rawblock/babel-engine/pkg/models"
)

// Query enumerator
//
// Maps a free-form query to a ranked list of candidate addresses. Candidates
// are derived from the query's n-grams, each hashed with a small number of
// deterministic variants:
//
//   address(g, variant) = hex(SHA-256(g || ":" || itoa(variant)))
//   score(g, variant)   = len(g) + 1/(variant+1)
//
// Longer n-grams dominate the ranking, earlier variants outrank later ones,
// and candidates that collide on an address merge by summing scores. The
// output is a ranking heuristic only: nothing guarantees that a candidate's
// page contains the query as a literal substring.

// Errors surfaced by enumeration. ErrInvalidConfig is shared with the
// configuration layer so out-of-range options carry one identity everywhere.
var (
	ErrInvalidQuery  = errors.New("query is empty after normalization")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Bounds on enumeration parameters.
const (
	MinNgramSize = 1
	MaxNgramSize = 16
)

// EnumerateParams controls one enumeration call.
type EnumerateParams struct {
	MaxResults int // candidates returned after ranking, >= 1
	Depth      int // deterministic variants per n-gram, >= 1
	MinNgram   int // smallest n-gram size, >= 1
	MaxNgram   int // largest n-gram size, <= 16
}

// DefaultEnumerateParams returns the standard enumeration settings.
func DefaultEnumerateParams() EnumerateParams {
	return EnumerateParams{
		MaxResults: 10,
		Depth:      2,
		MinNgram:   2,
		MaxNgram:   5,
	}
}

func (p EnumerateParams) validate() error {
	switch {
	case p.MinNgram < MinNgramSize || p.MinNgram > p.MaxNgram:
		return fmt.Errorf("%w: ngram bounds %d..%d", ErrInvalidConfig, p.MinNgram, p.MaxNgram)
	case p.MaxNgram > MaxNgramSize:
		return fmt.Errorf("%w: max ngram %d exceeds %d", ErrInvalidConfig, p.MaxNgram, MaxNgramSize)
	case p.Depth < 1:
		return fmt.Errorf("%w: depth %d", ErrInvalidConfig, p.Depth)
	case p.MaxResults < 1:
		return fmt.Errorf("%w: max results %d", ErrInvalidConfig, p.MaxResults)
	}
	return nil
}

// NormalizeQuery lowercases, collapses whitespace runs to single spaces, and
// trims. The empty result signals an unusable query.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// ExtractNgrams returns the unique n-grams of text with sizes in
// [minSize, maxSize], longest first, then left to right. Sizes are counted
// in runes so multi-byte input cannot split a character.
func ExtractNgrams(text string, minSize, maxSize int) []string {
	runes := []rune(text)
	seen := make(map[string]struct{})
	var out []string
	for size := maxSize; size >= minSize; size-- {
		if size < 1 || size > len(runes) {
			continue
		}
		for i := 0; i+size <= len(runes); i++ {
			g := string(runes[i : i+size])
			if _, ok := seen[g]; ok {
				continue
			}
			seen[g] = struct{}{}
			out = append(out, g)
		}
	}
	return out
}

// Enumerate derives ranked candidate addresses for a query. Deterministic:
// the same query and parameters always produce the identical list.
func Enumerate(query string, p EnumerateParams) ([]models.Candidate, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	normalized := NormalizeQuery(query)
	if normalized == "" {
		return nil, ErrInvalidQuery
	}

	ngrams := ExtractNgrams(normalized, p.MinNgram, p.MaxNgram)

	// Keyed by address; order preserves first production so ranking ties
	// never depend on map iteration.
	byAddress := make(map[string]*models.Candidate)
	var order []string

	for _, g := range ngrams {
		size := len([]rune(g))
		for variant := 1; variant <= p.Depth; variant++ {
			addr := candidateAddress(g, variant)
			score := float64(size) + 1.0/float64(variant+1)

			if c, ok := byAddress[addr]; ok {
				c.Score += score
				if !containsString(c.Ngrams, g) {
					c.Ngrams = append(c.Ngrams, g)
				}
				if variant < c.Depth {
					c.Depth = variant
				}
				continue
			}
			byAddress[addr] = &models.Candidate{
				Address: addr,
				Score:   score,
				Ngrams:  []string{g},
				Depth:   variant,
			}
			order = append(order, addr)
		}
	}

	candidates := make([]models.Candidate, 0, len(order))
	for _, addr := range order {
		candidates = append(candidates, *byAddress[addr])
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Address < candidates[j].Address
	})

	if len(candidates) > p.MaxResults {
		candidates = candidates[:p.MaxResults]
	}
	return candidates, nil
}

// EnumerateSubstrings is the fixed-window variant: every contiguous window of
// exactly `length` runes becomes one n-gram, enumerated at depth 1.
func EnumerateSubstrings(text string, length, maxResults int) ([]models.Candidate, error) {
	if length < MinNgramSize || length > MaxNgramSize {
		return nil, fmt.Errorf("%w: substring length %d", ErrInvalidConfig, length)
	}
	return Enumerate(text, EnumerateParams{
		MaxResults: maxResults,
		Depth:      1,
		MinNgram:   length,
		MaxNgram:   length,
	})
}

// CommonAddresses returns the sorted intersection of two queries' candidate
// address sets, a cheap signal for queries that share fragments.
func CommonAddresses(q1, q2 string, p EnumerateParams) ([]string, error) {
	c1, err := Enumerate(q1, p)
	if err != nil {
		return nil, err
	}
	c2, err := Enumerate(q2, p)
	if err != nil {
		return nil, err
	}
	in1 := make(map[string]struct{}, len(c1))
	for _, c := range c1 {
		in1[c.Address] = struct{}{}
	}
	var common []string
	for _, c := range c2 {
		if _, ok := in1[c.Address]; ok {
			common = append(common, c.Address)
		}
	}
	sort.Strings(common)
	return common, nil
}

func candidateAddress(ngram string, variant int) string {
	sum := sha256.Sum256([]byte(ngram + ":" + strconv.Itoa(variant)))
	return hex.EncodeToString(sum[:])
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
