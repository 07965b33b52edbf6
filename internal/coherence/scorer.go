package coherence

import (
	"math"
	"strings"

	"github.com/rawblock/babel-engine/pkg/models"
)

// Coherence Scoring Engine
//
// Judges how language-like a page is, and optionally how relevant it is to a
// query, on a calibrated 0-100 scale:
//
//   Overall = w_lang*Language + w_struct*Structure + w_ngram*Ngram + w_exact*Exact
//
// The four signals are independent heuristics:
//   - Language:  density of the 100 most common English words
//   - Structure: sentence cadence, punctuation, letter/space balance
//   - Ngram:     distance of the letter-bigram entropy from English prose
//   - Exact:     literal query occurrences, else query 3-gram coverage
//
// Weights are normalized to sum to 1, so Overall stays in [0,100] and the
// confidence buckets below are stable under reweighting. Scoring is a total
// function: any finite text and any query produce a score, never an error.

// Confidence thresholds on the overall score.
const (
	ThresholdHigh   = 80.0
	ThresholdMedium = 60.0
	ThresholdSparse = 40.0
)

// Bigram-entropy transform: English prose sits near the target; every bit of
// distance costs a fixed penalty.
const (
	entropyTarget  = 4.2
	entropyPenalty = 15.0
)

// Exact-match scoring: first occurrence is worth the base, repeats add a
// capped bonus, and near-misses earn partial credit from 3-gram coverage.
const (
	exactMatchBase    = 70.0
	exactRepeatBonus  = 5.0
	exactRepeatCap    = 30.0
	exactCoverageSpan = 50.0
)

// Weights configures the blend of the four signals.
type Weights struct {
	Language  float64 `json:"language" yaml:"language"`
	Structure float64 `json:"structure" yaml:"structure"`
	Ngram     float64 `json:"ngram" yaml:"ngram"`
	Exact     float64 `json:"exact" yaml:"exact"`
}

// DefaultWeights returns the calibrated blend.
func DefaultWeights() Weights {
	return Weights{Language: 0.30, Structure: 0.20, Ngram: 0.20, Exact: 0.30}
}

// normalized scales the weights to sum to 1. A degenerate all-zero blend
// falls back to the defaults rather than dividing by zero.
func (w Weights) normalized() Weights {
	total := w.Language + w.Structure + w.Ngram + w.Exact
	if total <= 0 {
		return DefaultWeights()
	}
	return Weights{
		Language:  w.Language / total,
		Structure: w.Structure / total,
		Ngram:     w.Ngram / total,
		Exact:     w.Exact / total,
	}
}

// Scorer evaluates pages against the configured weights. Stateless after
// construction and safe for concurrent use.
type Scorer struct {
	weights Weights
}

// NewScorer builds a scorer; weights are normalized once up front.
func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w.normalized()}
}

// Weights returns the normalized blend in use.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score computes the structured coherence score for text, conditioned on
// query when non-empty.
func (s *Scorer) Score(text, query string) models.CoherenceScore {
	stats := Measure(text)
	tokens := Tokens(text)

	language, commonCount := languageScore(tokens)
	structure := structureScore(text, stats)
	entropy := BigramEntropy(text)
	ngram := ngramScore(text, entropy)
	exact := exactMatchScore(text, query)

	overall := language*s.weights.Language +
		structure*s.weights.Structure +
		ngram*s.weights.Ngram +
		exact*s.weights.Exact

	return models.CoherenceScore{
		LanguageScore:   language,
		StructureScore:  structure,
		NgramScore:      ngram,
		ExactMatchScore: exact,
		OverallScore:    overall,
		Confidence:      Classify(overall),
		Metrics: map[string]float64{
			"text_length":       float64(stats.Length),
			"word_count":        float64(len(tokens)),
			"sentence_count":    float64(CountSentences(text)),
			"common_word_count": float64(commonCount),
			"bigram_entropy":    math.Round(entropy*100) / 100,
			"letter_ratio":      math.Round(stats.LetterRatio()*1000) / 1000,
			"space_ratio":       math.Round(stats.SpaceRatio()*1000) / 1000,
		},
	}
}

// Classify maps an overall score to its confidence bucket.
func Classify(overall float64) models.ConfidenceLevel {
	switch {
	case overall >= ThresholdHigh:
		return models.ConfidenceHigh
	case overall >= ThresholdMedium:
		return models.ConfidenceMedium
	case overall >= ThresholdSparse:
		return models.ConfidenceSparse
	default:
		return models.ConfidenceMinimal
	}
}

// languageScore is the share of tokens found in the common-word vocabulary,
// on a 0-100 scale. Also returns the raw hit count for diagnostics.
func languageScore(tokens []string) (float64, int) {
	if len(tokens) == 0 {
		return 0, 0
	}
	hits := 0
	for _, t := range tokens {
		if IsCommonWord(t) {
			hits++
		}
	}
	score := math.Round(100 * float64(hits) / float64(len(tokens)))
	return math.Min(100, score), hits
}

// structureScore sums independent structural signals, clipped to 100.
func structureScore(text string, stats TextStats) float64 {
	if stats.Length == 0 {
		return 0
	}
	score := 0.0

	// ─── Terminal punctuation present ────────────────────────────────
	if strings.ContainsAny(text, ".!?") {
		score += 30
	}

	// ─── Sentence cadence ────────────────────────────────────────────
	// Period count proportional to length: roughly one sentence per
	// 80+ characters, and at least three of them.
	if p := float64(stats.Periods); p >= 3 && p <= float64(stats.Length)/80 {
		score += 20
	}

	// ─── Clause separation ───────────────────────────────────────────
	if strings.Count(text, ", ") >= 2 {
		score += 20
	}

	// ─── Letter and space balance ────────────────────────────────────
	if r := stats.LetterRatio(); r >= 0.55 && r <= 0.85 {
		score += 15
	}
	if r := stats.SpaceRatio(); r >= 0.10 && r <= 0.25 {
		score += 15
	}

	if score > 100 {
		score = 100
	}
	return score
}

// ngramScore transforms bigram entropy into a 0-100 coherence signal:
// full marks at the English target, minus a fixed penalty per bit of
// distance. Uniform noise lands around 9.4 bits and scores near 20.
func ngramScore(text string, entropy float64) float64 {
	if _, total := LetterBigrams(text); total == 0 {
		return 0
	}
	score := math.Round(100 - math.Abs(entropy-entropyTarget)*entropyPenalty)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// exactMatchScore rewards literal query occurrences in the text; with no
// occurrence it falls back to partial credit for query 3-grams present.
// No query means no signal, score 0.
func exactMatchScore(text, query string) float64 {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return 0
	}
	lower := strings.ToLower(text)

	if c := CountNonOverlapping(lower, query); c >= 1 {
		return exactMatchBase + math.Min(exactRepeatCap, exactRepeatBonus*float64(c-1))
	}

	grams := queryTrigrams(query)
	if len(grams) == 0 {
		return 0
	}
	present := 0
	for _, g := range grams {
		if strings.Contains(lower, g) {
			present++
		}
	}
	return float64(present) / float64(len(grams)) * exactCoverageSpan
}

// queryTrigrams returns the unique 3-rune windows of the query.
func queryTrigrams(query string) []string {
	runes := []rune(query)
	if len(runes) < 3 {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for i := 0; i+3 <= len(runes); i++ {
		g := string(runes[i : i+3])
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}
