package coherence

import (
	"math"
	"strings"
	"testing"

	"github.com/rawblock/babel-engine/internal/babel"
	"github.com/rawblock/babel-engine/pkg/models"
)

// englishText is a 97-char paragraph dense in vocabulary words: 18 of its
// 25 tokens are common, letter and space ratios fall in the prose bands.
const englishText = "the cat sat on the mat. it was a good day for all of us. we can go to the park and see the water."

// mediumText is repetitive vocabulary-heavy prose: long enough for the
// sentence-cadence band, bigram entropy close to the English target.
const mediumText = "the people of the water will go to the water, and the people will see " +
	"the way of the water. the time of the people has come, and the people " +
	"will go down to the water. the people of the water will find the way " +
	"to the water, and the way of the water will be the way of the people."

func TestWeights_Normalization(t *testing.T) {
	s := NewScorer(Weights{Language: 3, Structure: 2, Ngram: 2, Exact: 3})
	w := s.Weights()

	if math.Abs(w.Language-0.3) > 1e-12 || math.Abs(w.Structure-0.2) > 1e-12 ||
		math.Abs(w.Ngram-0.2) > 1e-12 || math.Abs(w.Exact-0.3) > 1e-12 {
		t.Errorf("Expected weights normalized to 0.3/0.2/0.2/0.3. Got: %+v", w)
	}

	// All-zero blend falls back to defaults instead of dividing by zero.
	if w := NewScorer(Weights{}).Weights(); w != DefaultWeights() {
		t.Errorf("Expected default weights for zero blend. Got: %+v", w)
	}
}

func TestScore_EmptyText(t *testing.T) {
	sc := NewScorer(DefaultWeights()).Score("", "")

	if sc.LanguageScore != 0 || sc.StructureScore != 0 || sc.NgramScore != 0 || sc.ExactMatchScore != 0 {
		t.Errorf("Expected all sub-scores 0 for empty text. Got: %+v", sc)
	}
	if sc.OverallScore != 0 {
		t.Errorf("Expected overall 0. Got: %v", sc.OverallScore)
	}
	if sc.Confidence != models.ConfidenceMinimal {
		t.Errorf("Expected minimal confidence. Got: %v", sc.Confidence)
	}
	if sc.Metrics["text_length"] != 0 {
		t.Errorf("Expected text_length 0. Got: %v", sc.Metrics["text_length"])
	}
}

func TestScore_LanguageDensity(t *testing.T) {
	// "the", "and", "the" are vocabulary words: 3 of 5 tokens.
	sc := NewScorer(DefaultWeights()).Score("the cat and the dog", "")

	if sc.LanguageScore != 60 {
		t.Errorf("Expected language score 60. Got: %v", sc.LanguageScore)
	}
	if sc.Metrics["common_word_count"] != 3 {
		t.Errorf("Expected 3 common words. Got: %v", sc.Metrics["common_word_count"])
	}
}

func TestScore_StructureSignals(t *testing.T) {
	s := NewScorer(DefaultWeights())

	// All five signals: terminal punctuation, 3 periods within the cadence
	// band for 293 chars, 6 comma-space pairs, both ratios in band.
	sent := "the quick brown fox jumps over, the lazy dog, and runs far away down the long winding river path."
	if sc := s.Score(sent+" "+sent+" "+sent, ""); sc.StructureScore != 100 {
		t.Errorf("Expected structure score 100. Got: %v", sc.StructureScore)
	}

	// Ratios in band but no punctuation at all: 15 + 15.
	if sc := s.Score("the cat and the dog", ""); sc.StructureScore != 30 {
		t.Errorf("Expected structure score 30. Got: %v", sc.StructureScore)
	}

	// No signal fires: all letters, no spaces or punctuation.
	if sc := s.Score("aaaa", ""); sc.StructureScore != 0 {
		t.Errorf("Expected structure score 0. Got: %v", sc.StructureScore)
	}
}

func TestScore_NgramEntropy(t *testing.T) {
	s := NewScorer(DefaultWeights())

	// Entropy 0.9183 bits, 3.28 from target: 100 - 49.23 rounds to 51.
	if sc := s.Score("abab", ""); sc.NgramScore != 51 {
		t.Errorf("Expected ngram score 51 for 'abab'. Got: %v", sc.NgramScore)
	}

	// Uniform over 7 bigrams, entropy log2(7)=2.807: rounds to 79.
	if sc := s.Score("abcdefgh", ""); sc.NgramScore != 79 {
		t.Errorf("Expected ngram score 79 for 'abcdefgh'. Got: %v", sc.NgramScore)
	}

	// No letter bigrams means no signal, not a perfect score.
	if sc := s.Score("123 456", ""); sc.NgramScore != 0 {
		t.Errorf("Expected ngram score 0 without bigrams. Got: %v", sc.NgramScore)
	}
}

func TestScore_ExactMatch(t *testing.T) {
	s := NewScorer(DefaultWeights())

	cases := []struct {
		name  string
		text  string
		query string
		want  float64
	}{
		{"two occurrences", "alpha beta alpha gamma", "alpha", 75},
		{"case insensitive", "alpha beta alpha gamma", "ALPHA", 75},
		{"repeat bonus capped", strings.Repeat("zeta ", 8), "zeta", 100},
		{"all trigrams covered", "help yellow", "hello", 50},
		{"no query", "alpha beta", "", 0},
		{"short query no match", "abc", "zz", 0},
	}
	for _, c := range cases {
		sc := s.Score(c.text, c.query)
		if sc.ExactMatchScore != c.want {
			t.Errorf("%s: expected exact score %v. Got: %v", c.name, c.want, sc.ExactMatchScore)
		}
	}

	// One of three query trigrams present: hel from "help", but not ell/llo.
	sc := s.Score("help me", "hello")
	if math.Abs(sc.ExactMatchScore-50.0/3.0) > 1e-9 {
		t.Errorf("Expected exact score 50/3. Got: %v", sc.ExactMatchScore)
	}
}

func TestScore_OverallIsWeightedSum(t *testing.T) {
	s := NewScorer(DefaultWeights())
	w := s.Weights()

	// The overall score is exactly the configured weighted sum. With no
	// query the exact term contributes zero at its face weight; nothing
	// is renormalized around it.
	for _, c := range []struct{ text, query string }{
		{englishText, ""},
		{englishText, "cat"},
		{"alpha beta alpha gamma", "alpha"},
		{"the cat and the dog", ""},
	} {
		sc := s.Score(c.text, c.query)
		want := sc.LanguageScore*w.Language + sc.StructureScore*w.Structure +
			sc.NgramScore*w.Ngram + sc.ExactMatchScore*w.Exact
		if math.Abs(sc.OverallScore-want) > 1e-9 {
			t.Errorf("Score(%q, %q): expected overall %v. Got: %v", c.text, c.query, want, sc.OverallScore)
		}
	}
}

func TestScore_QueryLiftsOverall(t *testing.T) {
	s := NewScorer(DefaultWeights())
	text := "alpha beta alpha gamma"

	with := s.Score(text, "alpha")
	without := s.Score(text, "")

	if with.ExactMatchScore < 70 {
		t.Errorf("Expected exact score >= 70 for a present query. Got: %v", with.ExactMatchScore)
	}
	if with.OverallScore <= without.OverallScore {
		t.Errorf("Expected query occurrence to lift overall. Got: %v vs %v",
			with.OverallScore, without.OverallScore)
	}
}

func TestScore_EnglishVersusGeneratedNoise(t *testing.T) {
	s := NewScorer(DefaultWeights())

	noise := babel.AddressToPage(babel.RandomAddress(""))
	noiseScore := s.Score(noise, "")
	englishScore := s.Score(englishText, "")

	// The canonical page is near-uniform symbol soup: 2 of ~110 tokens hit
	// the vocabulary, entropy sits around 9.17 bits, and only the terminal
	// punctuation and comma-space structure signals fire.
	if noiseScore.LanguageScore != 2 {
		t.Errorf("Expected noise language score 2. Got: %v", noiseScore.LanguageScore)
	}
	if noiseScore.StructureScore != 50 {
		t.Errorf("Expected noise structure score 50. Got: %v", noiseScore.StructureScore)
	}
	if noiseScore.NgramScore != 25 {
		t.Errorf("Expected noise ngram score 25. Got: %v", noiseScore.NgramScore)
	}
	if noiseScore.Confidence != models.ConfidenceMinimal {
		t.Errorf("Expected minimal confidence for noise. Got: %v", noiseScore.Confidence)
	}

	if englishScore.LanguageScore != 72 {
		t.Errorf("Expected english language score 72. Got: %v", englishScore.LanguageScore)
	}
	if diff := englishScore.LanguageScore - noiseScore.LanguageScore; diff < 20 {
		t.Errorf("Expected language gap of at least 20 points. Got: %v", diff)
	}
	if englishScore.OverallScore <= noiseScore.OverallScore {
		t.Errorf("Expected english text to outrank noise. Got: %v vs %v",
			englishScore.OverallScore, noiseScore.OverallScore)
	}
}

func TestScore_PangramWithoutQueryStaysMinimal(t *testing.T) {
	// Without a query the exact signal is 0, so under the default 0.30
	// exact weight a query-free overall tops out at 70. Prose that is
	// grammatical but vocabulary-sparse, like the fox pangram, lands in
	// minimal: only 4 of its 14 tokens are common words. The language
	// signal still separates it from generated noise by far more than the
	// required 20 points; reaching medium query-free takes vocabulary-dense
	// text (TestScore_MediumConfidence).
	s := NewScorer(DefaultWeights())
	pangram := strings.Repeat("the quick brown fox jumps over the lazy dog. the quick brown fox again. ", 44)

	sc := s.Score(pangram, "")
	noise := s.Score(babel.AddressToPage(babel.RandomAddress("")), "")

	if sc.LanguageScore != 29 {
		t.Errorf("Expected pangram language score 29. Got: %v", sc.LanguageScore)
	}
	if sc.StructureScore != 60 {
		t.Errorf("Expected pangram structure score 60. Got: %v", sc.StructureScore)
	}
	if sc.OverallScore >= ThresholdSparse {
		t.Errorf("Expected query-free overall below %v. Got: %v", ThresholdSparse, sc.OverallScore)
	}
	if sc.Confidence != models.ConfidenceMinimal {
		t.Errorf("Expected minimal confidence without a query. Got: %v", sc.Confidence)
	}
	if diff := sc.LanguageScore - noise.LanguageScore; diff < 20 {
		t.Errorf("Expected language gap of at least 20 points over noise. Got: %v", diff)
	}
}

func TestScore_MediumConfidence(t *testing.T) {
	sc := NewScorer(DefaultWeights()).Score(mediumText, "")

	if sc.LanguageScore != 80 {
		t.Errorf("Expected language score 80. Got: %v", sc.LanguageScore)
	}
	if sc.StructureScore != 100 {
		t.Errorf("Expected structure score 100. Got: %v", sc.StructureScore)
	}
	if sc.NgramScore != 95 {
		t.Errorf("Expected ngram score 95. Got: %v", sc.NgramScore)
	}
	if sc.OverallScore < 60 || sc.OverallScore >= 80 {
		t.Errorf("Expected overall in the medium band. Got: %v", sc.OverallScore)
	}
	if sc.Confidence != models.ConfidenceMedium {
		t.Errorf("Expected medium confidence. Got: %v", sc.Confidence)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		overall float64
		want    models.ConfidenceLevel
	}{
		{100, models.ConfidenceHigh},
		{80, models.ConfidenceHigh},
		{79.99, models.ConfidenceMedium},
		{60, models.ConfidenceMedium},
		{59.99, models.ConfidenceSparse},
		{40, models.ConfidenceSparse},
		{39.99, models.ConfidenceMinimal},
		{0, models.ConfidenceMinimal},
	}
	for _, c := range cases {
		if got := Classify(c.overall); got != c.want {
			t.Errorf("Classify(%v): expected %v. Got: %v", c.overall, c.want, got)
		}
	}
}

func TestScore_Metrics(t *testing.T) {
	sc := NewScorer(DefaultWeights()).Score("the cat and the dog", "")

	checks := map[string]float64{
		"text_length":       19,
		"word_count":        5,
		"sentence_count":    1,
		"common_word_count": 3,
		"bigram_entropy":    2.92,
		"letter_ratio":      0.789,
		"space_ratio":       0.211,
	}
	for key, want := range checks {
		if got := sc.Metrics[key]; got != want {
			t.Errorf("metrics[%q]: expected %v. Got: %v", key, want, got)
		}
	}
}

func TestScorer_LanguageOnlyWeights(t *testing.T) {
	s := NewScorer(Weights{Language: 1})
	sc := s.Score("the cat and the dog", "")

	if sc.OverallScore != 60 {
		t.Errorf("Expected overall 60 under language-only weights. Got: %v", sc.OverallScore)
	}
	if sc.Confidence != models.ConfidenceMedium {
		t.Errorf("Expected medium confidence at the boundary. Got: %v", sc.Confidence)
	}
}
