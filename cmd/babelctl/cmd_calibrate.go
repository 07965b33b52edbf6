// Package main implements babelctl calibrate, the scorer self-check used
// when evaluating a weight change.
package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rawblock/babel-engine/internal/babel"
	"github.com/rawblock/babel-engine/internal/coherence"
	"github.com/rawblock/babel-engine/internal/metrics"
	"github.com/rawblock/babel-engine/pkg/models"
)

var (
	calibratePages int
	calibrateSeed  string
	calibrateQuery string
	calibrateTopK  int
	candidate      coherence.Weights
)

// referencePassages are plain prose the scorer must keep clearly above
// generator noise. All of them survive alphabet folding unchanged.
var referencePassages = []string{
	"the old man walked along the shore and watched the grey sea. he had been there many times before, and the water was always the same.",
	"there was a light in the window of the small house at the end of the road. no one in the town could say who kept it burning, or why.",
	"we set out before first light and followed the river north for three days. the country was flat and open, and we made good time.",
	"she wrote one letter every week and never sent any of them. the box under her bed held more than forty years of unsaid things.",
	"the library had no doors and no walls, only shelves that went on past seeing. every book that could be written was already there.",
}

// calibrateCmd compares the configured weights against a candidate blend.
var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Check scorer discrimination and the effect of a weight change",
	Long: `Scores a fixed corpus of generator pages and reference prose twice,
once with the configured weights and once with a candidate blend, then
reports how far the two configurations agree.

Separation is the gap between mean prose and mean noise scores; a
healthy scorer keeps it large under both blends. The agreement metrics
show how much a reweighting would reorder results and move pages
between confidence buckets.

Example:
  babelctl calibrate --language 0.5 --exact 0.1`,
	Args: cobra.NoArgs,
	RunE: runCalibrate,
}

func init() {
	def := coherence.DefaultWeights()
	calibrateCmd.Flags().IntVar(&calibratePages, "pages", 20, "Generator pages in the corpus")
	calibrateCmd.Flags().StringVar(&calibrateSeed, "seed", "calibrate", "Seed for the generator pages")
	calibrateCmd.Flags().StringVar(&calibrateQuery, "query", "", "Optional query context for exact-match scoring")
	calibrateCmd.Flags().IntVar(&calibrateTopK, "top-k", 10, "Cutoff for the visible-overlap metric")
	calibrateCmd.Flags().Float64Var(&candidate.Language, "language", def.Language, "Candidate language weight")
	calibrateCmd.Flags().Float64Var(&candidate.Structure, "structure", def.Structure, "Candidate structure weight")
	calibrateCmd.Flags().Float64Var(&candidate.Ngram, "ngram", def.Ngram, "Candidate ngram weight")
	calibrateCmd.Flags().Float64Var(&candidate.Exact, "exact", def.Exact, "Candidate exact-match weight")
}

type calibrationSample struct {
	id    string
	prose bool
	text  string
}

type blendStats struct {
	ProseMean  float64 `json:"proseMean"`
	NoiseMean  float64 `json:"noiseMean"`
	Separation float64 `json:"separation"`
}

type calibrationReport struct {
	NoisePages int               `json:"noisePages"`
	ProsePages int               `json:"prosePages"`
	Configured coherence.Weights `json:"configuredWeights"`
	Candidate  coherence.Weights `json:"candidateWeights"`
	ConfStats  blendStats        `json:"configured"`
	CandStats  blendStats        `json:"candidate"`
	KendallTau float64           `json:"kendallTau"`
	Overlap    float64           `json:"overlapAtK"`
	OverlapK   int               `json:"k"`
	BucketsK   float64           `json:"bucketAgreement"`
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if calibratePages < 2 {
		return fmt.Errorf("--pages must be at least 2")
	}

	configured := coherence.NewScorer(cfg.Weights)
	proposed := coherence.NewScorer(candidate)

	corpus := buildCorpus(calibrateSeed, calibratePages)

	confScores := make([]models.CoherenceScore, len(corpus))
	candScores := make([]models.CoherenceScore, len(corpus))
	for i, s := range corpus {
		confScores[i] = configured.Score(s.text, calibrateQuery)
		candScores[i] = proposed.Score(s.text, calibrateQuery)
	}

	report := calibrationReport{
		NoisePages: calibratePages,
		ProsePages: len(referencePassages),
		Configured: configured.Weights(),
		Candidate:  proposed.Weights(),
		ConfStats:  groupStats(corpus, confScores),
		CandStats:  groupStats(corpus, candScores),
		KendallTau: metrics.KendallTau(ordering(corpus, confScores), ordering(corpus, candScores)),
		Overlap:    metrics.OverlapAtK(ordering(corpus, confScores), ordering(corpus, candScores), calibrateTopK),
		OverlapK:   calibrateTopK,
		BucketsK:   metrics.BucketAgreement(buckets(confScores), buckets(candScores)),
	}

	if jsonOutput() {
		return emitJSON(report)
	}

	fmt.Printf("corpus: %d generator pages, %d reference passages\n", report.NoisePages, report.ProsePages)
	fmt.Printf("configured weights: language %.2f  structure %.2f  ngram %.2f  exact %.2f\n",
		report.Configured.Language, report.Configured.Structure, report.Configured.Ngram, report.Configured.Exact)
	fmt.Printf("candidate weights:  language %.2f  structure %.2f  ngram %.2f  exact %.2f\n\n",
		report.Candidate.Language, report.Candidate.Structure, report.Candidate.Ngram, report.Candidate.Exact)

	fmt.Printf("%-22s %10s %10s\n", "", "configured", "candidate")
	fmt.Printf("%-22s %10.1f %10.1f\n", "prose mean overall", report.ConfStats.ProseMean, report.CandStats.ProseMean)
	fmt.Printf("%-22s %10.1f %10.1f\n", "noise mean overall", report.ConfStats.NoiseMean, report.CandStats.NoiseMean)
	fmt.Printf("%-22s %10.1f %10.1f\n\n", "separation", report.ConfStats.Separation, report.CandStats.Separation)

	fmt.Println("ranking agreement (configured vs candidate):")
	fmt.Printf("  kendall tau    %6.3f\n", report.KendallTau)
	fmt.Printf("  overlap@%-2d     %6.3f\n", report.OverlapK, report.Overlap)
	fmt.Printf("  bucket kappa   %6.3f\n", report.BucketsK)
	return nil
}

// buildCorpus assembles the fixed sample set: seeded generator pages plus
// the reference passages tiled out to full pages.
func buildCorpus(seed string, pages int) []calibrationSample {
	corpus := make([]calibrationSample, 0, pages+len(referencePassages))
	for i := 0; i < pages; i++ {
		addr := babel.RandomAddress(fmt.Sprintf("%s:%d", seed, i))
		corpus = append(corpus, calibrationSample{
			id:   addr,
			text: babel.AddressToPage(addr),
		})
	}
	for i, passage := range referencePassages {
		corpus = append(corpus, calibrationSample{
			id:    fmt.Sprintf("prose-%d", i+1),
			prose: true,
			text:  prosePage(passage),
		})
	}
	return corpus
}

// prosePage tiles a passage out to a full page in alphabet space.
func prosePage(text string) string {
	var b strings.Builder
	b.Grow(babel.PageLength + len(text))
	for b.Len() < babel.PageLength {
		b.WriteString(text)
		b.WriteByte(' ')
	}
	return babel.NormalizeText(b.String())
}

func groupStats(corpus []calibrationSample, scores []models.CoherenceScore) blendStats {
	var proseSum, noiseSum float64
	var proseN, noiseN int
	for i, s := range corpus {
		if s.prose {
			proseSum += scores[i].OverallScore
			proseN++
		} else {
			noiseSum += scores[i].OverallScore
			noiseN++
		}
	}
	st := blendStats{}
	if proseN > 0 {
		st.ProseMean = proseSum / float64(proseN)
	}
	if noiseN > 0 {
		st.NoiseMean = noiseSum / float64(noiseN)
	}
	st.Separation = st.ProseMean - st.NoiseMean
	return st
}

// ordering ranks sample ids the way the pipeline ranks pages: overall score
// descending, id ascending on ties.
func ordering(corpus []calibrationSample, scores []models.CoherenceScore) []string {
	idx := make([]int, len(corpus))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		if scores[idx[a]].OverallScore != scores[idx[b]].OverallScore {
			return scores[idx[a]].OverallScore > scores[idx[b]].OverallScore
		}
		return corpus[idx[a]].id < corpus[idx[b]].id
	})
	ids := make([]string, len(idx))
	for i, j := range idx {
		ids[i] = corpus[j].id
	}
	return ids
}

func buckets(scores []models.CoherenceScore) []models.ConfidenceLevel {
	out := make([]models.ConfidenceLevel, len(scores))
	for i, s := range scores {
		out[i] = s.Confidence
	}
	return out
}
