package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rawblock/babel-engine/internal/babel"
	"github.com/rawblock/babel-engine/internal/cache"
	"github.com/rawblock/babel-engine/internal/search"
)

var (
	decodeQuery     string
	decodeText      string
	decodeNormalize bool
	decodeFull      bool
)

// decodeCmd scores the page at an address, or caller-provided text.
var decodeCmd = &cobra.Command{
	Use:   "decode <address>",
	Short: "Decode and score the page at an address",
	Long: `Generates the page at an address and runs the coherence scorer over
it. With --text the given text is scored instead and the address is
only kept as provenance, so drafts can be scored without an address
that actually encodes them. --query adds exact-match context.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().StringVar(&decodeQuery, "query", "", "Query context for exact-match scoring")
	decodeCmd.Flags().StringVar(&decodeText, "text", "", "Score this text instead of generating the page")
	decodeCmd.Flags().BoolVar(&decodeNormalize, "normalize", false, "Apply heuristic normalization to the decoded page")
	decodeCmd.Flags().BoolVar(&decodeFull, "full", false, "Print the whole page instead of the snippet")
}

func runDecode(cmd *cobra.Command, args []string) error {
	address := strings.ToLower(strings.TrimSpace(args[0]))
	if !babel.ValidAddress(address) {
		return fmt.Errorf("invalid address: expected lowercase hex")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var norm search.Normalizer
	if decodeNormalize {
		norm = search.NewHeuristic()
	}

	store := cache.NewMemory(1, cfg.CacheTTL())
	defer store.Close()
	pipeline := search.New(cfg, store, nil, nil, nil)

	page := pipeline.DecodeWith(address, decodeText, decodeQuery, norm)

	if jsonOutput() {
		return emitJSON(page)
	}

	c := page.Coherence
	fmt.Printf("address: %s  source: %s\n", page.Address, page.Source)
	fmt.Printf("overall %.1f (%s)  language %.1f  structure %.1f  ngram %.1f  exact %.1f\n",
		c.OverallScore, c.Confidence, c.LanguageScore, c.StructureScore, c.NgramScore, c.ExactMatchScore)
	if decodeFull {
		fmt.Println(page.RawText)
	} else {
		fmt.Println(page.Snippet)
	}
	if page.NormalizedText != "" {
		fmt.Println("\nnormalized:")
		if decodeFull {
			fmt.Println(page.NormalizedText)
		} else {
			fmt.Println(truncateRunes(page.NormalizedText, 200))
		}
	}
	return nil
}

// truncateRunes cuts s to at most n runes, marking the cut.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
