package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rawblock/babel-engine/internal/babel"
)

var (
	enumerateMax      int
	enumerateDepth    int
	enumerateMinNgram int
	enumerateMaxNgram int
)

// enumerateCmd lists the candidate addresses a query maps to.
var enumerateCmd = &cobra.Command{
	Use:   "enumerate <query>",
	Short: "Enumerate candidate addresses for a query",
	Long: `Derives the deterministic candidate addresses a search for this query
would visit, ranked by n-gram weight. No pages are generated, so this
shows where a search will look without paying for scoring.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnumerate,
}

func init() {
	enumerateCmd.Flags().IntVar(&enumerateMax, "max", 10, "Maximum candidates to return")
	enumerateCmd.Flags().IntVar(&enumerateDepth, "depth", 2, "Address variants per n-gram")
	enumerateCmd.Flags().IntVar(&enumerateMinNgram, "min-ngram", 2, "Smallest n-gram size in words")
	enumerateCmd.Flags().IntVar(&enumerateMaxNgram, "max-ngram", 5, "Largest n-gram size in words")
}

func runEnumerate(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	candidates, err := babel.Enumerate(query, babel.EnumerateParams{
		MaxResults: enumerateMax,
		Depth:      enumerateDepth,
		MinNgram:   enumerateMinNgram,
		MaxNgram:   enumerateMaxNgram,
	})
	if err != nil {
		return err
	}

	if jsonOutput() {
		return emitJSON(candidates)
	}

	fmt.Printf("%d candidates for %q\n", len(candidates), babel.NormalizeQuery(query))
	for _, c := range candidates {
		fmt.Printf("%8.3f  %s  %s\n", c.Score, c.Address, strings.Join(c.Ngrams, " | "))
	}
	return nil
}
