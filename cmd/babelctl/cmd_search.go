// Package main implements babelctl search, the full pipeline from the
// command line.
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rawblock/babel-engine/internal/cache"
	"github.com/rawblock/babel-engine/internal/remote"
	"github.com/rawblock/babel-engine/internal/search"
	"github.com/rawblock/babel-engine/pkg/models"
)

var (
	searchMaxResults int
	searchMode       string
	searchMinScore   float64
	searchRemoteURL  string
	searchNormalize  bool
)

// searchCmd runs one query through the full search pipeline.
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the library for coherent pages matching a query",
	Long: `Runs one query through the full pipeline: enumerate candidate
addresses, materialize and score each page, rank by coherence.

Local mode is fully offline. Remote and hybrid modes need --remote-url
pointing at a compatible page service.

Example:
  babelctl search "the old man and the sea" --max-results 3`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchMaxResults, "max-results", 5, "Maximum pages to return")
	searchCmd.Flags().StringVar(&searchMode, "mode", "", "Search mode: local, remote or hybrid (default from config)")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "Drop pages scoring below this overall value")
	searchCmd.Flags().StringVar(&searchRemoteURL, "remote-url", "", "Base URL of a remote page source")
	searchCmd.Flags().BoolVar(&searchNormalize, "normalize", false, "Apply heuristic normalization to returned pages")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var remoteSrc search.RemoteSource
	if searchRemoteURL != "" {
		client, err := remote.NewClient(searchRemoteURL, cfg.RemoteTimeout(), nil)
		if err != nil {
			return fmt.Errorf("remote source: %w", err)
		}
		remoteSrc = client
	}

	var norm search.Normalizer
	if searchNormalize || cfg.Normalization.Enabled {
		norm = search.NewHeuristic()
	}

	store := cache.NewMemory(cfg.Cache.MaxEntries, cfg.CacheTTL())
	defer store.Close()

	pipeline := search.New(cfg, store, remoteSrc, norm, nil)

	result, err := pipeline.Search(cmd.Context(), search.Request{
		Query:      strings.Join(args, " "),
		MaxResults: searchMaxResults,
		Mode:       models.SearchMode(searchMode),
		MinScore:   searchMinScore,
	})
	if err != nil {
		return err
	}

	if jsonOutput() {
		return emitJSON(result)
	}

	fmt.Printf("query %q  mode %s  %d of %d candidates kept  %dms\n",
		result.Query, result.Mode, len(result.Results),
		result.Metadata.AddressesEnumerated, result.ElapsedMs)
	if result.Metadata.Partial {
		fmt.Println("note: deadline hit, ranking covers only the candidates scored in time")
	}
	if len(result.Results) == 0 {
		fmt.Println("no pages cleared the score threshold")
		return nil
	}
	for i, page := range result.Results {
		c := page.Coherence
		fmt.Printf("\n%2d. %s\n", i+1, page.Address)
		fmt.Printf("    overall %.1f (%s)  language %.1f  structure %.1f  ngram %.1f  exact %.1f\n",
			c.OverallScore, c.Confidence, c.LanguageScore, c.StructureScore, c.NgramScore, c.ExactMatchScore)
		fmt.Printf("    %s\n", page.Snippet)
	}
	return nil
}
