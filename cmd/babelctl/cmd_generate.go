// Package main implements babelctl generate, direct page materialization.
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rawblock/babel-engine/internal/babel"
)

var (
	generateSeed string
	generateFull bool
)

// generateCmd materializes the page behind one address.
var generateCmd = &cobra.Command{
	Use:   "generate [address]",
	Short: "Generate the deterministic page at an address",
	Long: `Materializes the 3200-symbol page at an address. With --seed the
address is first derived from the seed, so the same seed always lands
on the same page.

Example:
  babelctl generate --seed "shelf 4, volume 12" --full`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateSeed, "seed", "", "Derive the address from this seed instead of passing one")
	generateCmd.Flags().BoolVar(&generateFull, "full", false, "Print the whole page instead of the first 200 symbols")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	var address string
	switch {
	case generateSeed != "":
		address = babel.RandomAddress(generateSeed)
	case len(args) > 0:
		address = strings.ToLower(strings.TrimSpace(args[0]))
	default:
		return fmt.Errorf("an address argument or --seed is required")
	}
	if !babel.ValidAddress(address) {
		return fmt.Errorf("invalid address: expected lowercase hex")
	}

	page := babel.AddressToPage(address)
	shown := page
	if !generateFull {
		shown = page[:200]
	}

	if jsonOutput() {
		return emitJSON(map[string]any{
			"address": address,
			"length":  len(page),
			"page":    shown,
		})
	}

	fmt.Printf("address: %s\n", address)
	fmt.Println(shown)
	return nil
}
