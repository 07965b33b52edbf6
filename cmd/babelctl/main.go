// Package main implements babelctl, the offline driver for the RawBlock
// Babel Engine. Every command recomputes pages from addresses directly, so
// nothing here needs a running server.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rawblock/babel-engine/internal/config"
)

var (
	// Global flags
	configPath string
	outputMode string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "babelctl",
	Short: "babelctl - offline driver for the RawBlock Babel Engine",
	Long: `babelctl runs the engine's generator, enumerator, scorer and search
pipeline directly, without a server.

Pages are never stored. Every page is a pure function of its address,
so all commands work offline and always produce the same output for
the same input.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("BABEL_CONFIG"), "Path to the engine YAML configuration")
	rootCmd.PersistentFlags().StringVarP(&outputMode, "output", "o", "text", "Output format: text or json")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(enumerateCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(calibrateCmd)
}

// loadConfig resolves the effective configuration for one command run:
// compiled-in defaults, then the --config file, then BABEL_* overrides.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func jsonOutput() bool { return outputMode == "json" }

// emitJSON pretty-prints v to stdout.
func emitJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
