package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reef",
		Short: "Reef - Component Runtime",
		Long: `Reef is a component runtime that manages a tree of sandboxed
components through an explicit lifecycle.

Features:
  - Declarative component manifests via CUE
  - Capability routing between components (offer/expose/use)
  - WASM-sandboxed component programs
  - Lifecycle policy enforcement (OPA/rego)
  - SQLite-backed lifecycle journal
  - Prometheus metrics and OpenTelemetry tracing`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newRunCommand(version))
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newTreeCommand(version))
	rootCmd.AddCommand(newRouteCommand(version))
	rootCmd.AddCommand(newDestroyCommand(version))

	return rootCmd
}
