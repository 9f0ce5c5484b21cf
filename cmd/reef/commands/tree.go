package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openreef/reef/pkg/model"
)

func newTreeCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the resolved component topology",
		Long: `Resolve the component tree from the configured root locator and
print a topology snapshot: one line per instance with its moniker,
locator, and lifecycle state.`,
		Example: `  # Print the topology as a table
  reef tree

  # Print the topology as JSON
  reef tree --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := LoadRuntimeConfig(configPath)
			if err != nil {
				return err
			}
			// A topology snapshot needs no program execution, journal,
			// or metrics endpoint.
			cfg.Runner.Enabled = false
			cfg.Journal.Enabled = false
			cfg.Metrics.Enabled = false

			rt, err := buildRuntime(ctx, cfg, version)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)
			ctx = rt.tel.WithContext(ctx)

			if err := rt.resolveTree(ctx, rt.mdl.Root()); err != nil {
				return err
			}
			return printTopology(rt.mdl.Topology())
		},
	}

	return cmd
}

func printTopology(infos []model.InstanceInfo) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MONIKER\tSTATE\tSTARTED\tLOCATOR")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\n",
			indentMoniker(info.Moniker), info.State, info.Started, info.Locator)
	}
	return w.Flush()
}

// indentMoniker indents an absolute moniker by its depth for a tree
// reading.
func indentMoniker(moniker string) string {
	if moniker == "/" {
		return "/"
	}
	depth := strings.Count(moniker, "/") - 1
	return strings.Repeat("  ", depth) + moniker
}
