package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openreef/reef/pkg/model"
)

func newRouteCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route <moniker> <capability>",
		Short: "Resolve a capability route",
		Long: `Walk the offer/expose graph from the component at the given
moniker and print the source its use of the capability binds to.

The walk follows the component's use declaration up through parent
offers and down through child exposes without starting any program.`,
		Example: `  # Where does /app's use of svc.db come from?
  reef route /app svc.db

  # Routes from the root resolve against its own declaration
  reef route / svc.log`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			moniker, err := model.ParseMoniker(args[0])
			if err != nil {
				return err
			}
			capability := args[1]

			cfg, err := LoadRuntimeConfig(configPath)
			if err != nil {
				return err
			}
			// Route resolution walks declarations only.
			cfg.Runner.Enabled = false
			cfg.Journal.Enabled = false
			cfg.Metrics.Enabled = false

			rt, err := buildRuntime(ctx, cfg, version)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)
			ctx = rt.tel.WithContext(ctx)

			route, err := rt.router.Route(ctx, moniker, capability)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"requester":  moniker.String(),
					"capability": route.Capability(),
					"source":     route.Source().String(),
					"framework":  route.IsFramework(),
				})
			}

			if route.IsFramework() {
				fmt.Printf("%s %s <- framework\n", moniker, route.Capability())
				return nil
			}
			fmt.Printf("%s %s <- %s\n", moniker, route.Capability(), route.Source())
			return nil
		},
	}

	return cmd
}
