package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openreef/reef/pkg/model"
)

func newDestroyCommand(version string) *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "destroy <moniker>",
		Short: "Tear down a component subtree",
		Long: `Resolve the tree and tear down the component at the given
moniker, children first. The component stops executing and its
subtree leaves the live topology.

With --purge the subtree is additionally purged: the teardown becomes
terminal and the instances are permanently removed.`,
		Example: `  # Destroy a static child
  reef destroy /db

  # Purge a collection member
  reef destroy --purge /jobs:worker1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			moniker, err := model.ParseMoniker(args[0])
			if err != nil {
				return err
			}
			if moniker.IsRoot() {
				return fmt.Errorf("cannot destroy the root component")
			}

			cfg, err := LoadRuntimeConfig(configPath)
			if err != nil {
				return err
			}

			rt, err := buildRuntime(ctx, cfg, version)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)
			ctx = rt.tel.WithContext(ctx)

			parent, err := rt.mdl.LookupInstance(ctx, moniker.Parent())
			if err != nil {
				return err
			}

			if purge {
				err = rt.mdl.PurgeChild(ctx, parent, moniker.Leaf())
			} else {
				err = rt.mdl.DeleteChild(ctx, parent, moniker.Leaf())
			}
			if err != nil {
				return err
			}

			fmt.Printf("Destroyed %s (purge=%v)\n", moniker, purge)
			return nil
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "purge the subtree after destroying it")

	return cmd
}
