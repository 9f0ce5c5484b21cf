package commands

import (
	"github.com/spf13/cobra"

	"github.com/openreef/reef/pkg/model"
	"github.com/openreef/reef/pkg/telemetry"
)

func newRunCommand(version string) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the component tree",
		Long: `Build the component model from the configured root locator,
resolve the tree, start the root component, and serve until
interrupted.

The run command:
  - Resolves the root manifest and every statically declared child
  - Starts the root component's program (boot reason)
  - Serves prometheus metrics
  - Journals lifecycle events and enforces lifecycle policies`,
		Example: `  # Run with the default config
  reef run

  # Run with an explicit config file
  reef run --config reef.yaml

  # Reload manifests on change
  reef run --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := LoadRuntimeConfig(configPath)
			if err != nil {
				return err
			}
			if watch {
				cfg.Resolver.Watch = true
			}

			rt, err := buildRuntime(ctx, cfg, version)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)
			ctx = rt.tel.WithContext(ctx)
			logger := rt.tel.Logger.NewComponentLogger("cli")

			if cfg.Resolver.Watch {
				if err := rt.cueResolver.Watch(ctx); err != nil {
					return err
				}
				logger.WithField("root", cfg.Resolver.ManifestRoot).Info("watching manifests")
			}

			op := telemetry.StartOperation(ctx, "resolve_tree")
			err = rt.resolveTree(op.Ctx, rt.mdl.Root())
			op.End(err)
			if err != nil {
				return err
			}
			logger.WithField("instances", len(rt.mdl.Topology())).Info("component tree resolved")

			if err := rt.tel.StartMetricsServer(); err != nil {
				return err
			}

			if _, err := rt.mdl.Start(ctx, model.RootMoniker(), model.StartReasonBoot); err != nil {
				return err
			}
			logger.WithField("locator", cfg.RootLocator).Info("root component started")

			<-ctx.Done()
			logger.Info("shutting down")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "reload manifests on change")

	return cmd
}
