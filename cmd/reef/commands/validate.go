package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openreef/reef/pkg/model"
	"github.com/openreef/reef/pkg/policy"
	"github.com/openreef/reef/pkg/resolver"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [locator]",
		Short: "Validate component manifests and policies",
		Long: `Validate the component manifest tree and the configured
policies without building a live model.

This command checks:
  - Manifest syntax (CUE and Starlark)
  - Declaration schema conformance
  - Child locators, recursively
  - Policy compilation (rego)`,
		Example: `  # Validate the configured root locator
  reef validate

  # Validate a specific manifest
  reef validate cue://apps/web.cue`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := LoadRuntimeConfig(configPath)
			if err != nil {
				return err
			}
			locator := cfg.RootLocator
			if len(args) > 0 {
				locator = args[0]
			}

			registry := resolver.NewRegistry(log.Logger)
			cueResolver, err := resolver.NewCUEResolver(cfg.Resolver.ManifestRoot, log.Logger)
			if err != nil {
				return err
			}
			registry.Register(resolver.CUEScheme, cueResolver)
			starlarkResolver, err := resolver.NewStarlarkResolver(cfg.Resolver.ManifestRoot, log.Logger)
			if err != nil {
				return err
			}
			registry.Register(resolver.StarlarkScheme, starlarkResolver)

			checked := 0
			var problems []string
			validateLocator(ctx, registry, locator, map[string]bool{}, &checked, &problems)

			if cfg.Policy.Enabled {
				engine, err := policy.NewEngine(log.Logger)
				if err != nil {
					return err
				}
				if len(cfg.Policy.Paths) > 0 {
					if err := engine.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
						problems = append(problems, fmt.Sprintf("policy: %v", err))
					}
				}
				fmt.Printf("Policies loaded: %d\n", len(engine.ListPolicies()))
			}

			fmt.Printf("Manifests checked: %d\n", checked)
			if len(problems) > 0 {
				for _, p := range problems {
					fmt.Printf("  FAIL %s\n", p)
				}
				return fmt.Errorf("validation failed with %d problem(s)", len(problems))
			}
			fmt.Println("Validation passed")
			return nil
		},
	}

	return cmd
}

// validateLocator resolves a manifest and recurses into its declared
// children, recording every failure instead of stopping at the first.
func validateLocator(ctx context.Context, res model.Resolver, locator string, seen map[string]bool, checked *int, problems *[]string) {
	if seen[locator] {
		return
	}
	seen[locator] = true
	*checked++

	d, err := res.Resolve(ctx, locator)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("%s: %v", locator, err))
		return
	}
	for _, child := range d.Children {
		validateLocator(ctx, res, child.Locator, seen, checked, problems)
	}
}
