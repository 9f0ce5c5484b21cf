package commands

import (
	"context"

	"github.com/openreef/reef/pkg/journal"
	"github.com/openreef/reef/pkg/model"
	"github.com/openreef/reef/pkg/policy"
	"github.com/openreef/reef/pkg/resolver"
	"github.com/openreef/reef/pkg/routing"
	"github.com/openreef/reef/pkg/runner"
	"github.com/openreef/reef/pkg/telemetry"
)

// runtime is the assembled reef instance: the component model plus the
// subsystems wired into its hook registry.
type runtime struct {
	cfg    *RuntimeConfig
	tel    *telemetry.Telemetry
	mdl    *model.Model
	router *routing.Router

	cueResolver  *resolver.CUEResolver
	sftpResolver *resolver.SFTPResolver
	journal      *journal.Journal
	policyEngine *policy.Engine
}

// buildRuntime assembles the model and its collaborators from the
// runtime configuration. Hook order matters: the policy gate is
// attached first so vetoed transitions are never journaled.
func buildRuntime(ctx context.Context, cfg *RuntimeConfig, version string) (*runtime, error) {
	tel, err := telemetry.NewTelemetry(telemetryConfig(cfg, version))
	if err != nil {
		return nil, err
	}
	zl := tel.Logger.Zerolog()

	rt := &runtime{cfg: cfg, tel: tel}

	// Resolvers
	registry := resolver.NewRegistry(zl)
	rt.cueResolver, err = resolver.NewCUEResolver(cfg.Resolver.ManifestRoot, zl)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	registry.Register(resolver.CUEScheme, rt.cueResolver)
	starlarkResolver, err := resolver.NewStarlarkResolver(cfg.Resolver.ManifestRoot, zl)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	registry.Register(resolver.StarlarkScheme, starlarkResolver)
	if cfg.Resolver.SFTP != nil {
		rt.sftpResolver, err = resolver.NewSFTPResolver(cfg.Resolver.SFTP, zl)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
		registry.Register(resolver.SFTPScheme, rt.sftpResolver)
	}

	// Runner
	var mdlRunner model.Runner
	if cfg.Runner.Enabled {
		wasmRunner, err := runner.NewWASMRunner(runner.WASMConfig{
			BinaryRoot:       cfg.Runner.BinaryRoot,
			MemoryLimitPages: cfg.Runner.MemoryLimitPages,
			ManifestPath:     cfg.Runner.ManifestPath,
		}, zl)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
		runners := runner.NewRegistry()
		runners.Register(runner.WASMName, wasmRunner)
		mdlRunner = runners
	}

	// Model
	rt.mdl, err = model.NewModel(model.Config{
		RootLocator: cfg.RootLocator,
		Resolver:    registry,
		Runner:      mdlRunner,
		Observer:    telemetry.NewActionObserver(tel),
		Logger:      zl,
	})
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	rt.router = routing.NewRouter(rt.mdl, zl)

	// Policy gate
	if cfg.Policy.Enabled {
		rt.policyEngine, err = policy.NewEngine(zl)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
		if len(cfg.Policy.Paths) > 0 {
			if err := rt.policyEngine.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
				rt.Close(ctx)
				return nil, err
			}
		}
		gate := policy.NewGate(rt.policyEngine, cfg.Environment, zl)
		gate.Attach(rt.mdl.Hooks())
	}

	// Journal
	if cfg.Journal.Enabled {
		rt.journal, err = journal.NewJournal(journal.Config{Path: cfg.Journal.Path}, zl)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
		if err := rt.journal.Init(ctx); err != nil {
			rt.Close(ctx)
			return nil, err
		}
		if err := rt.journal.Migrate(ctx); err != nil {
			rt.Close(ctx)
			return nil, err
		}
		rt.journal.Attach(rt.mdl.Hooks())
	}

	// Metrics hook
	telemetry.NewMetricsHook(tel.Metrics).Attach(rt.mdl.Hooks())

	return rt, nil
}

// telemetryConfig maps the CLI runtime config onto the telemetry
// package's configuration.
func telemetryConfig(cfg *RuntimeConfig, version string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceName = "reef"
	tc.ServiceVersion = version
	tc.Environment = cfg.Environment

	if cfg.Logging.Level != "" {
		tc.Logging.Level = cfg.Logging.Level
	}
	if cfg.Logging.Format != "" {
		tc.Logging.Format = cfg.Logging.Format
	}
	if cfg.Logging.Output != "" {
		tc.Logging.Output = cfg.Logging.Output
	}
	if verbose {
		tc.Logging.Level = "debug"
	}

	tc.Metrics.Enabled = cfg.Metrics.Enabled
	if cfg.Metrics.ListenAddress != "" {
		tc.Metrics.ListenAddress = cfg.Metrics.ListenAddress
	}
	if cfg.Metrics.Path != "" {
		tc.Metrics.Path = cfg.Metrics.Path
	}

	tc.Tracing.Enabled = cfg.Tracing.Enabled
	if cfg.Tracing.Exporter != "" {
		tc.Tracing.Exporter = cfg.Tracing.Exporter
	}
	tc.Tracing.Endpoint = cfg.Tracing.Endpoint
	tc.Tracing.Insecure = cfg.Tracing.Insecure

	return tc
}

// resolveTree resolves the instance and every statically declared
// descendant, depth-first.
func (rt *runtime) resolveTree(ctx context.Context, inst *model.ComponentInstance) error {
	if err := rt.mdl.Resolve(ctx, inst); err != nil {
		return err
	}
	for _, child := range inst.LiveChildren() {
		if err := rt.resolveTree(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the runtime's resources in reverse order of assembly.
func (rt *runtime) Close(ctx context.Context) {
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			rt.tel.Logger.WithError(err).Warn("failed to close journal")
		}
	}
	if rt.sftpResolver != nil {
		if err := rt.sftpResolver.Close(); err != nil {
			rt.tel.Logger.WithError(err).Warn("failed to close sftp resolver")
		}
	}
	if rt.tel != nil {
		if err := rt.tel.Shutdown(ctx); err != nil {
			rt.tel.Logger.WithError(err).Warn("failed to shut down telemetry")
		}
	}
}
