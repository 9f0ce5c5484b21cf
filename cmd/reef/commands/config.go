package commands

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openreef/reef/pkg/resolver"
)

// RuntimeConfig is the yaml-loaded configuration for the reef CLI.
type RuntimeConfig struct {
	// Environment names the deployment environment passed to policy
	// evaluation (development, staging, production).
	Environment string `yaml:"environment"`

	// RootLocator is the component locator of the root instance.
	RootLocator string `yaml:"root_locator"`

	Resolver ResolverConfig `yaml:"resolver"`
	Runner   RunnerConfig   `yaml:"runner"`
	Journal  JournalConfig  `yaml:"journal"`
	Policy   PolicyConfig   `yaml:"policy"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// ResolverConfig configures manifest resolution.
type ResolverConfig struct {
	// ManifestRoot is the directory cue:// locators resolve under.
	ManifestRoot string `yaml:"manifest_root"`

	// Watch enables fsnotify-based cache invalidation on manifest
	// changes.
	Watch bool `yaml:"watch"`

	// SFTP optionally configures an sftp:// resolver for remote
	// manifests.
	SFTP *resolver.SFTPConfig `yaml:"sftp,omitempty"`
}

// RunnerConfig configures component program execution.
type RunnerConfig struct {
	// Enabled controls whether a runner is wired in. Without one the
	// model treats every component as a pure routing node.
	Enabled bool `yaml:"enabled"`

	// BinaryRoot is the directory wasm program binaries load from.
	BinaryRoot string `yaml:"binary_root"`

	// MemoryLimitPages caps per-program memory in 64KB pages.
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`

	// ManifestPath points to an optional binary allowlist manifest.
	ManifestPath string `yaml:"manifest_path,omitempty"`
}

// JournalConfig configures the lifecycle journal.
type JournalConfig struct {
	// Enabled controls whether lifecycle events are persisted.
	Enabled bool `yaml:"enabled"`

	// Path is the sqlite database path.
	Path string `yaml:"path"`
}

// PolicyConfig configures lifecycle policy enforcement.
type PolicyConfig struct {
	// Enabled controls whether the policy gate is attached. Builtin
	// policies always load when enabled.
	Enabled bool `yaml:"enabled"`

	// Paths are directories or files of additional .rego/.json
	// policies.
	Paths []string `yaml:"paths,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
	Path          string `yaml:"path"`
}

// TracingConfig configures the otel tracer.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Insecure bool   `yaml:"insecure"`
}

// DefaultRuntimeConfig returns the configuration used when no config
// file is given.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		Environment: "development",
		RootLocator: "cue://root.cue",
		Resolver: ResolverConfig{
			ManifestRoot: "manifests",
			Watch:        false,
		},
		Runner: RunnerConfig{
			Enabled:          true,
			BinaryRoot:       "bin",
			MemoryLimitPages: 256,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    "reef.db",
		},
		Policy: PolicyConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Exporter: "stdout",
			Insecure: true,
		},
	}
}

// LoadRuntimeConfig reads a yaml config file on top of the defaults.
// An empty path returns the defaults unchanged.
func LoadRuntimeConfig(path string) (*RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *RuntimeConfig) Validate() error {
	if c.RootLocator == "" {
		return fmt.Errorf("root_locator is required")
	}
	if c.Resolver.ManifestRoot == "" {
		return fmt.Errorf("resolver.manifest_root is required")
	}
	if c.Runner.Enabled && c.Runner.BinaryRoot == "" {
		return fmt.Errorf("runner.binary_root is required when the runner is enabled")
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		return fmt.Errorf("metrics.listen_address is required when metrics are enabled")
	}
	if c.Resolver.SFTP != nil {
		if err := c.Resolver.SFTP.Validate(); err != nil {
			return fmt.Errorf("resolver.sftp: %w", err)
		}
	}
	return nil
}
