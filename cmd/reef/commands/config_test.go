package commands

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRuntimeConfigDefaults(t *testing.T) {
	cfg, err := LoadRuntimeConfig("")
	if err != nil {
		t.Fatalf("LoadRuntimeConfig() error = %v", err)
	}
	if cfg.RootLocator != "cue://root.cue" {
		t.Errorf("RootLocator = %q", cfg.RootLocator)
	}
	if !cfg.Runner.Enabled || cfg.Runner.MemoryLimitPages != 256 {
		t.Errorf("unexpected runner defaults: %+v", cfg.Runner)
	}
	if !cfg.Policy.Enabled {
		t.Error("policy should default to enabled")
	}
}

func TestLoadRuntimeConfigOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reef.yaml")
	content := `
environment: production
root_locator: cue://apps/root.cue
resolver:
  manifest_root: /srv/manifests
  watch: true
journal:
  enabled: true
  path: /var/lib/reef/reef.db
metrics:
  enabled: true
  listen_address: ":9108"
  path: /metrics
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadRuntimeConfig(path)
	if err != nil {
		t.Fatalf("LoadRuntimeConfig() error = %v", err)
	}
	if cfg.Environment != "production" {
		t.Errorf("Environment = %q", cfg.Environment)
	}
	if cfg.RootLocator != "cue://apps/root.cue" {
		t.Errorf("RootLocator = %q", cfg.RootLocator)
	}
	if cfg.Resolver.ManifestRoot != "/srv/manifests" || !cfg.Resolver.Watch {
		t.Errorf("unexpected resolver config: %+v", cfg.Resolver)
	}
	if cfg.Metrics.ListenAddress != ":9108" {
		t.Errorf("ListenAddress = %q", cfg.Metrics.ListenAddress)
	}
	// Untouched sections keep their defaults.
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoadRuntimeConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "root_locator: [unclosed"},
		{"empty root locator", `root_locator: ""`},
		{"runner without binary root", "runner:\n  enabled: true\n  binary_root: \"\""},
		{"journal without path", "journal:\n  enabled: true\n  path: \"\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "reef.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadRuntimeConfig(path); err == nil {
				t.Error("LoadRuntimeConfig() should have failed")
			}
		})
	}
}

func TestLoadRuntimeConfigMissingFile(t *testing.T) {
	if _, err := LoadRuntimeConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadRuntimeConfig() of a missing file should fail")
	}
}

func TestTelemetryConfigMapping(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.Environment = "production"
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "json"
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.Endpoint = "collector:4317"

	tc := telemetryConfig(cfg, "1.2.3")
	if tc.ServiceName != "reef" || tc.ServiceVersion != "1.2.3" {
		t.Errorf("service identity = %s/%s", tc.ServiceName, tc.ServiceVersion)
	}
	if tc.Environment != "production" {
		t.Errorf("Environment = %q", tc.Environment)
	}
	if tc.Logging.Level != "warn" || tc.Logging.Format != "json" {
		t.Errorf("unexpected logging config: %+v", tc.Logging)
	}
	if !tc.Tracing.Enabled || tc.Tracing.Exporter != "otlp" || tc.Tracing.Endpoint != "collector:4317" {
		t.Errorf("unexpected tracing config: %+v", tc.Tracing)
	}
	if err := tc.Validate(); err != nil {
		t.Errorf("mapped config should validate: %v", err)
	}
}
