package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

const loaderRego = `# Refuses starts of quarantined components
# during incident response
package custom.policies.quarantine

import rego.v1

deny contains violation if {
	input.event.type == "started"
	input.event.moniker == "/quarantine"
	violation := "quarantined component cannot start"
}`

func TestLoadFromRegoFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quarantine.rego")
	if err := os.WriteFile(path, []byte(loaderRego), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("loaded %d policies, want 1", len(policies))
	}

	p := policies[0]
	if p.Name != "quarantine" {
		t.Errorf("name = %q", p.Name)
	}
	if p.Description != "Refuses starts of quarantined components during incident response" {
		t.Errorf("description = %q", p.Description)
	}
	if p.Severity != SeverityWarning {
		t.Errorf("default severity = %q", p.Severity)
	}
	if !p.Enabled {
		t.Error("loaded policy should default to enabled")
	}
}

func TestLoadFromJSONFile(t *testing.T) {
	dir := t.TempDir()

	policy := Policy{
		Name:     "json-policy",
		Rego:     "package reef.policies.jsonpolicy\n\nimport rego.v1\n\ndeny := []",
		Severity: SeverityError,
		Enabled:  true,
	}
	data, err := json.Marshal(policy)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(dir, "policy.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("loaded %d policies, want 1", len(policies))
	}
	if policies[0].Name != "json-policy" || policies[0].Severity != SeverityError {
		t.Errorf("policy = %+v", policies[0])
	}
	if policies[0].CreatedAt.IsZero() {
		t.Error("created_at default not applied")
	}
}

func TestLoadFromDirectorySkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.rego"), []byte(loaderRego), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readme.md"), []byte("# not a policy"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b.rego"), []byte(loaderRego), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}
	if len(policies) != 2 {
		t.Errorf("loaded %d policies, want 2", len(policies))
	}
}

func TestLoadMissingPath(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	if _, err := loader.LoadFromPaths(context.Background(), []string{"/no/such/path"}); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestLoaderCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cached.rego")
	if err := os.WriteFile(path, []byte(loaderRego), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	loader := NewLoader(zerolog.Nop())
	ctx := context.Background()

	if _, err := loader.LoadFromPaths(ctx, []string{path}); err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}

	// Rewriting the file does not bypass the cache; clearing it does.
	if err := os.WriteFile(path, []byte("package changed\n\nimport rego.v1\n\ndeny := []"), 0o644); err != nil {
		t.Fatalf("rewrite policy: %v", err)
	}

	policies, err := loader.LoadFromPaths(ctx, []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths (cached): %v", err)
	}
	if policies[0].Description == "" {
		t.Error("cache was bypassed without clearing")
	}

	loader.ClearCache()

	policies, err = loader.LoadFromPaths(ctx, []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths (reloaded): %v", err)
	}
	if policies[0].Rego == loaderRego {
		t.Error("reload did not pick up new content")
	}
}
