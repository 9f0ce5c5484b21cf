package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openreef/reef/pkg/decl"
	"github.com/openreef/reef/pkg/model"
)

const appManifest = `
component: {
	program: {
		runner: "wasm"
		binary: "bin/app.wasm"
		args: ["--verbose"]
	}
	children: [
		{name: "db", locator: "cue://db.cue"},
	]
	collections: [
		{name: "jobs"},
	]
	uses: [
		{capability: "svc.log", from: {kind: "parent"}},
	]
	offers: [
		{capability: "svc.db", from: {kind: "child", name: "db"}, to: {kind: "collection", name: "jobs"}},
	]
}
`

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func newCUEResolver(t *testing.T, root string) *CUEResolver {
	t.Helper()
	r, err := NewCUEResolver(root, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCUEResolver: %v", err)
	}
	return r
}

func TestCUEResolveManifest(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "app.cue", appManifest)

	r := newCUEResolver(t, root)
	d, err := r.Resolve(context.Background(), "cue://app.cue")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if d.Program == nil || d.Program.Runner != "wasm" || d.Program.Binary != "bin/app.wasm" {
		t.Errorf("program not decoded: %+v", d.Program)
	}
	if len(d.Children) != 1 || d.Children[0].Name != "db" {
		t.Errorf("children not decoded: %+v", d.Children)
	}
	if len(d.Collections) != 1 || d.Collections[0].Name != "jobs" {
		t.Errorf("collections not decoded: %+v", d.Collections)
	}
	if len(d.Uses) != 1 || d.Uses[0].From.Kind != decl.RefParent {
		t.Errorf("uses not decoded: %+v", d.Uses)
	}
	if len(d.Offers) != 1 || d.Offers[0].From != decl.ChildRef("db") || d.Offers[0].To != decl.CollectionRef("jobs") {
		t.Errorf("offers not decoded: %+v", d.Offers)
	}
}

func TestCUEResolveSubdirectory(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, filepath.Join("sub", "leaf.cue"), "component: {}")

	r := newCUEResolver(t, root)
	if _, err := r.Resolve(context.Background(), "cue://sub/leaf.cue"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
}

func TestCUECachingAndInvalidate(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "app.cue", "component: {}")

	r := newCUEResolver(t, root)
	ctx := context.Background()

	d, err := r.Resolve(ctx, "cue://app.cue")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(d.Children) != 0 {
		t.Fatalf("unexpected children: %+v", d.Children)
	}

	// Rewrite the manifest; a cached resolver keeps serving the old
	// declaration until the entry is invalidated.
	writeManifest(t, root, "app.cue", `component: {children: [{name: "db", locator: "cue://db.cue"}]}`)

	d, err = r.Resolve(ctx, "cue://app.cue")
	if err != nil {
		t.Fatalf("Resolve (cached): %v", err)
	}
	if len(d.Children) != 0 {
		t.Error("cache was bypassed without invalidation")
	}

	r.Invalidate("cue://app.cue")

	d, err = r.Resolve(ctx, "cue://app.cue")
	if err != nil {
		t.Fatalf("Resolve (recompiled): %v", err)
	}
	if len(d.Children) != 1 {
		t.Errorf("recompilation did not pick up new manifest: %+v", d.Children)
	}
}

func TestCUECompileErrors(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "broken.cue", "component: {children: [{name: }]}")
	writeManifest(t, root, "nocomp.cue", "other: {}")
	writeManifest(t, root, "badref.cue", `component: {uses: [{capability: "svc.db", from: {kind: "bogus"}}]}`)
	writeManifest(t, root, "noprog.cue", `component: {program: {runner: "wasm"}}`)

	r := newCUEResolver(t, root)
	ctx := context.Background()

	for _, name := range []string{"broken.cue", "nocomp.cue", "badref.cue", "noprog.cue", "missing.cue"} {
		_, err := r.Resolve(ctx, "cue://"+name)
		if err == nil {
			t.Errorf("%s: expected error", name)
			continue
		}
		if model.ErrorCode(err) != model.ErrCodeResolve {
			t.Errorf("%s: error code = %q, want %q", name, model.ErrorCode(err), model.ErrCodeResolve)
		}
		if model.IsRetriable(err) {
			t.Errorf("%s: compile failure should not be retriable", name)
		}
	}
}

func TestCUEPathEscapeRejected(t *testing.T) {
	root := t.TempDir()
	r := newCUEResolver(t, root)

	for _, locator := range []string{"cue://../outside.cue", "cue://sub/../../outside.cue", "cue://"} {
		if _, err := r.Resolve(context.Background(), locator); err == nil {
			t.Errorf("Resolve(%q): expected error", locator)
		}
	}
}
