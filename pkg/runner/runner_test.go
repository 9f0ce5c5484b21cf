package runner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openreef/reef/pkg/decl"
	"github.com/openreef/reef/pkg/model"
)

// emptyModule is a minimal WASI command module: it exports a _start
// function that immediately returns.
var emptyModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00, // type: () -> ()
	0x03, 0x02, 0x01, 0x00, // function section
	0x07, 0x0a, 0x01, 0x06, 0x5f, 0x73, 0x74, 0x61, 0x72, 0x74, 0x00, 0x00, // export "_start"
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b, // code: empty body
}

func mustMoniker(t *testing.T, s string) model.Moniker {
	t.Helper()
	m, err := model.ParseMoniker(s)
	if err != nil {
		t.Fatalf("ParseMoniker(%q): %v", s, err)
	}
	return m
}

func wasmDecl(binary string) *decl.Declaration {
	return &decl.Declaration{
		Program: &decl.Program{
			Runner: WASMName,
			Binary: binary,
		},
	}
}

func setupRunner(t *testing.T, config WASMConfig) (*WASMRunner, string) {
	t.Helper()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "bin"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "bin", "app.wasm"), emptyModule, 0o644); err != nil {
		t.Fatalf("write module: %v", err)
	}

	config.BinaryRoot = root
	r, err := NewWASMRunner(config, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWASMRunner: %v", err)
	}
	return r, root
}

func TestRunAndStop(t *testing.T) {
	r, _ := setupRunner(t, WASMConfig{})

	handle, err := r.Run(context.Background(), mustMoniker(t, "/app"), wasmDecl("bin/app.wasm"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := handle.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// Stop is idempotent.
	if err := handle.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestRunMissingBinary(t *testing.T) {
	r, _ := setupRunner(t, WASMConfig{})

	_, err := r.Run(context.Background(), mustMoniker(t, "/app"), wasmDecl("bin/missing.wasm"))
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if model.ErrorCode(err) != model.ErrCodeStart {
		t.Errorf("error code = %q, want %q", model.ErrorCode(err), model.ErrCodeStart)
	}
}

func TestRunInvalidModule(t *testing.T) {
	r, root := setupRunner(t, WASMConfig{})
	if err := os.WriteFile(filepath.Join(root, "bin", "junk.wasm"), []byte("not wasm"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := r.Run(context.Background(), mustMoniker(t, "/app"), wasmDecl("bin/junk.wasm"))
	if err == nil {
		t.Fatal("expected error for invalid module")
	}
	if model.ErrorCode(err) != model.ErrCodeStart {
		t.Errorf("error code = %q, want %q", model.ErrorCode(err), model.ErrCodeStart)
	}
}

func TestRunRejectsEscapingBinary(t *testing.T) {
	r, _ := setupRunner(t, WASMConfig{})

	_, err := r.Run(context.Background(), mustMoniker(t, "/app"), wasmDecl("../outside.wasm"))
	if err == nil {
		t.Fatal("expected error for escaping binary path")
	}
}

func TestRunRejectsMalformedEnviron(t *testing.T) {
	r, _ := setupRunner(t, WASMConfig{})

	d := wasmDecl("bin/app.wasm")
	d.Program.Environ = []string{"NO_EQUALS_SIGN"}

	if _, err := r.Run(context.Background(), mustMoniker(t, "/app"), d); err == nil {
		t.Fatal("expected error for malformed environ entry")
	}
}

func TestManifestEnforcement(t *testing.T) {
	checksum := sha256.Sum256(emptyModule)

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "bin"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "bin", "app.wasm"), emptyModule, 0o644); err != nil {
		t.Fatalf("write module: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "bin", "rogue.wasm"), emptyModule, 0o644); err != nil {
		t.Fatalf("write module: %v", err)
	}

	manifestYAML := fmt.Sprintf("programs:\n  - path: bin/app.wasm\n    checksum: %s\n", hex.EncodeToString(checksum[:]))
	manifestPath := filepath.Join(root, "manifest.yaml")
	if err := os.WriteFile(manifestPath, []byte(manifestYAML), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	r, err := NewWASMRunner(WASMConfig{BinaryRoot: root, ManifestPath: manifestPath}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWASMRunner: %v", err)
	}

	handle, err := r.Run(context.Background(), mustMoniker(t, "/app"), wasmDecl("bin/app.wasm"))
	if err != nil {
		t.Fatalf("Run (listed binary): %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = handle.Stop(ctx)

	if _, err := r.Run(context.Background(), mustMoniker(t, "/app"), wasmDecl("bin/rogue.wasm")); err == nil {
		t.Error("unlisted binary was allowed")
	}
}

func TestChecksumMismatch(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "app.wasm"), emptyModule, 0o644); err != nil {
		t.Fatalf("write module: %v", err)
	}

	manifestYAML := "programs:\n  - path: app.wasm\n    checksum: " + "deadbeef" + "\n"
	manifestPath := filepath.Join(root, "manifest.yaml")
	if err := os.WriteFile(manifestPath, []byte(manifestYAML), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	r, err := NewWASMRunner(WASMConfig{BinaryRoot: root, ManifestPath: manifestPath}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWASMRunner: %v", err)
	}

	if _, err := r.Run(context.Background(), mustMoniker(t, "/app"), wasmDecl("app.wasm")); err == nil {
		t.Error("checksum mismatch was allowed")
	}
}

func TestLoadBinaryManifestValidation(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(path, []byte("programs:\n  - checksum: abc\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadBinaryManifest(path); err == nil {
		t.Error("expected error for entry without path")
	}

	if err := os.WriteFile(path, []byte("programs: [not a mapping"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadBinaryManifest(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestRegistryDispatch(t *testing.T) {
	reg := NewRegistry()
	r, _ := setupRunner(t, WASMConfig{})
	reg.Register(WASMName, r)

	handle, err := reg.Run(context.Background(), mustMoniker(t, "/app"), wasmDecl("bin/app.wasm"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = handle.Stop(ctx)
}

func TestRegistryUnknownRunner(t *testing.T) {
	reg := NewRegistry()

	d := wasmDecl("bin/app.wasm")
	d.Program.Runner = "native"

	_, err := reg.Run(context.Background(), mustMoniker(t, "/app"), d)
	if err == nil {
		t.Fatal("expected error for unknown runner")
	}
	if model.ErrorCode(err) != model.ErrCodeStart {
		t.Errorf("error code = %q, want %q", model.ErrorCode(err), model.ErrCodeStart)
	}

	if _, err := reg.Run(context.Background(), mustMoniker(t, "/app"), &decl.Declaration{}); err == nil {
		t.Error("expected error for declaration without program")
	}
}
