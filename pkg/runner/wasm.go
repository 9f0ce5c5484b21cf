package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/openreef/reef/pkg/decl"
	"github.com/openreef/reef/pkg/model"
)

// WASMName is the runner name declarations use to select this runner.
const WASMName = "wasm"

// WASMConfig configures the WASM runner.
type WASMConfig struct {
	// BinaryRoot is the directory program binaries are loaded from.
	BinaryRoot string

	// MemoryLimitPages is the maximum memory per program in 64KB
	// pages. Default is 256 pages (16MB).
	MemoryLimitPages uint32

	// ManifestPath points to an optional binary manifest. When set,
	// only listed binaries run, and listed checksums are enforced.
	ManifestPath string
}

// WASMRunner executes component programs as WASI modules under
// wazero. It implements model.Runner.
type WASMRunner struct {
	config   WASMConfig
	manifest *BinaryManifest
	logger   zerolog.Logger
}

// NewWASMRunner creates a runner serving binaries under the
// configured root.
func NewWASMRunner(config WASMConfig, logger zerolog.Logger) (*WASMRunner, error) {
	info, err := os.Stat(config.BinaryRoot)
	if err != nil {
		return nil, fmt.Errorf("binary root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("binary root %s is not a directory", config.BinaryRoot)
	}

	if config.MemoryLimitPages == 0 {
		config.MemoryLimitPages = 256 // 16MB
	}

	r := &WASMRunner{
		config: config,
		logger: logger.With().Str("component", "wasm-runner").Logger(),
	}

	if config.ManifestPath != "" {
		manifest, err := LoadBinaryManifest(config.ManifestPath)
		if err != nil {
			return nil, fmt.Errorf("binary manifest: %w", err)
		}
		r.manifest = manifest
	}

	return r, nil
}

// Run loads, compiles, and starts the declared program. The returned
// handle stops it.
func (r *WASMRunner) Run(ctx context.Context, moniker model.Moniker, declaration *decl.Declaration) (model.ProgramHandle, error) {
	program := declaration.Program
	if program == nil {
		return nil, model.NewPermanentError("declaration has no program", nil).
			WithCode(model.ErrCodeStart).
			WithMoniker(moniker)
	}

	module, err := r.loadBinary(program.Binary)
	if err != nil {
		return nil, model.NewPermanentError(
			fmt.Sprintf("load program %s", program.Binary), err).
			WithCode(model.ErrCodeStart).
			WithMoniker(moniker)
	}

	logger := r.logger.With().Str("moniker", moniker.String()).Logger()

	// The program must outlive the start request; its lifetime is
	// owned by the returned handle.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(r.config.MemoryLimitPages).
		WithCloseOnContextDone(true)

	runtime := wazero.NewRuntimeWithConfig(runCtx, runtimeConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(runCtx, runtime); err != nil {
		_ = runtime.Close(runCtx)
		cancel()
		return nil, model.NewPermanentError("failed to instantiate WASI", err).
			WithCode(model.ErrCodeStart).
			WithMoniker(moniker)
	}

	compiled, err := runtime.CompileModule(ctx, module)
	if err != nil {
		_ = runtime.Close(runCtx)
		cancel()
		return nil, model.NewPermanentError(
			fmt.Sprintf("failed to compile %s", program.Binary), err).
			WithCode(model.ErrCodeStart).
			WithMoniker(moniker)
	}

	moduleConfig := wazero.NewModuleConfig().
		WithName(moniker.String()).
		WithArgs(append([]string{program.Binary}, program.Args...)...).
		WithStdout(&logWriter{logger: logger, stream: "stdout"}).
		WithStderr(&logWriter{logger: logger, stream: "stderr"})

	for _, entry := range program.Environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			_ = runtime.Close(runCtx)
			cancel()
			return nil, model.NewPermanentError(
				fmt.Sprintf("malformed environ entry %q", entry), nil).
				WithCode(model.ErrCodeStart).
				WithMoniker(moniker)
		}
		moduleConfig = moduleConfig.WithEnv(key, value)
	}

	handle := &wasmHandle{
		cancel:  cancel,
		runtime: runtime,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(handle.done)

		// Instantiation runs the WASI entrypoint and blocks until the
		// program exits or the run context is cancelled.
		_, err := runtime.InstantiateModule(runCtx, compiled, moduleConfig)
		switch {
		case err == nil:
			logger.Debug().Msg("program exited")
		case isCleanExit(err):
			logger.Debug().Msg("program exited")
		default:
			logger.Warn().Err(err).Msg("program terminated")
		}
	}()

	logger.Info().
		Str("binary", program.Binary).
		Msg("program started")

	return handle, nil
}

// loadBinary reads a runner-relative binary, enforcing the manifest
// when one is configured.
func (r *WASMRunner) loadBinary(binary string) ([]byte, error) {
	path := filepath.Clean(filepath.Join(r.config.BinaryRoot, filepath.FromSlash(binary)))
	if !strings.HasPrefix(path, r.config.BinaryRoot+string(filepath.Separator)) {
		return nil, fmt.Errorf("binary %q escapes the binary root", binary)
	}

	var expected string
	if r.manifest != nil {
		entry, ok := r.manifest.Entry(binary)
		if !ok {
			return nil, fmt.Errorf("binary %q is not listed in the manifest", binary)
		}
		expected = entry.Checksum
	}

	module, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read binary: %w", err)
	}

	if expected != "" {
		if err := VerifyChecksum(module, expected); err != nil {
			return nil, err
		}
	}

	return module, nil
}

// wasmHandle stops a running program.
type wasmHandle struct {
	cancel   context.CancelFunc
	runtime  wazero.Runtime
	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// Stop cancels the program and waits for it to wind down, bounded by
// ctx.
func (h *wasmHandle) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() {
		h.cancel()

		select {
		case <-h.done:
		case <-ctx.Done():
			h.stopErr = ctx.Err()
		}

		_ = h.runtime.Close(context.WithoutCancel(ctx))
	})
	return h.stopErr
}

// isCleanExit reports whether the error is a WASI exit with code 0 or
// a close caused by our own cancellation.
func isCleanExit(err error) bool {
	if exitErr, ok := err.(*sys.ExitError); ok {
		return exitErr.ExitCode() == 0 || exitErr.ExitCode() == sys.ExitCodeContextCanceled
	}
	return false
}

// logWriter forwards program output lines to the structured log.
type logWriter struct {
	logger zerolog.Logger
	stream string
}

func (w *logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		w.logger.Info().Str("stream", w.stream).Msg(line)
	}
	return len(p), nil
}
