package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/openreef/reef/pkg/decl"
	"github.com/openreef/reef/pkg/model"
)

// CUEScheme is the locator scheme handled by CUEResolver.
const CUEScheme = "cue"

// CUEResolver resolves "cue://<path>" locators by compiling CUE
// manifests from a directory tree rooted at a manifest root. Each
// manifest carries a top-level "component" struct that decodes to a
// declaration.
//
// Compiled declarations are cached per file. A filesystem watcher can
// be started with Watch to drop cache entries when manifests change
// on disk, so the next resolution recompiles.
type CUEResolver struct {
	root      string
	cuectx    *cue.Context
	validator *validator.Validate
	logger    zerolog.Logger

	mu      sync.RWMutex
	cache   map[string]*decl.Declaration
	watcher *fsnotify.Watcher
}

// NewCUEResolver creates a resolver serving manifests under root.
func NewCUEResolver(root string, logger zerolog.Logger) (*CUEResolver, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("manifest root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("manifest root %s is not a directory", root)
	}

	return &CUEResolver{
		root:      root,
		cuectx:    cuecontext.New(),
		validator: validator.New(),
		logger:    logger.With().Str("component", "cue-resolver").Logger(),
		cache:     make(map[string]*decl.Declaration),
	}, nil
}

// Resolve compiles the manifest named by the locator, serving from the
// cache when the file has not changed since the last compilation.
func (r *CUEResolver) Resolve(ctx context.Context, locator string) (*decl.Declaration, error) {
	path, err := r.manifestPath(locator)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	cached := r.cache[path]
	r.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	d, err := r.compileFile(path)
	if err != nil {
		return nil, model.NewPermanentError(
			fmt.Sprintf("compile manifest %s", path), err).
			WithCode(model.ErrCodeResolve)
	}

	r.mu.Lock()
	r.cache[path] = d
	r.mu.Unlock()

	r.logger.Debug().
		Str("locator", locator).
		Str("path", path).
		Msg("manifest compiled")

	return d, nil
}

// Watch starts watching the manifest root for changes and drops cache
// entries for modified files. It returns once the watcher is running;
// watching stops when ctx is cancelled.
func (r *CUEResolver) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	r.mu.Lock()
	r.watcher = watcher
	r.mu.Unlock()

	if err := filepath.WalkDir(r.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	}); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch manifest root: %w", err)
	}

	go r.processEvents(ctx, watcher)

	r.logger.Info().
		Str("root", r.root).
		Msg("watching manifest root")

	return nil
}

// Invalidate drops the cached declaration for the manifest named by
// the locator, forcing recompilation on the next resolution.
func (r *CUEResolver) Invalidate(locator string) {
	path, err := r.manifestPath(locator)
	if err != nil {
		return
	}
	r.mu.Lock()
	delete(r.cache, path)
	r.mu.Unlock()
}

// processEvents drops cache entries for changed manifests and keeps
// the watcher covering newly created directories.
func (r *CUEResolver) processEvents(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						r.logger.Warn().Err(err).Str("path", event.Name).Msg("failed to watch directory")
					}
					continue
				}
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if !strings.HasSuffix(event.Name, ".cue") {
					continue
				}
				r.logger.Debug().
					Str("file", event.Name).
					Str("op", event.Op.String()).
					Msg("manifest changed")

				r.mu.Lock()
				delete(r.cache, filepath.Clean(event.Name))
				r.mu.Unlock()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

// manifestPath maps a locator to the manifest file path under the
// resolver root, rejecting paths that escape it.
func (r *CUEResolver) manifestPath(locator string) (string, error) {
	rel, ok := strings.CutPrefix(locator, CUEScheme+"://")
	if !ok || rel == "" {
		return "", model.NewPermanentError(
			fmt.Sprintf("locator %q is not a cue locator", locator), nil).
			WithCode(model.ErrCodeResolve)
	}

	path := filepath.Clean(filepath.Join(r.root, filepath.FromSlash(rel)))
	if path != r.root && !strings.HasPrefix(path, r.root+string(filepath.Separator)) {
		return "", model.NewPermanentError(
			fmt.Sprintf("locator %q escapes the manifest root", locator), nil).
			WithCode(model.ErrCodeResolve)
	}
	return path, nil
}

// compileFile reads and compiles a single manifest and decodes its
// component declaration.
func (r *CUEResolver) compileFile(path string) (*decl.Declaration, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return decodeManifest(r.cuectx, r.validator, path, content)
}

// decodeManifest compiles manifest content and decodes its top-level
// component struct into a declaration.
func decodeManifest(cuectx *cue.Context, v *validator.Validate, filename string, content []byte) (*decl.Declaration, error) {
	val := cuectx.CompileString(string(content), cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}

	component := val.LookupPath(cue.ParsePath("component"))
	if !component.Exists() {
		return nil, fmt.Errorf("manifest has no top-level component struct")
	}

	var d decl.Declaration
	if err := component.Decode(&d); err != nil {
		return nil, convertCUEErrors(err)
	}

	if d.Program != nil {
		if err := v.Struct(d.Program); err != nil {
			return nil, fmt.Errorf("invalid program: %w", err)
		}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	return &d, nil
}

// convertCUEErrors flattens CUE's multi-error into a single error with
// file positions preserved.
func convertCUEErrors(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	var msgs []string
	for _, e := range errs {
		pos := e.Position()
		if pos.IsValid() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", pos, e.Error()))
		} else {
			msgs = append(msgs, e.Error())
		}
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
