package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openreef/reef/pkg/decl"
	"github.com/openreef/reef/pkg/model"
)

// StarlarkScheme is the locator scheme handled by StarlarkResolver.
const StarlarkScheme = "starlark"

const defaultStarlarkTimeout = 30 * time.Second

// StarlarkResolver resolves "starlark://<path>" locators by executing
// Starlark manifests from a directory tree rooted at a manifest root.
// Each manifest assigns a top-level "component" dict whose converted
// value decodes to a declaration. Scripts run in a hermetic thread
// with print suppressed and no filesystem or network access, so the
// same manifest always produces the same declaration.
type StarlarkResolver struct {
	root      string
	timeout   time.Duration
	validator *validator.Validate
	logger    zerolog.Logger

	mu    sync.RWMutex
	cache map[string]*decl.Declaration
}

// NewStarlarkResolver creates a resolver serving manifests under root.
func NewStarlarkResolver(root string, logger zerolog.Logger) (*StarlarkResolver, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("manifest root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("manifest root %s is not a directory", root)
	}

	return &StarlarkResolver{
		root:      root,
		timeout:   defaultStarlarkTimeout,
		validator: validator.New(),
		logger:    logger.With().Str("component", "starlark-resolver").Logger(),
		cache:     make(map[string]*decl.Declaration),
	}, nil
}

// Resolve executes the manifest named by the locator, serving from the
// cache when the file was already evaluated.
func (r *StarlarkResolver) Resolve(ctx context.Context, locator string) (*decl.Declaration, error) {
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

	d, err := r.evaluateFile(ctx, path)
	if err != nil {
		return nil, model.NewPermanentError(
			fmt.Sprintf("evaluate manifest %s", path), err).
			WithCode(model.ErrCodeResolve)
	}

	r.mu.Lock()
	r.cache[path] = d
	r.mu.Unlock()

	r.logger.Debug().
		Str("locator", locator).
		Str("path", path).
		Msg("manifest evaluated")

	return d, nil
}

// Invalidate drops the cached declaration for the manifest named by
// the locator, forcing re-evaluation on the next resolution.
func (r *StarlarkResolver) Invalidate(locator string) {
	path, err := r.manifestPath(locator)
	if err != nil {
		return
	}
	r.mu.Lock()
	delete(r.cache, path)
	r.mu.Unlock()
}

// manifestPath maps a locator to the manifest file path under the
// resolver root, rejecting paths that escape it.
func (r *StarlarkResolver) manifestPath(locator string) (string, error) {
	rel, ok := strings.CutPrefix(locator, StarlarkScheme+"://")
	if !ok || rel == "" {
		return "", model.NewPermanentError(
			fmt.Sprintf("locator %q is not a starlark locator", locator), nil).
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

// evaluateFile reads and executes a single manifest and decodes its
// component declaration. Execution runs in its own goroutine so a
// looping script cannot wedge resolution past the timeout.
func (r *StarlarkResolver) evaluateFile(ctx context.Context, path string) (*decl.Declaration, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	evalCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		d   *decl.Declaration
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		d, err := decodeStarlarkManifest(r.validator, path, content)
		resultCh <- result{d: d, err: err}
	}()

	select {
	case <-evalCtx.Done():
		return nil, fmt.Errorf("starlark execution timeout after %v", r.timeout)
	case res := <-resultCh:
		return res.d, res.err
	}
}

// decodeStarlarkManifest executes manifest content and decodes its
// top-level component dict into a declaration.
func decodeStarlarkManifest(v *validator.Validate, filename string, content []byte) (*decl.Declaration, error) {
	thread := &starlark.Thread{
		Name:  "reef",
		Print: func(_ *starlark.Thread, _ string) {},
	}

	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
	}

	globals, err := starlark.ExecFile(thread, filename, content, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	component, ok := globals["component"]
	if !ok {
		return nil, fmt.Errorf("manifest has no top-level component dict")
	}

	goVal, err := fromStarlarkValue(component)
	if err != nil {
		return nil, fmt.Errorf("failed to convert component: %w", err)
	}

	encoded, err := json.Marshal(goVal)
	if err != nil {
		return nil, fmt.Errorf("failed to encode component: %w", err)
	}

	var d decl.Declaration
	if err := json.Unmarshal(encoded, &d); err != nil {
		return nil, fmt.Errorf("failed to decode component: %w", err)
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

// fromStarlarkValue converts a Starlark value to a plain Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
