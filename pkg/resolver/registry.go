package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openreef/reef/pkg/decl"
	"github.com/openreef/reef/pkg/model"
)

// Registry multiplexes locator resolution across scheme-keyed
// resolvers. It implements model.Resolver and is safe for concurrent
// use.
type Registry struct {
	mu      sync.RWMutex
	schemes map[string]model.Resolver
	logger  zerolog.Logger
}

// NewRegistry creates an empty resolver registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		schemes: make(map[string]model.Resolver),
		logger:  logger.With().Str("component", "resolver").Logger(),
	}
}

// Register binds a resolver to a locator scheme. A later registration
// for the same scheme replaces the earlier one.
func (r *Registry) Register(scheme string, res model.Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemes[scheme] = res
}

// Schemes returns the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.schemes))
	for s := range r.schemes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Resolve dispatches the locator to the resolver registered for its
// scheme.
func (r *Registry) Resolve(ctx context.Context, locator string) (*decl.Declaration, error) {
	scheme, _, ok := strings.Cut(locator, "://")
	if !ok || scheme == "" {
		return nil, model.NewPermanentError(
			fmt.Sprintf("locator %q has no scheme", locator), nil).
			WithCode(model.ErrCodeResolve)
	}

	r.mu.RLock()
	res := r.schemes[scheme]
	r.mu.RUnlock()

	if res == nil {
		return nil, model.NewPermanentError(
			fmt.Sprintf("no resolver registered for scheme %q", scheme), nil).
			WithCode(model.ErrCodeResolve)
	}

	d, err := res.Resolve(ctx, locator)
	if err != nil {
		r.logger.Debug().
			Err(err).
			Str("locator", locator).
			Msg("resolution failed")
		return nil, err
	}
	return d, nil
}
