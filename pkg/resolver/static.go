package resolver

import (
	"context"
	"fmt"
	"sync"

	"github.com/openreef/reef/pkg/decl"
	"github.com/openreef/reef/pkg/model"
)

// StaticResolver serves declarations from an in-memory table keyed by
// full locator. It is used to bootstrap built-in components and in
// tests.
type StaticResolver struct {
	mu    sync.RWMutex
	decls map[string]*decl.Declaration
}

// NewStaticResolver creates an empty static resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{decls: make(map[string]*decl.Declaration)}
}

// Add registers a declaration under a locator, replacing any previous
// entry.
func (r *StaticResolver) Add(locator string, d *decl.Declaration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decls[locator] = d
}

// Resolve returns the declaration registered for the locator.
func (r *StaticResolver) Resolve(ctx context.Context, locator string) (*decl.Declaration, error) {
	r.mu.RLock()
	d := r.decls[locator]
	r.mu.RUnlock()

	if d == nil {
		return nil, model.NewPermanentError(
			fmt.Sprintf("unknown locator %q", locator), nil).
			WithCode(model.ErrCodeResolve)
	}
	return d, nil
}
