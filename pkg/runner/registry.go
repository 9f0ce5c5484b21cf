package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/openreef/reef/pkg/decl"
	"github.com/openreef/reef/pkg/model"
	"github.com/openreef/reef/pkg/telemetry"
)

// Registry dispatches program execution to the runner named in the
// declaration. It implements model.Runner.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]model.Runner
}

// NewRegistry creates an empty runner registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]model.Runner)}
}

// Register binds a runner implementation to a runner name.
func (r *Registry) Register(name string, runner model.Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runners[name] = runner
}

// Run dispatches to the runner the program names.
func (r *Registry) Run(ctx context.Context, moniker model.Moniker, declaration *decl.Declaration) (model.ProgramHandle, error) {
	if declaration == nil || declaration.Program == nil {
		return nil, model.NewPermanentError("declaration has no program", nil).
			WithCode(model.ErrCodeStart).
			WithMoniker(moniker)
	}

	r.mu.RLock()
	runner := r.runners[declaration.Program.Runner]
	r.mu.RUnlock()

	if runner == nil {
		return nil, model.NewPermanentError(
			fmt.Sprintf("no runner registered for %q", declaration.Program.Runner), nil).
			WithCode(model.ErrCodeStart).
			WithMoniker(moniker)
	}

	name := declaration.Program.Runner
	var handle model.ProgramHandle
	err := telemetry.RecordRunnerOperation(ctx, name, "run", func() error {
		var runErr error
		handle, runErr = runner.Run(ctx, moniker, declaration)
		return runErr
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}
