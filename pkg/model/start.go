package model

import "context"

// startAction ensures the instance's program is executing. Start is
// idempotent: a second call observes the already-running instance.
type startAction struct {
	reason StartReason
}

// NewStartAction creates a start action with the given reason.
func NewStartAction(reason StartReason) Action {
	return &startAction{reason: reason}
}

// Key implements Action. The reason is not part of the key: concurrent
// starts for different reasons still converge on a single execution.
func (a *startAction) Key() ActionKey {
	return ActionKey{Kind: ActionStart}
}

// Handle implements Action.
func (a *startAction) Handle(ctx context.Context, inst *ComponentInstance) error {
	// A component must be resolved before its program can run.
	if err := inst.actions.Register(ctx, inst, NewResolveAction()); err != nil {
		return err
	}

	inst.mu.Lock()
	if inst.started {
		inst.mu.Unlock()
		return nil
	}
	if inst.state != StateResolved {
		st := inst.state
		inst.mu.Unlock()
		return NewConflictError("instance is not resolved", nil).
			WithCode(ErrCodeStart).
			WithMoniker(inst.moniker).
			WithOperation("start:" + string(st))
	}
	d := inst.declaration
	inst.mu.Unlock()

	started := newEvent(EventTypeStarted, inst.moniker)
	started.Reason = a.reason
	if err := inst.model.hooks.Dispatch(ctx, started); err != nil {
		return err
	}

	var handle ProgramHandle
	if d.Program != nil && inst.model.runner != nil {
		h, err := inst.model.runner.Run(ctx, inst.moniker, d)
		if err != nil {
			return NewTransientError("runner failed", err).
				WithCode(ErrCodeStart).
				WithMoniker(inst.moniker).
				WithOperation("start")
		}
		handle = h
	}

	inst.mu.Lock()
	if inst.state != StateResolved {
		// A teardown raced the start; do not resurrect the program.
		inst.mu.Unlock()
		if handle != nil {
			if err := handle.Stop(ctx); err != nil {
				inst.logger().Warn().Err(err).Msg("Program stop failed after raced start")
			}
		}
		return NewConflictError("instance torn down during start", nil).
			WithCode(ErrCodeStart).
			WithMoniker(inst.moniker).
			WithOperation("start")
	}
	inst.started = true
	inst.program = handle
	if inst.startReason == "" {
		inst.startReason = a.reason
	}
	inst.mu.Unlock()

	inst.logger().Debug().
		Str("reason", string(a.reason)).
		Msg("Component started")
	return nil
}
