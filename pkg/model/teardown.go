package model

import (
	"context"
	"sort"
)

// destroyAction transitions the instance itself to destroyed. It does
// not recurse into children: the caller (the parent's delete_child or
// purge_child) destroys children first.
type destroyAction struct{}

// NewDestroyAction creates the destroy action.
func NewDestroyAction() Action {
	return &destroyAction{}
}

// Key implements Action.
func (a *destroyAction) Key() ActionKey {
	return ActionKey{Kind: ActionDestroy}
}

// Handle implements Action. Destroying a destroyed or purged instance
// is a no-op. A live child at this point is a model bug.
func (a *destroyAction) Handle(ctx context.Context, inst *ComponentInstance) error {
	inst.mu.Lock()
	if inst.state.IsTerminal() {
		inst.mu.Unlock()
		return nil
	}
	if len(inst.children) > 0 {
		inst.mu.Unlock()
		return NewPermanentError("destroy with live children", nil).
			WithCode(ErrCodeInvariant).
			WithMoniker(inst.moniker).
			WithOperation("destroy")
	}
	handle := inst.program
	inst.program = nil
	inst.started = false
	inst.state = StateDestroyed
	inst.mu.Unlock()

	if handle != nil {
		if err := handle.Stop(ctx); err != nil {
			inst.logger().Warn().Err(err).Msg("Program stop failed during destroy")
		}
	}
	return nil
}

// purgeAction transitions the instance itself to purged, the terminal
// unrecoverable state.
type purgeAction struct{}

// NewPurgeAction creates the purge action.
func NewPurgeAction() Action {
	return &purgeAction{}
}

// Key implements Action.
func (a *purgeAction) Key() ActionKey {
	return ActionKey{Kind: ActionPurge}
}

// Handle implements Action. Purging a purged instance is a no-op.
// Remaining children, live or retained, are a model bug: the caller
// purges children first.
func (a *purgeAction) Handle(ctx context.Context, inst *ComponentInstance) error {
	inst.mu.Lock()
	if inst.state == StatePurged {
		inst.mu.Unlock()
		return nil
	}
	if len(inst.children) > 0 || len(inst.destroyedChildren) > 0 {
		inst.mu.Unlock()
		return NewPermanentError("purge with remaining children", nil).
			WithCode(ErrCodeInvariant).
			WithMoniker(inst.moniker).
			WithOperation("purge")
	}
	handle := inst.program
	inst.program = nil
	inst.started = false
	inst.state = StatePurged
	inst.mu.Unlock()

	if handle != nil {
		if err := handle.Stop(ctx); err != nil {
			inst.logger().Warn().Err(err).Msg("Program stop failed during purge")
		}
	}
	return nil
}

// deleteChildAction destroys a named child, children first, then
// removes it from the parent's live children map and dispatches its
// Destroyed event.
type deleteChildAction struct {
	child string
}

// NewDeleteChildAction creates a delete_child action for the named
// child.
func NewDeleteChildAction(child string) Action {
	return &deleteChildAction{child: child}
}

// Key implements Action.
func (a *deleteChildAction) Key() ActionKey {
	return ActionKey{Kind: ActionDeleteChild, Child: a.child}
}

// Handle implements Action. Deleting an absent child returns success
// and dispatches no events, which makes racing delete requests
// harmless.
func (a *deleteChildAction) Handle(ctx context.Context, parent *ComponentInstance) error {
	child, ok := parent.liveChild(a.child)
	if !ok {
		return nil
	}

	// Children before parents: each recursive registration targets a
	// different instance, so this recursion is well-founded.
	for _, name := range sortedChildNames(child.LiveChildren()) {
		if err := child.actions.Register(ctx, child, NewDeleteChildAction(name)); err != nil {
			return err
		}
	}

	if err := child.actions.Register(ctx, child, NewDestroyAction()); err != nil {
		return err
	}

	// The child leaves the live map atomically with its destroyed
	// transition; it is retained until purged.
	parent.retireChild(a.child, child)

	return parent.model.hooks.Dispatch(ctx, newEvent(EventTypeDestroyed, child.moniker))
}

// purgeChildAction drives a child through terminal teardown: the whole
// subtree is destroyed bottom-up first, then purged bottom-up.
type purgeChildAction struct {
	child string
}

// NewPurgeChildAction creates a purge_child action for the named
// child.
func NewPurgeChildAction(child string) Action {
	return &purgeChildAction{child: child}
}

// Key implements Action.
func (a *purgeChildAction) Key() ActionKey {
	return ActionKey{Kind: ActionPurgeChild, Child: a.child}
}

// Handle implements Action. Purging an absent child returns success
// and dispatches no events.
func (a *purgeChildAction) Handle(ctx context.Context, parent *ComponentInstance) error {
	// Destroy pass over the whole subtree first, so every Destroyed
	// event precedes any Purged event.
	if _, ok := parent.liveChild(a.child); ok {
		if err := parent.actions.Register(ctx, parent, NewDeleteChildAction(a.child)); err != nil {
			return err
		}
	}

	child, ok := parent.destroyedChild(a.child)
	if !ok {
		return nil
	}

	// Purge pass, bottom-up.
	for _, name := range child.destroyedChildNames() {
		if err := child.actions.Register(ctx, child, NewPurgeChildAction(name)); err != nil {
			return err
		}
	}

	if err := child.actions.Register(ctx, child, NewPurgeAction()); err != nil {
		return err
	}

	parent.dropDestroyedChild(child)

	return parent.model.hooks.Dispatch(ctx, newEvent(EventTypePurged, child.moniker))
}

// sortedChildNames returns the map's keys in name order, keeping
// teardown deterministic for a given tree.
func sortedChildNames(children map[string]*ComponentInstance) []string {
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
