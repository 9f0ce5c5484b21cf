package model

import (
	"context"
	"errors"
	"sort"
)

// resolveAction resolves an instance's declaration through the model's
// resolver and advances it from discovered to resolved.
type resolveAction struct{}

// NewResolveAction creates the resolve action.
func NewResolveAction() Action {
	return &resolveAction{}
}

// Key implements Action.
func (a *resolveAction) Key() ActionKey {
	return ActionKey{Kind: ActionResolve}
}

// Handle implements Action. On resolver failure an error-carrying
// Resolved event is dispatched and the instance stays discovered, so
// callers may retry. The first successful resolution announces every
// statically declared child before the instance's own Resolved event.
func (a *resolveAction) Handle(ctx context.Context, inst *ComponentInstance) error {
	// Discovery precedes resolution.
	if inst.State() == StateNew {
		if err := inst.actions.Register(ctx, inst, NewDiscoverAction()); err != nil {
			return err
		}
	}

	switch st := inst.State(); {
	case st == StateResolved:
		return nil
	case st.IsTerminal():
		// A late resolve on a torn-down instance is a no-op.
		return nil
	}

	d, err := inst.model.resolver.Resolve(ctx, inst.locator)
	if err != nil {
		failed := newEvent(EventTypeResolved, inst.moniker)
		failed.Err = err
		if derr := inst.model.hooks.Dispatch(ctx, failed); derr != nil {
			return derr
		}
		rerr := NewTransientError("resolver failed", err).
			WithCode(ErrCodeResolve).
			WithMoniker(inst.moniker).
			WithOperation("resolve")
		var me *ModelError
		if errors.As(err, &me) && me.Class == ErrorClassPermanent {
			rerr.Class = ErrorClassPermanent
		}
		return rerr
	}

	// Build the static children before committing anything. They are
	// unshared until inserted into the children map.
	children := make(map[string]*ComponentInstance, len(d.Children))
	names := make([]string, 0, len(d.Children))
	for _, c := range d.Children {
		cn := NewChildName(c.Name)
		children[cn.String()] = newInstance(inst.model, inst.moniker.Child(cn), c.Locator, inst)
		names = append(names, cn.String())
	}
	sort.Strings(names)

	// Children must be observable by hooks before their existence is
	// otherwise inferable, so their Discovered events precede the
	// instance's Resolved event. A child announced on an earlier
	// attempt whose Resolved event was then vetoed stays announced;
	// the retry skips its Discovered dispatch.
	for _, name := range names {
		child := children[name]
		if !inst.childAnnounced(name) {
			if err := inst.model.hooks.Dispatch(ctx, newEvent(EventTypeDiscovered, child.moniker)); err != nil {
				return err
			}
			inst.markChildAnnounced(name)
		}
		child.state = StateDiscovered
	}

	resolved := newEvent(EventTypeResolved, inst.moniker)
	resolved.Declaration = d
	if err := inst.model.hooks.Dispatch(ctx, resolved); err != nil {
		return err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state != StateDiscovered {
		// A racing teardown won; drop the result.
		return nil
	}
	inst.state = StateResolved
	inst.declaration = d
	for name, child := range children {
		if _, ok := inst.children[name]; !ok {
			inst.children[name] = child
		}
	}
	return nil
}
