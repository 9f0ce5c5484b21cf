package model

import "context"

// discoverAction announces an instance's existence to hooks and
// advances it from new to discovered.
type discoverAction struct{}

// NewDiscoverAction creates the discover action.
func NewDiscoverAction() Action {
	return &discoverAction{}
}

// Key implements Action.
func (a *discoverAction) Key() ActionKey {
	return ActionKey{Kind: ActionDiscover}
}

// Handle implements Action. Discover is idempotent: an instance that
// already advanced past new is a successful no-op, and a racing purge
// wins silently.
func (a *discoverAction) Handle(ctx context.Context, inst *ComponentInstance) error {
	if inst.State() != StateNew {
		return nil
	}

	// Hooks observe the event before the transition commits, so a
	// veto leaves the instance untouched.
	if err := inst.model.hooks.Dispatch(ctx, newEvent(EventTypeDiscovered, inst.moniker)); err != nil {
		return err
	}

	inst.mu.Lock()
	if inst.state == StateNew {
		inst.state = StateDiscovered
	}
	inst.mu.Unlock()
	return nil
}
