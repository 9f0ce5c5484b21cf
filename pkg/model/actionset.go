package model

import (
	"context"
	"sync"
)

// ActionKind categorizes lifecycle actions.
type ActionKind string

const (
	// ActionDiscover announces an instance's existence.
	ActionDiscover ActionKind = "discover"

	// ActionResolve resolves an instance's declaration.
	ActionResolve ActionKind = "resolve"

	// ActionDeleteChild destroys a named child and removes it from the
	// live children map.
	ActionDeleteChild ActionKind = "delete_child"

	// ActionPurgeChild drives a child through terminal teardown.
	ActionPurgeChild ActionKind = "purge_child"

	// ActionDestroy transitions the instance itself to destroyed.
	ActionDestroy ActionKind = "destroy"

	// ActionPurge transitions the instance itself to purged.
	ActionPurge ActionKind = "purge"

	// ActionStart ensures the instance's program is executing.
	ActionStart ActionKind = "start"
)

// ActionKey identifies one categorized operation against one instance.
// Child is set only for the child-scoped kinds (delete_child,
// purge_child).
type ActionKey struct {
	// Kind is the operation kind.
	Kind ActionKind

	// Child is the target child name for child-scoped kinds.
	Child string
}

// Action is a unit of lifecycle work targeting one instance. One type
// implements Action per lifecycle operation.
type Action interface {
	// Key identifies the action for deduplication.
	Key() ActionKey

	// Handle performs the action against the instance. Handle runs at
	// most once per in-flight key; it must not be invoked while the
	// instance's state lock is held.
	Handle(ctx context.Context, inst *ComponentInstance) error
}

// ActionObserver instruments action executions. BeginAction returns a
// derived context that flows through the action's Handle; EndAction
// completes the observation with the action's result. Implementations
// must be safe for concurrent use.
type ActionObserver interface {
	BeginAction(ctx context.Context, moniker Moniker, key ActionKey) context.Context
	EndAction(ctx context.Context, key ActionKey, err error)
}

// actionEntry is one in-flight action execution. The error is written
// before done is closed and never mutated afterwards.
type actionEntry struct {
	done chan struct{}
	err  error
}

// ActionSet guarantees at-most-one concurrent execution of a given
// ActionKey against its instance, fanning the single result out to
// every caller that registered while the action was in flight.
type ActionSet struct {
	mu       sync.Mutex
	inflight map[ActionKey]*actionEntry
}

// NewActionSet creates an empty action set.
func NewActionSet() *ActionSet {
	return &ActionSet{
		inflight: make(map[ActionKey]*actionEntry),
	}
}

// Register executes the action against the instance, or joins an
// identical in-flight execution. All joined callers observe the same
// result. The in-flight entry is removed before any waiter observes
// the result, so a subsequent identical request starts fresh.
//
// The action itself runs to completion on a detached context: a caller
// that stops awaiting (ctx cancelled) does not cancel the action.
func (s *ActionSet) Register(ctx context.Context, inst *ComponentInstance, action Action) error {
	key := action.Key()

	s.mu.Lock()
	if entry, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		return awaitEntry(ctx, entry)
	}
	entry := &actionEntry{done: make(chan struct{})}
	s.inflight[key] = entry
	s.mu.Unlock()

	go s.execute(context.WithoutCancel(ctx), inst, action, key, entry)

	return awaitEntry(ctx, entry)
}

// execute runs the action, clears the in-flight entry, then releases
// the waiters.
func (s *ActionSet) execute(ctx context.Context, inst *ComponentInstance, action Action, key ActionKey, entry *actionEntry) {
	obs := inst.model.observer
	if obs != nil {
		ctx = obs.BeginAction(ctx, inst.Moniker(), key)
	}

	err := action.Handle(ctx, inst)
	if obs != nil {
		obs.EndAction(ctx, key, err)
	}
	if err != nil {
		inst.logger().Debug().
			Err(err).
			Str("action", string(key.Kind)).
			Str("child", key.Child).
			Msg("Action failed")
	}

	// Clear the entry before releasing waiters so a retry after
	// failure starts a fresh execution.
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()

	entry.err = err
	close(entry.done)
}

// awaitEntry waits for the entry's result or the caller's context.
func awaitEntry(ctx context.Context, entry *actionEntry) error {
	select {
	case <-entry.done:
		return entry.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inflight returns the number of in-flight actions. Intended for
// introspection and tests.
func (s *ActionSet) Inflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}
