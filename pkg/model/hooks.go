package model

import (
	"context"
	"sync"
	"weak"
)

// Hook receives lifecycle events. Returning a non-nil error from
// HandleEvent aborts the in-flight transition that produced the event;
// this is the extension point policy enforcers use to veto lifecycle
// operations.
type Hook interface {
	HandleEvent(ctx context.Context, event Event) error
}

// HookRef resolves to a hook at dispatch time, or to nil once the
// hook's owner is gone. A nil resolution unregisters the entry.
type HookRef func() Hook

// StrongRef returns a hook reference that keeps the hook alive for the
// lifetime of the registration.
func StrongRef(h Hook) HookRef {
	return func() Hook { return h }
}

// WeakRef returns a hook reference that does not keep the target
// alive: once the owner is collected, dispatch treats the entry as
// gone and removes it.
func WeakRef[T any, PT interface {
	*T
	Hook
}](target PT) HookRef {
	wp := weak.Make((*T)(target))
	return func() Hook {
		if p := wp.Value(); p != nil {
			return PT(p)
		}
		return nil
	}
}

// hookEntry is one registration: the event types it is interested in
// and the reference used to reach the hook.
type hookEntry struct {
	types map[EventType]struct{}
	ref   HookRef
}

// Hooks delivers each event to every interested observer in
// registration order, awaiting each observer before continuing. A
// dispatch never runs while any instance's state lock is held.
type Hooks struct {
	mu      sync.RWMutex
	entries []*hookEntry
	vetoFn  func(Event)
}

// NewHooks creates an empty hook registry.
func NewHooks() *Hooks {
	return &Hooks{}
}

// Register subscribes the referenced hook to the given event types.
// Registration order is dispatch order.
func (h *Hooks) Register(types []EventType, ref HookRef) {
	interests := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		interests[t] = struct{}{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, &hookEntry{types: interests, ref: ref})
}

// RegisterHook subscribes a strongly referenced hook to the given
// event types.
func (h *Hooks) RegisterHook(types []EventType, hook Hook) {
	h.Register(types, StrongRef(hook))
}

// ObserveVetoes registers fn to be called with the event whenever an
// observer aborts a transition. One observer is supported; registering
// again replaces it.
func (h *Hooks) ObserveVetoes(fn func(Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vetoFn = fn
}

// Dispatch delivers the event to every interested observer in order.
// If an observer returns an error, dispatch stops and the error
// propagates to the action that produced the event. Entries whose
// owner has been collected are dropped.
func (h *Hooks) Dispatch(ctx context.Context, event Event) error {
	h.mu.RLock()
	matching := make([]*hookEntry, 0, len(h.entries))
	for _, e := range h.entries {
		if _, ok := e.types[event.Type]; ok {
			matching = append(matching, e)
		}
	}
	vetoFn := h.vetoFn
	h.mu.RUnlock()

	var dead []*hookEntry
	var dispatchErr error
	for _, e := range matching {
		hook := e.ref()
		if hook == nil {
			dead = append(dead, e)
			continue
		}
		if err := hook.HandleEvent(ctx, event); err != nil {
			dispatchErr = NewPermanentError("hook aborted transition", err).
				WithCode(ErrCodeHookVeto).
				WithMoniker(event.Moniker).
				WithOperation(string(event.Type))
			if vetoFn != nil {
				vetoFn(event)
			}
			break
		}
	}

	if len(dead) > 0 {
		h.remove(dead)
	}
	return dispatchErr
}

// remove drops collected entries from the registration list.
func (h *Hooks) remove(dead []*hookEntry) {
	gone := make(map[*hookEntry]struct{}, len(dead))
	for _, e := range dead {
		gone[e] = struct{}{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.entries[:0]
	for _, e := range h.entries {
		if _, ok := gone[e]; !ok {
			kept = append(kept, e)
		}
	}
	h.entries = kept
}

// Len returns the number of live registrations.
func (h *Hooks) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
