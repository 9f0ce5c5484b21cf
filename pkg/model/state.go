package model

import "fmt"

// InstanceState represents the lifecycle state of a component instance.
// States only advance forward through
// new -> discovered -> resolved -> destroyed -> purged.
type InstanceState string

const (
	// StateNew indicates the instance exists but nothing has observed it.
	StateNew InstanceState = "new"

	// StateDiscovered indicates the instance's existence has been
	// announced to hooks.
	StateDiscovered InstanceState = "discovered"

	// StateResolved indicates the instance's declaration has been
	// resolved and cached.
	StateResolved InstanceState = "resolved"

	// StateDestroyed indicates the instance has been torn down; it is
	// retained by its parent until purged.
	StateDestroyed InstanceState = "destroyed"

	// StatePurged indicates the instance is permanently gone.
	StatePurged InstanceState = "purged"
)

// IsTerminal returns true if the state represents teardown.
func (s InstanceState) IsTerminal() bool {
	return s == StateDestroyed || s == StatePurged
}

// Validate checks if the instance state is valid.
func (s InstanceState) Validate() error {
	switch s {
	case StateNew, StateDiscovered, StateResolved, StateDestroyed, StatePurged:
		return nil
	default:
		return fmt.Errorf("invalid instance state: %s", s)
	}
}

// rank orders states along the forward lifecycle. Destroyed and purged
// share the teardown tail.
func (s InstanceState) rank() int {
	switch s {
	case StateNew:
		return 0
	case StateDiscovered:
		return 1
	case StateResolved:
		return 2
	case StateDestroyed:
		return 3
	case StatePurged:
		return 4
	default:
		return -1
	}
}

// AtLeast reports whether the state has advanced to or past other.
func (s InstanceState) AtLeast(other InstanceState) bool {
	return s.rank() >= other.rank()
}
