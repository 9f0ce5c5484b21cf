package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/openreef/reef/pkg/decl"
)

// EventType identifies a kind of lifecycle occurrence.
type EventType string

const (
	// EventTypeDiscovered fires when an instance's existence is first
	// announced.
	EventTypeDiscovered EventType = "discovered"

	// EventTypeResolved fires when an instance's declaration has been
	// resolved, or when resolution fails (with an error payload).
	EventTypeResolved EventType = "resolved"

	// EventTypeDestroyed fires when an instance has been torn down.
	EventTypeDestroyed EventType = "destroyed"

	// EventTypePurged fires when a destroyed instance is permanently
	// removed.
	EventTypePurged EventType = "purged"

	// EventTypeCapabilityRouted fires when a capability request has
	// been bound to a concrete source.
	EventTypeCapabilityRouted EventType = "capability_routed"

	// EventTypeStarted fires when an instance's program begins
	// executing.
	EventTypeStarted EventType = "started"
)

// AllEventTypes returns every lifecycle event type.
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeDiscovered,
		EventTypeResolved,
		EventTypeDestroyed,
		EventTypePurged,
		EventTypeCapabilityRouted,
		EventTypeStarted,
	}
}

// StartReason records why a component's program was started.
type StartReason string

const (
	// StartReasonExplicit indicates a direct start request.
	StartReasonExplicit StartReason = "explicit"

	// StartReasonCapabilityAccess indicates the component was started
	// to serve a routed capability.
	StartReasonCapabilityAccess StartReason = "capability_access"

	// StartReasonBoot indicates the component was started as part of
	// bringing up the tree.
	StartReasonBoot StartReason = "boot"
)

// Event is an immutable record of a lifecycle occurrence, produced by
// lifecycle actions and the router and consumed by hooks.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Type is the event type.
	Type EventType `json:"type"`

	// Moniker identifies the instance the event is about.
	Moniker Moniker `json:"moniker"`

	// Timestamp is when the event was produced.
	Timestamp time.Time `json:"timestamp"`

	// Declaration is the resolved declaration; set on successful
	// Resolved events only.
	Declaration *decl.Declaration `json:"declaration,omitempty"`

	// Capability is the routed capability identifier; set on
	// CapabilityRouted events only.
	Capability string `json:"capability,omitempty"`

	// Source is the routing source; set on CapabilityRouted events
	// only.
	Source Moniker `json:"source,omitempty"`

	// Reason records why the program started; set on Started events
	// only.
	Reason StartReason `json:"reason,omitempty"`

	// Err is the error payload, if the event records a failure
	// (an error-carrying Resolved event).
	Err error `json:"-"`
}

// NewCapabilityRoutedEvent creates a capability_routed event binding
// target's request to the given source.
func NewCapabilityRoutedEvent(target, source Moniker, capability string) Event {
	ev := newEvent(EventTypeCapabilityRouted, target)
	ev.Source = source
	ev.Capability = capability
	return ev
}

// newEvent creates an event for the given instance.
func newEvent(t EventType, m Moniker) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		Moniker:   m,
		Timestamp: time.Now(),
	}
}
