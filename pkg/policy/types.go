package policy

import (
	"encoding/json"
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed but do
	// not block the transition.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block the transition.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must never be permitted.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation at this severity denies the
// transition.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Moniker identifies the component the violation is about.
	Moniker string `json:"moniker,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result represents the result of evaluating policies against a
// lifecycle transition.
type Result struct {
	// Allowed indicates if the transition is allowed.
	Allowed bool `json:"allowed"`

	// Violations lists blocking policy violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists non-blocking violations.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedAt is when the evaluation ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// EventInput is the lifecycle transition under evaluation, flattened
// into policy-friendly scalars.
type EventInput struct {
	// Type is the lifecycle event type.
	Type string `json:"type"`

	// Moniker identifies the component the transition is about.
	Moniker string `json:"moniker"`

	// InCollection indicates the component is a dynamically created
	// collection member.
	InCollection bool `json:"in_collection"`

	// Reason is why the program was started; set on started events.
	Reason string `json:"reason,omitempty"`

	// Capability is the routed capability identifier; set on
	// capability_routed events.
	Capability string `json:"capability,omitempty"`

	// Source is the routing source moniker; set on capability_routed
	// events.
	Source string `json:"source,omitempty"`
}

// Input represents the input data for policy evaluation.
type Input struct {
	// Event is the lifecycle transition being evaluated.
	Event *EventInput `json:"event"`

	// Declaration is the resolved declaration, if the transition
	// carries one.
	Declaration json.RawMessage `json:"declaration,omitempty"`

	// Context provides additional evaluation context.
	Context *Context `json:"context"`
}

// Context provides context information for policy evaluation.
type Context struct {
	// Environment is the runtime environment (e.g., "production",
	// "staging").
	Environment string `json:"environment,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// Metadata contains additional context metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
