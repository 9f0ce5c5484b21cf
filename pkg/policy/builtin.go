package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		rootTeardownPolicy(),
		privilegedCapabilityPolicy(),
		collectionBootPolicy(),
	}
}

// rootTeardownPolicy refuses teardown of the root component.
func rootTeardownPolicy() Policy {
	return Policy{
		Name:        "root-teardown",
		Description: "Refuses destruction or purging of the root component",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"lifecycle", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package reef.policies.teardown

import rego.v1

teardown_events := ["destroyed", "purged"]

deny contains violation if {
	input.event
	event := input.event

	some t in teardown_events
	event.type == t
	event.moniker == "/"

	violation := {
		"message": "the root component cannot be torn down",
		"severity": "critical",
		"moniker": event.moniker,
	}
}`,
	}
}

// privilegedCapabilityPolicy keeps privileged capabilities out of
// collection members.
func privilegedCapabilityPolicy() Policy {
	return Policy{
		Name:        "privileged-capabilities",
		Description: "Refuses routing of reef.priv.* capabilities to dynamically created collection members",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"routing", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package reef.policies.capabilities

import rego.v1

deny contains violation if {
	input.event
	event := input.event

	event.type == "capability_routed"
	startswith(event.capability, "reef.priv.")
	event.in_collection

	violation := {
		"message": sprintf("privileged capability %s cannot be routed to collection member %s", [event.capability, event.moniker]),
		"severity": "error",
		"moniker": event.moniker,
	}
}`,
	}
}

// collectionBootPolicy flags boot-time starts of collection members,
// which are expected to be created and started on demand.
func collectionBootPolicy() Policy {
	return Policy{
		Name:        "collection-boot",
		Description: "Warns when a collection member is started during boot",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"lifecycle", "collections"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package reef.policies.collections

import rego.v1

deny contains violation if {
	input.event
	event := input.event

	event.type == "started"
	event.reason == "boot"
	event.in_collection

	violation := {
		"message": sprintf("collection member %s started during boot", [event.moniker]),
		"severity": "warning",
		"moniker": event.moniker,
	}
}`,
	}
}
