// Package policy provides Open Policy Agent (OPA) integration for
// Reef.
//
// Lifecycle transitions are evaluated against Rego policies before
// they commit: the Gate registers as a lifecycle hook and flattens
// each event into policy input; any enabled policy whose deny set
// fires at error severity or above vetoes the transition.
//
// # Architecture
//
// The policy system consists of four main components:
//
//  1. Engine - Compiles and evaluates Rego policies
//  2. Gate - Bridges lifecycle events into policy evaluation
//  3. Loader - Loads policies from files and directories
//  4. Built-in Policies - Pre-defined lifecycle guardrails
//
// # Usage
//
// Creating an engine and attaching the gate:
//
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	gate := policy.NewGate(engine, "production", logger)
//	gate.Attach(mdl.Hooks())
//
// Loading custom policies:
//
//	err = engine.LoadPolicies(ctx, []string{
//	    "/etc/reef/policies",
//	    "/opt/policies/custom.rego",
//	})
//
// # Built-in Policies
//
// The following policies are included by default:
//
//  1. root-teardown - Refuses teardown of the root component
//  2. privileged-capabilities - Keeps reef.priv.* capabilities out of
//     collection members
//  3. collection-boot - Warns on boot-time starts of collection members
//
// # Custom Policies
//
// Policies receive the transition as input.event with type, moniker,
// in_collection, reason, capability, and source fields, plus
// input.context with environment and timestamp. A policy denies by
// contributing to its package's deny set:
//
//	package custom.policies.quarantine
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.event.type == "started"
//	    input.event.moniker == "/quarantine"
//
//	    violation := {
//	        "message": "quarantined component cannot start",
//	        "severity": "error",
//	        "moniker": input.event.moniker,
//	    }
//	}
//
// # Severity Levels
//
// Violations have four severity levels:
//
//   - info: Informational messages
//   - warning: Issues that should be reviewed but don't block the
//     transition
//   - error: Issues that block the transition
//   - critical: Severe issues that must never be permitted
//
// # Hot Reload
//
// The loader supports watching policy files for changes and reloading
// automatically:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return engine.LoadPolicies(ctx, paths)
//	})
package policy
