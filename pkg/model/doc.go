// Package model implements the lifecycle core of the Reef component
// runtime: the tree of component instances, the per-instance action
// set with at-most-once execution semantics, the lifecycle actions
// (discover, resolve, delete_child, purge_child, destroy, purge,
// start), and the ordered, abortable hook dispatcher every lifecycle
// event flows through.
//
// The Model context object owns the root instance, the hook registry,
// and the handles to the external collaborators (resolver, runner,
// connector); there is no process-global state.
//
// Concurrency discipline: an instance's state and children are mutated
// only under that instance's own short-held lock, no operation holds
// two instances' locks at once, and hook dispatch never runs under any
// state lock. Teardown is strictly bottom-up: a parent's Destroyed
// event is dispatched only after the Destroyed events of all of its
// children.
package model
