// Package journal persists lifecycle events to SQLite.
//
// The Journal registers as a lifecycle hook and appends every
// dispatched event to an events table while maintaining a current
// view of per-component state. It is an observer: persistence
// failures are logged but never veto the transition that produced the
// event. Query helpers expose the recorded history and the state view
// for inspection tooling.
package journal
