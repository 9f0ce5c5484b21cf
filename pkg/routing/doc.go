// Package routing resolves capability requests across the component
// tree by walking declared use/offer/expose edges. The walk is static
// and deterministic (the first matching offer at each level wins) and
// produces a lazily invoked Route: components only start, and
// transports only open, when a Route is actually used.
package routing
