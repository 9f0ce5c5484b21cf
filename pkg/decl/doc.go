// Package decl defines the component declaration schema: a component's
// program, its statically declared children and collections, and the
// use/offer/expose edges the capability router walks. Declarations are
// produced by resolvers and treated as read-only once a component is
// resolved.
package decl
