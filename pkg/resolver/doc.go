// Package resolver turns component locators into declarations.
//
// A locator is a URL-shaped string whose scheme selects the resolver
// responsible for it. The Registry multiplexes between registered
// resolvers; the concrete resolvers in this package load declarations
// from CUE manifests on the local filesystem (with change-driven cache
// invalidation), from remote hosts over SFTP, or from an in-memory
// table used for bootstrapping and tests.
package resolver
