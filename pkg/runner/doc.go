// Package runner executes component programs.
//
// The WASM runner runs a component's program as a WebAssembly module
// under wazero with WASI, a per-program memory limit, and optional
// sha256 checksum verification against a binary manifest. The
// Registry dispatches on the runner name a declaration's program
// carries, so trees can mix runner implementations.
package runner
