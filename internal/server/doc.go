// Package server implements the relay's session handling.
//
// The implementation is organized into specialized files for configuration,
// the session registry, the router, per-session workers, transports and the
// HTTP surface to keep the codebase maintainable and testable as the project
// grows.
package server
