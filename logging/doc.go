// Package logging provides a minimal logging interface and adapters for consultmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine and stores use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - StructuredLogger with session/component context and domain helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "text", false)
//	mesh := consultmesh.New(func(o *consultmesh.Options) { o.Logger = logger })
//
// Log output goes to stderr by default: stdout is reserved for the protocol
// channel of the serve command.
package logging
