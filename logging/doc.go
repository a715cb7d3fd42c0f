// Package logging provides a minimal logging interface and adapters for enginebridge.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the executor, runner and engines use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - BridgeLogger with contextual cloning helpers and step/run helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	exec := engine.New(gateway, func(o *engine.Options) { o.Logger = logger })
//
// Arguments after the message are alternating key/value pairs, as with log/slog.
package logging
