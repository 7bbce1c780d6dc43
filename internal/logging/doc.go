// Package logging provides structured logging for the library.
//
// This package wraps zap logger with convenience functions for the logging
// patterns used throughout the network lifecycle, captive portal, and upgrade
// components. Logging is diagnostic only; no control logic depends on it.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: detailed diagnostics (portal requests, transfer progress)
//   - Info: normal operations (radio events, state changes)
//   - Warn: non-fatal issues (failed connects, dropped transfers)
//   - Error: serious failures (commit errors, invariant violations)
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Station connected",
//	    zap.String("network", "home-net"),
//	    zap.Uint64("elapsed_ms", 2310),
//	)
//
// # Configuration
//
// Host firmware initializes logging once at setup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// When no level is set (argument or IOP_LOG_LEVEL environment variable),
// the logger is a nop; embedded hosts that route diagnostics elsewhere pay
// nothing. On POSIX hosts InitializeWithFile adds a rotating file sink.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap
// logger handles synchronization automatically.
package logging
