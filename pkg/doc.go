// Package pkg provides shared utilities for the WiFi-USB bridge.
//
// This package contains common functionality used across the bridge core
// and its transport adapters, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for bridge and transport errors
//   - Component identifiers for log filtering
//
// The package is designed to have zero external dependencies, relying
// only on the Go standard library.
//
// # Logging
//
// The logging subsystem wraps [log/slog] with bridge-specific context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentBridge, "session started", "session", id)
//
// # Errors
//
// Common bridge errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrPoolExhausted) {
//	    // Apply backpressure, retry next pass
//	}
package pkg
