// Package telemetry exposes the bridge's state and counters as
// prometheus metrics and a JSON status endpoint. It is strictly
// read-only: no bridge behavior depends on it running.
package telemetry
