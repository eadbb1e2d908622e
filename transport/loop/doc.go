// Package loop provides in-memory transport pairs for tests and for the
// reference daemon's placeholder head-unit.
//
// A pair behaves like two ends of a connected byte stream: bytes written
// to one end become readable from the other, preserving order. Reads
// follow the non-blocking poll contract of [transport.Transport], and
// Break severs the pair so both ends report transport loss, which lets
// tests inject mid-session disconnects deterministically.
package loop
