package pkg

import "errors"

// Bridge and transport errors.
var (
	// ErrPoolExhausted indicates all pool buffers are currently owned.
	// Transient: the caller applies backpressure and retries next pass.
	ErrPoolExhausted = errors.New("buffer pool exhausted")

	// ErrNotOwned indicates a buffer release by a caller that does not
	// hold exclusive ownership of the buffer.
	ErrNotOwned = errors.New("buffer not owned by caller")

	// ErrWouldBlock indicates no bytes are currently available from a
	// non-blocking transport read.
	ErrWouldBlock = errors.New("operation would block")

	// ErrTransportLost indicates the underlying transport disconnected
	// or failed mid-session.
	ErrTransportLost = errors.New("transport lost")

	// ErrHandshakeTimeout indicates a handshake stage exceeded its timeout.
	ErrHandshakeTimeout = errors.New("handshake timeout")

	// ErrHandshakeFailed indicates the peer rejected or broke the handshake.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrAPConfig indicates the access point could not be configured or started.
	ErrAPConfig = errors.New("access point configuration failed")

	// ErrBusy indicates a second client attempted to attach while a
	// session is active.
	ErrBusy = errors.New("session busy")

	// ErrClosed indicates an operation on a closed transport or listener.
	ErrClosed = errors.New("closed")

	// ErrAlreadyRunning indicates the component is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning indicates the component is not running.
	ErrNotRunning = errors.New("not running")

	// ErrInvalidState indicates an event is not valid in the current state.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrInvalidFrame indicates a malformed protocol frame.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrCRCMismatch indicates a frame failed its CRC check.
	ErrCRCMismatch = errors.New("CRC mismatch")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrProtocol indicates an unexpected or unsupported protocol message.
	ErrProtocol = errors.New("protocol error")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")
)
