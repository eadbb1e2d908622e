// Package pool implements a fixed-size buffer pool for the forwarding path.
//
// All buffer memory is allocated once when the pool is created; buffers are
// handed out and reclaimed by ownership transfer and are never freed or
// resized. Acquire never blocks: when every buffer is owned it fails with
// [pkg.ErrPoolExhausted] and the caller applies backpressure by retrying on
// its next forwarding pass.
//
// Ownership is tracked per buffer with a single atomic word, so acquire and
// release are safe to call concurrently from the two forwarding tasks
// without a mutex. A buffer is only ever touched by one task between
// acquire and release.
//
// Buffer content is not zeroed on release; consumers must only trust the
// length-in-use bytes reported by [Buffer.Len].
package pool
