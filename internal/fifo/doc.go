// Package fifo provides the per-stream queue that sits between a stream's
// producer and the mixer thread.
//
// A FIFO is a bounded single-producer/single-consumer byte ring. The
// consumer side exposes an eventfd that becomes readable once at least
// trigger bytes are queued, so the mixer can wait on many FIFOs at once.
//
// The readiness handle is a Linux eventfd, so the package only builds on
// Linux.
package fifo
