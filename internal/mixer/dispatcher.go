package mixer

import "errors"

// ErrDispatcherClosed is returned by a Dispatcher after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Event is one readiness notification. A nil Stream is a control ping.
type Event struct {
	Stream *Stream
}

// IsPing reports whether the event is a control ping.
func (e Event) IsPing() bool { return e.Stream == nil }

// Dispatcher waits for streams to become ready.
type Dispatcher interface {
	// Add registers the stream's readiness handle.
	Add(s *Stream) error
	// Remove deregisters the stream. Removing an unknown stream is a no-op.
	Remove(s *Stream) error
	// Wait blocks until at least one event is available and fills events.
	// Interrupted waits are retried internally; any returned error is fatal.
	Wait(events []Event) (int, error)
	// Ping wakes Wait without audio data. Safe from any goroutine.
	Ping() error
	// DrainPing consumes a pending ping so it does not fire again.
	DrainPing() error
	Close() error
}
