package fifo

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

var (
	// ErrClosed is returned once the FIFO has been closed by its owner.
	ErrClosed = errors.New("fifo closed")
	// ErrInvalidSize is returned by New for unusable capacity/trigger values.
	ErrInvalidSize = errors.New("invalid fifo size")
)

// FIFO is safe for exactly one writer goroutine and one reader goroutine.
// Close, SignalWaiters and NotifyFD may be called from anywhere.
type FIFO struct {
	buf     []byte
	trigger uint64

	head atomic.Uint64 // total bytes consumed
	tail atomic.Uint64 // total bytes produced

	notifyFD int
	closed   atomic.Bool
	done     chan struct{}
	writable chan struct{}

	closeOnce   sync.Once
	releaseOnce sync.Once
}

// New creates a FIFO holding up to capacity bytes. The notification fd
// fires when at least trigger bytes are readable.
func New(capacity, trigger int) (*FIFO, error) {
	if capacity <= 0 || trigger <= 0 || trigger > capacity {
		return nil, fmt.Errorf("%w: capacity=%d trigger=%d", ErrInvalidSize, capacity, trigger)
	}

	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("failed to create eventfd: %w", err)
	}

	return &FIFO{
		buf:      make([]byte, capacity),
		trigger:  uint64(trigger),
		notifyFD: fd,
		done:     make(chan struct{}),
		writable: make(chan struct{}, 1),
	}, nil
}

// Len returns the number of readable bytes.
func (f *FIFO) Len() int {
	return int(f.tail.Load() - f.head.Load())
}

// Free returns the number of bytes a Write can currently accept.
func (f *FIFO) Free() int {
	return len(f.buf) - f.Len()
}

// Cap returns the FIFO capacity in bytes.
func (f *FIFO) Cap() int { return len(f.buf) }

// Write appends as much of p as fits and returns the number of bytes taken.
// It never blocks; use WaitWritable to wait for the reader to make room.
func (f *FIFO) Write(p []byte) (int, error) {
	if f.closed.Load() {
		return 0, ErrClosed
	}

	tail := f.tail.Load()
	free := uint64(len(f.buf)) - (tail - f.head.Load())
	n := min(uint64(len(p)), free)
	if n == 0 {
		return 0, nil
	}

	size := uint64(len(f.buf))
	start := tail % size
	first := min(n, size-start)
	copy(f.buf[start:], p[:first])
	copy(f.buf, p[first:n])
	f.tail.Store(tail + n)

	if tail+n-f.head.Load() >= f.trigger {
		f.signal()
	}

	return int(n), nil
}

// WaitWritable blocks until the reader signals that it drained data, the
// FIFO is closed, or ctx is done.
func (f *FIFO) WaitWritable(ctx context.Context) error {
	if f.Free() > 0 {
		return nil
	}
	select {
	case <-f.writable:
		return nil
	case <-f.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Read copies up to len(p) queued bytes into p. An empty FIFO yields
// (0, nil); a closed and drained FIFO yields (0, ErrClosed).
func (f *FIFO) Read(p []byte) (int, error) {
	head := f.head.Load()
	avail := f.tail.Load() - head
	n := min(uint64(len(p)), avail)
	if n == 0 {
		if f.closed.Load() {
			return 0, ErrClosed
		}
		return 0, nil
	}

	size := uint64(len(f.buf))
	start := head % size
	first := min(n, size-start)
	copy(p, f.buf[start:start+first])
	copy(p[first:n], f.buf)
	f.head.Store(head + n)

	return int(n), nil
}

// NotifyFD is the readiness handle to register with the mixer.
func (f *FIFO) NotifyFD() int { return f.notifyFD }

// AckRead clears the readiness notification after the reader drained the
// FIFO. It re-arms the notification if enough data is still queued. Once the
// owner has closed the FIFO any remaining data keeps it armed, and AckRead
// fails with ErrClosed only after the last byte was read.
func (f *FIFO) AckRead() error {
	var counter [8]byte
	if _, err := unix.Read(f.notifyFD, counter[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("failed to acknowledge read: %w", err)
	}

	queued := uint64(f.Len())
	if f.closed.Load() {
		if queued == 0 {
			return ErrClosed
		}
		f.signal()
		return nil
	}

	if queued >= f.trigger {
		f.signal()
	}

	return nil
}

// SignalWaiters wakes a producer blocked in WaitWritable.
func (f *FIFO) SignalWaiters() {
	select {
	case f.writable <- struct{}{}:
	default:
	}
}

// Close marks the FIFO closed and wakes the reader so it can drain what is
// left. It does not release the eventfd.
func (f *FIFO) Close() error {
	f.closeOnce.Do(func() {
		f.closed.Store(true)
		close(f.done)
		f.signal()
	})
	return nil
}

// Release closes the eventfd. Call it only after the reader has let go of
// the FIFO.
func (f *FIFO) Release() error {
	var err error
	f.releaseOnce.Do(func() {
		_ = f.Close()
		err = unix.Close(f.notifyFD)
	})
	return err
}

func (f *FIFO) signal() {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	// EAGAIN only happens when the counter is saturated, which still reads
	// as ready.
	_, _ = unix.Write(f.notifyFD, one[:])
}
