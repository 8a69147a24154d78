package mixer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// EpollDispatcher waits on stream queues with epoll and uses an eventfd as
// the control ping.
type EpollDispatcher struct {
	logger *zap.Logger

	epfd   int
	pingFD int
	raw    []unix.EpollEvent

	// streams may be touched by registration goroutines while the mixer
	// thread is parked in epoll_wait.
	mu      sync.Mutex
	streams map[int32]*Stream
	closed  bool

	epollWait func(epfd int, events []unix.EpollEvent, msec int) (int, error)
}

// NewEpollDispatcher creates a dispatcher returning at most maxEvents
// events per wait.
func NewEpollDispatcher(maxEvents int, logger *zap.Logger) (*EpollDispatcher, error) {
	if maxEvents <= 0 {
		return nil, fmt.Errorf("max events must be positive, got %d", maxEvents)
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("failed to create epoll instance: %w", err)
	}

	pingFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("failed to create ping eventfd: %w", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(pingFD)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, pingFD, &ev); err != nil {
		_ = unix.Close(pingFD)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("failed to register ping eventfd: %w", err)
	}

	return &EpollDispatcher{
		logger:    logger,
		epfd:      epfd,
		pingFD:    pingFD,
		raw:       make([]unix.EpollEvent, maxEvents),
		streams:   make(map[int32]*Stream),
		epollWait: unix.EpollWait,
	}, nil
}

// Add registers the stream's queue notification fd.
func (d *EpollDispatcher) Add(s *Stream) error {
	fd := s.Queue.NotifyFD()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("failed to register stream %s: %w", s.ID, err)
	}
	d.streams[int32(fd)] = s

	d.logger.Debug("Stream registered", zap.String("stream_id", s.ID), zap.Int("fd", fd))
	return nil
}

// Remove deregisters the stream. The fd may already be closed by its owner.
func (d *EpollDispatcher) Remove(s *Stream) error {
	fd := s.Queue.NotifyFD()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.streams[int32(fd)] != s {
		return nil
	}
	delete(d.streams, int32(fd))

	if d.closed {
		return nil
	}

	err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && !errors.Is(err, unix.ENOENT) && !errors.Is(err, unix.EBADF) {
		return fmt.Errorf("failed to deregister stream %s: %w", s.ID, err)
	}

	d.logger.Debug("Stream deregistered", zap.String("stream_id", s.ID), zap.Int("fd", fd))
	return nil
}

// Wait blocks until a stream is ready or a ping arrives.
func (d *EpollDispatcher) Wait(events []Event) (int, error) {
	limit := min(len(events), len(d.raw))
	if limit == 0 {
		return 0, errors.New("no room for events")
	}

	for {
		n, err := d.epollWait(d.epfd, d.raw[:limit], -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("epoll_wait: %w", err)
		}

		if out := d.collect(events, d.raw[:n]); out > 0 {
			return out, nil
		}
		// every event belonged to a stream removed after the kernel queued it
	}
}

func (d *EpollDispatcher) collect(events []Event, raw []unix.EpollEvent) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := 0
	for _, ev := range raw {
		if ev.Fd == int32(d.pingFD) {
			events[out] = Event{}
			out++
			continue
		}
		s, ok := d.streams[ev.Fd]
		if !ok {
			continue
		}
		events[out] = Event{Stream: s}
		out++
	}
	return out
}

// Ping wakes the mixer without audio data.
func (d *EpollDispatcher) Ping() error {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	if _, err := unix.Write(d.pingFD, one[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("failed to ping mixer: %w", err)
	}
	return nil
}

// DrainPing clears the ping eventfd.
func (d *EpollDispatcher) DrainPing() error {
	var counter [8]byte
	if _, err := unix.Read(d.pingFD, counter[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("failed to drain ping: %w", err)
	}
	return nil
}

// Close releases the epoll instance and the ping eventfd.
func (d *EpollDispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	return errors.Join(unix.Close(d.pingFD), unix.Close(d.epfd))
}
