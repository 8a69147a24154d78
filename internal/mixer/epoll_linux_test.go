package mixer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/Raikerian/go-cuse-mixer/internal/fifo"
)

func newTestDispatcher(t *testing.T) *EpollDispatcher {
	t.Helper()
	d, err := NewEpollDispatcher(8, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func newFIFOStream(t *testing.T, id string) (*Stream, *fifo.FIFO) {
	t.Helper()
	f, err := fifo.New(64, 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Release() })
	return NewStream(id, f, nil, 1), f
}

func waitAsync(d *EpollDispatcher, events []Event) <-chan int {
	ch := make(chan int, 1)
	go func() {
		n, err := d.Wait(events)
		if err != nil {
			n = -1
		}
		ch <- n
	}()
	return ch
}

func TestEpollDispatcher_StreamReadiness(t *testing.T) {
	d := newTestDispatcher(t)
	s, f := newFIFOStream(t, "a")
	require.NoError(t, d.Add(s))

	_, err := f.Write(make([]byte, 8))
	require.NoError(t, err)

	events := make([]Event, 8)
	n, err := d.Wait(events)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Same(t, s, events[0].Stream)
	assert.False(t, events[0].IsPing())
}

func TestEpollDispatcher_Ping(t *testing.T) {
	d := newTestDispatcher(t)
	events := make([]Event, 8)
	result := waitAsync(d, events)

	require.NoError(t, d.Ping())

	select {
	case n := <-result:
		require.Equal(t, 1, n)
		assert.True(t, events[0].IsPing())
	case <-time.After(2 * time.Second):
		t.Fatal("ping did not wake the dispatcher")
	}

	require.NoError(t, d.DrainPing())
	fds := []unix.PollFd{{Fd: int32(d.pingFD), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	require.NoError(t, err)
	assert.Zero(t, n, "drained ping must not fire again")

	assert.NoError(t, d.DrainPing(), "draining an idle ping is harmless")
}

func TestEpollDispatcher_RetriesInterruptedWait(t *testing.T) {
	d := newTestDispatcher(t)
	calls := 0
	wait := d.epollWait
	d.epollWait = func(epfd int, events []unix.EpollEvent, msec int) (int, error) {
		calls++
		if calls < 3 {
			return 0, unix.EINTR
		}
		return wait(epfd, events, msec)
	}
	require.NoError(t, d.Ping())

	n, err := d.Wait(make([]Event, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, calls)
}

func TestEpollDispatcher_WaitFailureSurfaces(t *testing.T) {
	d := newTestDispatcher(t)
	d.epollWait = func(int, []unix.EpollEvent, int) (int, error) {
		return 0, unix.EBADF
	}

	_, err := d.Wait(make([]Event, 4))
	assert.ErrorIs(t, err, unix.EBADF)
}

func TestEpollDispatcher_SkipsStaleEvents(t *testing.T) {
	d := newTestDispatcher(t)
	calls := 0
	d.epollWait = func(_ int, events []unix.EpollEvent, _ int) (int, error) {
		calls++
		if calls == 1 {
			events[0] = unix.EpollEvent{Events: unix.EPOLLIN, Fd: 9999}
			return 1, nil
		}
		events[0] = unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(d.pingFD)}
		return 1, nil
	}

	events := make([]Event, 4)
	n, err := d.Wait(events)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, events[0].IsPing())
	assert.Equal(t, 2, calls)
}

func TestEpollDispatcher_RemoveTolerance(t *testing.T) {
	d := newTestDispatcher(t)
	s, f := newFIFOStream(t, "a")

	assert.NoError(t, d.Remove(s), "unknown stream")

	require.NoError(t, d.Add(s))
	require.NoError(t, f.Release())
	assert.NoError(t, d.Remove(s), "fd already closed by its owner")
	assert.Empty(t, d.streams)

	assert.NoError(t, d.Remove(s), "second remove")
}

func TestEpollDispatcher_Closed(t *testing.T) {
	d, err := NewEpollDispatcher(4, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, d.Close())
	assert.NoError(t, d.Close())

	s, _ := newFIFOStream(t, "a")
	assert.ErrorIs(t, d.Add(s), ErrDispatcherClosed)
}

func TestNewEpollDispatcher_InvalidBatch(t *testing.T) {
	_, err := NewEpollDispatcher(0, zap.NewNop())
	assert.Error(t, err)
}
