package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Raikerian/go-cuse-mixer/internal/fifo"
	"github.com/Raikerian/go-cuse-mixer/internal/mixer"
)

// End reasons recorded in Stats.
const (
	EndClientClosed = "client_closed"
	EndForced       = "forced"
	EndShutdown     = "shutdown"
	EndIdle         = "idle"
	EndError        = "error"
)

// session is one websocket producer feeding one mixer stream.
type session struct {
	stream  *mixer.Stream
	queue   *fifo.FIFO
	decoder decoder
	conn    *websocket.Conn
	idle    *idleWatch
	logger  *zap.Logger

	codec     string
	rate      int
	channels  int
	resampled bool
	startedAt time.Time
	received  atomic.Uint64

	endOnce   sync.Once
	endReason string
}

func (s *session) stats() Stats {
	return Stats{
		ID:         s.stream.ID,
		Codec:      s.codec,
		SampleRate: s.rate,
		Channels:   s.channels,
		Resampled:  s.resampled,
		Volume:     s.stream.Volume(),
		Received:   s.received.Load(),
		Delivered:  s.stream.Delivered(),
		Live:       true,
		StartedAt:  s.startedAt,
	}
}

// end records why the session stopped; the first reason wins.
func (s *session) end(reason string) {
	s.endOnce.Do(func() { s.endReason = reason })
}

// reason returns the recorded end reason, settling on fallback if none was
// recorded yet.
func (s *session) reason(fallback string) string {
	s.end(fallback)
	return s.endReason
}

// pump copies websocket messages into the queue until the client goes
// away, the queue is closed or ctx is cancelled.
func (s *session) pump(ctx context.Context) error {
	for {
		kind, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.end(EndClientClosed)
				return nil
			}
			return err
		}
		s.idle.Touch()
		if kind != websocket.BinaryMessage {
			continue
		}

		pcm, err := s.decoder.Decode(msg)
		if err != nil {
			return err
		}
		if err := s.push(ctx, pcm); err != nil {
			return err
		}
	}
}

// push blocks until all of pcm is queued.
func (s *session) push(ctx context.Context, pcm []byte) error {
	for len(pcm) > 0 {
		n, err := s.queue.Write(pcm)
		if err != nil {
			return err
		}
		s.received.Add(uint64(n))
		pcm = pcm[n:]
		if len(pcm) == 0 {
			return nil
		}
		if err := s.queue.WaitWritable(ctx); err != nil {
			return err
		}
	}
	return nil
}

// watchForced closes the connection if the mixer drops the stream first.
func (s *session) watchForced(done <-chan struct{}) {
	select {
	case <-s.stream.Closed():
		s.end(EndForced)
		_ = s.conn.Close()
	case <-done:
	}
}

// teardown closes the queue, gives the mixer up to timeout to let go of the
// stream and then releases it.
func (s *session) teardown(m Mixer, timeout time.Duration) {
	_ = s.queue.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.stream.Closed():
	case <-timer.C:
		s.logger.Warn("Mixer did not release stream in time, deregistering",
			zap.Duration("timeout", timeout))
	}

	if err := m.Deregister(s.stream); err != nil {
		s.logger.Warn("Failed to deregister stream", zap.Error(err))
	}
	if err := s.queue.Release(); err != nil {
		s.logger.Warn("Failed to release stream queue", zap.Error(err))
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, fifo.ErrClosed) || errors.Is(err, context.Canceled) || errors.Is(err, websocket.ErrCloseSent)
}
