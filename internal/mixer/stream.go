package mixer

import (
	"math"
	"sync"
	"sync/atomic"
)

// Queue is the consumer side of a stream's sample queue.
type Queue interface {
	// Read copies up to len(p) queued bytes of s16le audio. It must not
	// block; an empty queue returns (0, nil).
	Read(p []byte) (int, error)
	// AckRead acknowledges a drain. A failure means the queue is being torn
	// down and the stream must be dropped.
	AckRead() error
	// NotifyFD is the readiness handle registered with the Dispatcher.
	NotifyFD() int
	// SignalWaiters wakes the producer after the mixer freed space.
	SignalWaiters()
}

// FrameProducer converts a stream's native audio into normalised samples
// at the mixer's rate and channel layout.
type FrameProducer interface {
	// Process writes up to frames frames into out and returns how many it
	// produced. Zero is a valid idle result.
	Process(out []float32, frames int) int
}

// Stream is one audio source registered with the mixer.
type Stream struct {
	ID       string
	Queue    Queue
	Producer FrameProducer // nil when the stream already matches the mixer format

	volume    atomic.Uint32 // float32 bits
	delivered atomic.Uint64 // frames

	closed    chan struct{}
	closeOnce sync.Once
}

// NewStream creates a stream descriptor. producer may be nil.
func NewStream(id string, q Queue, producer FrameProducer, volume float32) *Stream {
	s := &Stream{
		ID:       id,
		Queue:    q,
		Producer: producer,
		closed:   make(chan struct{}),
	}
	s.SetVolume(volume)
	return s
}

// Volume returns the current scale factor.
func (s *Stream) Volume() float32 {
	return math.Float32frombits(s.volume.Load())
}

// SetVolume changes the scale factor. Negative values are treated as zero.
func (s *Stream) SetVolume(v float32) {
	if v < 0 || math.IsNaN(float64(v)) {
		v = 0
	}
	s.volume.Store(math.Float32bits(v))
}

// Delivered returns the number of frames the mixer has taken from the stream.
func (s *Stream) Delivered() uint64 {
	return s.delivered.Load()
}

// Closed is closed when the mixer force-deregisters the stream.
func (s *Stream) Closed() <-chan struct{} {
	return s.closed
}

func (s *Stream) signalClosed() {
	s.closeOnce.Do(func() { close(s.closed) })
}
