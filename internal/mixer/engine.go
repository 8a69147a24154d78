package mixer

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Raikerian/go-cuse-mixer/pkg/audio"
)

// Engine mixes one fragment per call. It owns the cycle buffers and must
// only be used from the mixer thread.
type Engine struct {
	logger     *zap.Logger
	format     audio.Format
	dispatcher Dispatcher
	frames     int

	staging []float32 // one stream's normalised contribution
	mix     []float32 // running sum of all contributions
	raw     []byte    // s16le read straight from a queue
	out     []byte    // s16le fragment handed to the sink
}

// NewEngine allocates the cycle buffers for format.
func NewEngine(format audio.Format, dispatcher Dispatcher, logger *zap.Logger) (*Engine, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("engine needs a dispatcher")
	}

	samples := format.Samples()
	return &Engine{
		logger:     logger,
		format:     format,
		dispatcher: dispatcher,
		frames:     format.Frames(),
		staging:    make([]float32, samples),
		mix:        make([]float32, samples),
		raw:        make([]byte, format.FragmentSize),
		out:        make([]byte, format.FragmentSize),
	}, nil
}

// Format returns the format the engine was built for.
func (e *Engine) Format() audio.Format { return e.format }

// Mix combines the ready streams in events into one s16le fragment. The
// returned slice is owned by the engine and reused on the next call.
func (e *Engine) Mix(events []Event) []byte {
	clear(e.mix)

	for _, ev := range events {
		if ev.IsPing() {
			if err := e.dispatcher.DrainPing(); err != nil {
				e.logger.Warn("Failed to drain control ping", zap.Error(err))
			}
			continue
		}
		e.mixStream(ev.Stream)
	}

	audio.FloatToS16LE(e.out, e.mix)
	return e.out
}

func (e *Engine) mixStream(s *Stream) {
	clear(e.staging)
	e.fill(s)

	s.Queue.SignalWaiters()

	if err := s.Queue.AckRead(); err != nil {
		e.forceClose(s, err)
	}

	audio.MixVolume(e.mix, e.staging, s.Volume())
}

// fill leaves staging silent when the stream has nothing for this cycle.
func (e *Engine) fill(s *Stream) {
	if s.Producer != nil {
		produced := s.Producer.Process(e.staging, e.frames)
		if produced > 0 {
			s.delivered.Add(uint64(min(produced, e.frames)))
		}
		return
	}

	n, err := s.Queue.Read(e.raw)
	if err != nil {
		e.logger.Debug("Stream read returned no data",
			zap.String("stream_id", s.ID),
			zap.Error(err))
		return
	}
	if n <= 0 {
		return
	}

	converted := audio.S16LEToFloat(e.staging, e.raw[:n])
	s.delivered.Add(uint64(converted / e.format.Channels))
}

// forceClose drops a stream whose queue went away and tells its owner.
func (e *Engine) forceClose(s *Stream, cause error) {
	if err := e.dispatcher.Remove(s); err != nil {
		e.logger.Warn("Failed to deregister closed stream",
			zap.String("stream_id", s.ID),
			zap.Error(err))
	}
	s.signalClosed()

	e.logger.Info("Stream force-closed",
		zap.String("stream_id", s.ID),
		zap.Uint64("delivered_frames", s.Delivered()),
		zap.NamedError("cause", cause))
}
