package mixer

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Raikerian/go-cuse-mixer/pkg/audio"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("mixer already started")

// DefaultMaxEvents bounds how many ready streams one cycle handles.
const DefaultMaxEvents = 64

// State is the lifecycle state of the mixer thread.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateFatal
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateFatal:
		return "fatal"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Mixer owns the wait/mix/write loop. It runs for the lifetime of the
// process; there is no way to stop it short of a fatal error or a delivery
// failure after Detach.
type Mixer struct {
	logger     *zap.Logger
	format     audio.Format
	dispatcher Dispatcher
	sink       io.Writer
	maxEvents  int
	onFatal    func(error)

	started  atomic.Bool
	detached atomic.Bool
	state    atomic.Int32
	cycles   atomic.Uint64
}

// Option customises a Mixer.
type Option func(*Mixer)

// WithFatalHandler replaces the default log-and-exit fatal policy.
func WithFatalHandler(fn func(error)) Option {
	return func(m *Mixer) { m.onFatal = fn }
}

// WithMaxEvents sets the per-cycle event batch size.
func WithMaxEvents(n int) Option {
	return func(m *Mixer) {
		if n > 0 {
			m.maxEvents = n
		}
	}
}

// NewMixer wires the mixer to its dispatcher and sink. Nothing runs until
// Start is called.
func NewMixer(format audio.Format, dispatcher Dispatcher, sink io.Writer, logger *zap.Logger, opts ...Option) *Mixer {
	m := &Mixer{
		logger:     logger,
		format:     format,
		dispatcher: dispatcher,
		sink:       sink,
		maxEvents:  DefaultMaxEvents,
	}
	m.onFatal = func(err error) {
		logger.Fatal("Mixer thread hit an unrecoverable error", zap.Error(err))
	}

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start allocates the cycle buffers and spawns the mixer thread. Errors
// mean the thread was never created.
func (m *Mixer) Start() error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if m.sink == nil {
		m.state.Store(int32(StateFatal))
		return errors.New("mixer needs a sink")
	}

	engine, err := NewEngine(m.format, m.dispatcher, m.logger)
	if err != nil {
		m.state.Store(int32(StateFatal))
		return fmt.Errorf("failed to allocate mix buffers: %w", err)
	}

	m.state.Store(int32(StateRunning))
	go m.thread(engine)

	m.logger.Info("Mixer thread started",
		zap.Int("channels", m.format.Channels),
		zap.Int("sample_rate", m.format.SampleRate),
		zap.Int("fragment_size", m.format.FragmentSize))
	return nil
}

// thread is the only place the fatal policy is applied.
func (m *Mixer) thread(engine *Engine) {
	runtime.LockOSThread()

	err := m.run(engine)
	if m.detached.Load() {
		m.state.Store(int32(StateStopped))
		m.logger.Info("Mixer thread exited after sink detach", zap.Error(err))
		return
	}
	m.state.Store(int32(StateFatal))
	m.onFatal(err)
}

func (m *Mixer) run(engine *Engine) error {
	events := make([]Event, m.maxEvents)

	for {
		n, err := m.dispatcher.Wait(events)
		if err != nil {
			return fmt.Errorf("readiness wait failed: %w", err)
		}

		out := engine.Mix(events[:n])
		if err := WriteAll(m.sink, out); err != nil {
			return fmt.Errorf("failed to deliver fragment: %w", err)
		}
		clear(out)

		m.cycles.Add(1)
	}
}

// Detach announces that the sink is about to be closed. Errors the thread
// hits from then on end it quietly instead of reaching the fatal handler.
func (m *Mixer) Detach() {
	m.detached.Store(true)
}

// Register makes the mixer wait on s.
func (m *Mixer) Register(s *Stream) error {
	return m.dispatcher.Add(s)
}

// Deregister stops waiting on s.
func (m *Mixer) Deregister(s *Stream) error {
	return m.dispatcher.Remove(s)
}

// Ping wakes the mixer for one cycle without audio data.
func (m *Mixer) Ping() error {
	return m.dispatcher.Ping()
}

// State returns the current lifecycle state.
func (m *Mixer) State() State { return State(m.state.Load()) }

// Cycles returns the number of fragments delivered so far.
func (m *Mixer) Cycles() uint64 { return m.cycles.Load() }

// Format returns the mixer's native format.
func (m *Mixer) Format() audio.Format { return m.format }
