package mixer_test

import (
	"errors"
	"sync"

	"github.com/Raikerian/go-cuse-mixer/internal/mixer"
	"github.com/Raikerian/go-cuse-mixer/pkg/audio"
)

var testFormat = audio.Format{Bits: 16, Channels: 2, SampleRate: 44100, FragmentSize: 64}

type fakeQueue struct {
	fd      int
	data    []byte
	readErr error
	ackErr  error

	reads     int
	acks      int
	signalled int
}

func (q *fakeQueue) Read(p []byte) (int, error) {
	q.reads++
	if q.readErr != nil {
		return 0, q.readErr
	}
	n := copy(p, q.data)
	q.data = q.data[n:]
	return n, nil
}

func (q *fakeQueue) AckRead() error {
	q.acks++
	return q.ackErr
}

func (q *fakeQueue) NotifyFD() int  { return q.fd }
func (q *fakeQueue) SignalWaiters() { q.signalled++ }

// constantProducer fills every frame with value.
type constantProducer struct {
	value    float32
	channels int
	limit    int
	calls    int
}

func (p *constantProducer) Process(out []float32, frames int) int {
	p.calls++
	n := frames
	if p.limit >= 0 && p.limit < n {
		n = p.limit
	}
	for i := 0; i < n*p.channels; i++ {
		out[i] = p.value
	}
	return n
}

type waitResult struct {
	events []mixer.Event
	err    error
}

// fakeDispatcher replays scripted waits and records registrations.
type fakeDispatcher struct {
	mu      sync.Mutex
	waits   []waitResult
	added   []*mixer.Stream
	removed []*mixer.Stream
	pings   int
	drained int
}

var errScriptDone = errors.New("script exhausted")

func (d *fakeDispatcher) Add(s *mixer.Stream) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.added = append(d.added, s)
	return nil
}

func (d *fakeDispatcher) Remove(s *mixer.Stream) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removed = append(d.removed, s)
	return nil
}

func (d *fakeDispatcher) Wait(events []mixer.Event) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.waits) == 0 {
		return 0, errScriptDone
	}
	next := d.waits[0]
	d.waits = d.waits[1:]
	if next.err != nil {
		return 0, next.err
	}
	return copy(events, next.events), nil
}

func (d *fakeDispatcher) Ping() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pings++
	return nil
}

func (d *fakeDispatcher) DrainPing() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drained++
	return nil
}

func (d *fakeDispatcher) Close() error { return nil }

func (d *fakeDispatcher) removedStreams() []*mixer.Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*mixer.Stream(nil), d.removed...)
}

// constantFragment is one fragment of s16le audio where every sample is v.
func constantFragment(v int16) []byte {
	samples := make([]int16, testFormat.Samples())
	for i := range samples {
		samples[i] = v
	}
	return audio.PCMInt16ToLE(samples)
}

func samplesOf(out []byte) []int16 {
	return audio.LEToPCMInt16(out)
}
