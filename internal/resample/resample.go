// Package resample adapts streams whose native rate or channel layout
// differs from the mixer's.
//
// Streams are live, so a Resampler keeps its interpolation window across
// cycles where nothing is queued and only starts over once the queue is
// gone. Down-mixing to mono goes through audpbx's MonoMixer.
package resample

import (
	"errors"
	"fmt"
	"io"

	pbx "github.com/ik5/audpbx/audio"

	"github.com/Raikerian/go-cuse-mixer/pkg/audio"
)

// ErrUnsupportedLayout is returned for channel layouts that cannot be
// mapped onto the mixer's layout.
var ErrUnsupportedLayout = errors.New("unsupported channel layout")

// lowPassAlpha is the one-pole smoothing applied ahead of downsampling.
const lowPassAlpha = 0.5

// Reader is the non-blocking s16le source a Resampler pulls from.
type Reader interface {
	Read(p []byte) (int, error)
}

type sampleReader interface {
	ReadSamples(dst []float32) (int, error)
}

// Resampler turns native s16le audio into normalised frames at the
// mixer's rate and layout using Catmull-Rom interpolation.
type Resampler struct {
	src    sampleReader
	target audio.Format
	pipeCh int // channels being interpolated
	upmix  bool
	ratio  float64 // source frames per output frame
	filter bool

	chunk   []float32
	chunkAt int
	chunkN  int

	// window holds source frames k-1, k, k+1 and k+2; pos is the
	// fractional position between k and k+1.
	window [4][]float32
	primed int
	pos    float64
	lp     []float32

	tmp    []float32
	resets int
}

// NeedsConversion reports whether a stream must go through a Resampler.
func NeedsConversion(rate, channels int, target audio.Format) bool {
	return rate != target.SampleRate || channels != target.Channels
}

// New builds a Resampler reading sourceRate/sourceChannels s16le from r.
func New(r Reader, sourceRate, sourceChannels int, target audio.Format) (*Resampler, error) {
	if sourceRate <= 0 || sourceChannels <= 0 {
		return nil, fmt.Errorf("invalid source format: rate=%d channels=%d", sourceRate, sourceChannels)
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	pipeCh := sourceChannels
	upmix := false
	switch {
	case sourceChannels == target.Channels:
	case target.Channels == 1:
		pipeCh = 1
	case sourceChannels == 1:
		upmix = true
	default:
		return nil, fmt.Errorf("%w: %d -> %d channels", ErrUnsupportedLayout, sourceChannels, target.Channels)
	}

	frames := target.Frames()
	qs := newQueueSource(r, sourceRate, sourceChannels, frames)

	rs := &Resampler{
		src:    qs,
		target: target,
		pipeCh: pipeCh,
		upmix:  upmix,
		ratio:  float64(sourceRate) / float64(target.SampleRate),
		filter: sourceRate > target.SampleRate,
		chunk:  make([]float32, frames*pipeCh),
		lp:     make([]float32, pipeCh),
	}
	if pipeCh != sourceChannels {
		rs.src = pbx.NewMonoMixer(qs)
	}
	for i := range rs.window {
		rs.window[i] = make([]float32, pipeCh)
	}
	if upmix {
		rs.tmp = make([]float32, frames)
	}

	return rs, nil
}

// Process writes up to frames frames into out and returns how many were
// produced. Zero means nothing was queued; the window is kept for the next
// call.
func (r *Resampler) Process(out []float32, frames int) (produced int) {
	frames = min(frames, len(out)/r.target.Channels)
	if frames <= 0 {
		return 0
	}

	dst := out[:frames*r.pipeCh]
	if r.upmix {
		dst = r.tmp[:frames]
	}

	// a panic in the pipeline costs this stream one silent cycle, never the
	// mixer thread
	defer func() {
		if recover() != nil {
			clear(out)
			r.reset()
			produced = 0
		}
	}()

	produced = r.interpolate(dst, frames)
	if r.upmix {
		audio.UpmixMono(out, dst[:produced], r.target.Channels)
	}

	return produced
}

// Resets counts how many times the window was dropped because the queue
// went away or a read failed hard.
func (r *Resampler) Resets() int { return r.resets }

func (r *Resampler) interpolate(dst []float32, frames int) int {
	produced := 0
	for produced < frames {
		for r.primed < 3 {
			f := r.pull()
			if f == nil {
				return produced
			}
			r.push(f)
		}
		for r.pos >= 1 {
			f := r.pull()
			if f == nil {
				return produced
			}
			r.push(f)
			r.pos--
		}

		x := float32(r.pos)
		base := produced * r.pipeCh
		for c := 0; c < r.pipeCh; c++ {
			dst[base+c] = cubic(r.window[0][c], r.window[1][c], r.window[2][c], r.window[3][c], x)
		}
		produced++
		r.pos += r.ratio
	}
	return produced
}

// pull returns the next source frame, or nil when nothing is queued.
func (r *Resampler) pull() []float32 {
	if r.chunkAt == r.chunkN {
		n, err := r.src.ReadSamples(r.chunk)
		r.chunkAt, r.chunkN = 0, n/r.pipeCh
		if r.chunkN == 0 {
			if err != nil {
				r.reset()
			}
			return nil
		}
	}

	f := r.chunk[r.chunkAt*r.pipeCh : (r.chunkAt+1)*r.pipeCh]
	r.chunkAt++
	return f
}

func (r *Resampler) push(f []float32) {
	if r.filter {
		if r.primed == 0 {
			copy(r.lp, f)
		}
		for c := range f {
			f[c] = lowPassAlpha*f[c] + (1-lowPassAlpha)*r.lp[c]
			r.lp[c] = f[c]
		}
	}

	switch r.primed {
	case 0:
		copy(r.window[0], f)
		copy(r.window[1], f)
	case 1:
		copy(r.window[2], f)
	case 2:
		copy(r.window[3], f)
	default:
		w := r.window
		r.window = [4][]float32{w[1], w[2], w[3], w[0]}
		copy(r.window[3], f)
	}
	if r.primed < 3 {
		r.primed++
	}
}

func (r *Resampler) reset() {
	r.primed = 0
	r.pos = 0
	r.chunkAt, r.chunkN = 0, 0
	r.resets++
}

func cubic(y0, y1, y2, y3, x float32) float32 {
	a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	a2 := -0.5*y0 + 0.5*y2
	a3 := y1

	return a0*x*x*x + a1*x*x + a2*x + a3
}

// queueSource exposes a Reader as an audpbx Source. Partial frames are
// carried over to the next read so channels never slip.
type queueSource struct {
	r        Reader
	rate     int
	channels int
	raw      []byte
	carry    int
}

func newQueueSource(r Reader, rate, channels, frames int) *queueSource {
	return &queueSource{
		r:        r,
		rate:     rate,
		channels: channels,
		raw:      make([]byte, max(frames, 1)*channels*audio.S16Bytes),
	}
}

func (q *queueSource) SampleRate() int { return q.rate }
func (q *queueSource) Channels() int   { return q.channels }
func (q *queueSource) BufSize() int    { return len(q.raw) }
func (q *queueSource) Close() error    { return nil }

// ReadSamples fills dst with whole frames. (0, nil) means nothing is
// queued right now; io.EOF means the queue is gone.
func (q *queueSource) ReadSamples(dst []float32) (int, error) {
	frameBytes := q.channels * audio.S16Bytes
	want := min(len(dst)/q.channels*frameBytes, len(q.raw))

	total := q.carry
	var err error
	for total < want {
		var n int
		n, err = q.r.Read(q.raw[total:want])
		if n > 0 {
			total += n
		}
		if n <= 0 || err != nil {
			break
		}
	}
	whole := total - total%frameBytes

	converted := audio.S16LEToFloat(dst, q.raw[:whole])
	q.carry = copy(q.raw, q.raw[whole:total])

	if err != nil && converted == 0 {
		return 0, io.EOF
	}
	return converted, nil
}

var _ pbx.Source = (*queueSource)(nil)
