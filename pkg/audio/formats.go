package audio

import (
	"errors"
	"fmt"
)

// Fixed-point constants shared by the codec and mixer layers.
const (
	S16Bits    = 16
	S16Bytes   = S16Bits / 8
	S16Ceiling = 32768 // magnitude ceiling used to normalise s16 samples
)

// ErrInvalidFormat is returned by Format.Validate.
var ErrInvalidFormat = errors.New("invalid audio format")

// Format describes the mixer's native PCM layout. It is fixed at startup
// and every mix buffer is sized from it.
type Format struct {
	Bits         int `yaml:"bits"`
	Channels     int `yaml:"channels"`
	SampleRate   int `yaml:"sample_rate"`
	FragmentSize int `yaml:"fragment_size"` // bytes per mix cycle
}

// Validate checks that the fragment holds a whole number of frames.
func (f Format) Validate() error {
	if f.Bits != S16Bits {
		return fmt.Errorf("%w: only %d-bit samples are supported, got %d", ErrInvalidFormat, S16Bits, f.Bits)
	}
	if f.Channels < 1 {
		return fmt.Errorf("%w: channels must be positive, got %d", ErrInvalidFormat, f.Channels)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidFormat, f.SampleRate)
	}
	if f.FragmentSize <= 0 || f.FragmentSize%f.FrameBytes() != 0 {
		return fmt.Errorf("%w: fragment size %d is not a multiple of the frame size %d",
			ErrInvalidFormat, f.FragmentSize, f.FrameBytes())
	}
	return nil
}

// FrameBytes is the size of one interleaved frame.
func (f Format) FrameBytes() int { return f.Bits / 8 * f.Channels }

// Samples is the number of interleaved samples in one fragment.
func (f Format) Samples() int { return f.FragmentSize / (f.Bits / 8) }

// Frames is the number of frames in one fragment.
func (f Format) Frames() int { return f.Samples() / f.Channels }
