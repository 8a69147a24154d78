package ingest

import (
	"errors"
	"fmt"

	"layeh.com/gopus"

	"github.com/Raikerian/go-cuse-mixer/pkg/audio"
)

// Codecs accepted on the ingest websocket.
const (
	CodecPCM  = "pcm"
	CodecOpus = "opus"
)

// ErrUnknownCodec is returned for a codec query value we cannot decode.
var ErrUnknownCodec = errors.New("unknown codec")

// maxOpusFrameMillis is the longest frame an opus packet can carry.
const maxOpusFrameMillis = 120

// decoder turns one websocket message into s16le PCM.
type decoder interface {
	Decode(msg []byte) ([]byte, error)
}

func newDecoder(codec string, rate, channels int) (decoder, error) {
	switch codec {
	case "", CodecPCM:
		return pcmDecoder{frameBytes: audio.S16Bytes * channels}, nil
	case CodecOpus:
		return newOpusDecoder(rate, channels)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codec)
	}
}

// pcmDecoder passes s16le through untouched.
type pcmDecoder struct {
	frameBytes int
}

func (d pcmDecoder) Decode(msg []byte) ([]byte, error) {
	if len(msg)%d.frameBytes != 0 {
		return nil, fmt.Errorf("message of %d bytes is not a whole number of %d-byte frames", len(msg), d.frameBytes)
	}
	return msg, nil
}

type opusDecoder struct {
	dec       *gopus.Decoder
	frameSize int // max samples per channel in one packet
}

func newOpusDecoder(rate, channels int) (*opusDecoder, error) {
	dec, err := gopus.NewDecoder(rate, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}
	return &opusDecoder{
		dec:       dec,
		frameSize: rate / 1000 * maxOpusFrameMillis,
	}, nil
}

func (d *opusDecoder) Decode(msg []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(msg, d.frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("failed to decode opus packet: %w", err)
	}
	return audio.PCMInt16ToLE(pcm), nil
}
