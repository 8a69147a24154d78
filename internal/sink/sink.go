// Package sink provides the destinations the mixer writes fragments to.
package sink

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/Raikerian/go-cuse-mixer/internal/config"
	"github.com/Raikerian/go-cuse-mixer/pkg/audio"
)

// ErrUnknownSink is returned by New for an unrecognised sink type.
var ErrUnknownSink = errors.New("unknown sink type")

// Sink accepts s16le fragments in the mixer's native format. Writes may be
// partial; Close flushes and releases the destination.
type Sink interface {
	io.Writer
	io.Closer
}

// New opens the sink selected by cfg.
func New(cfg config.SinkConfig, format audio.Format, logger *zap.Logger) (Sink, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case config.SinkDevice:
		return OpenDevice(cfg.Path, logger)
	case config.SinkWAV:
		return CreateWAV(cfg.Path, format, logger)
	case config.SinkOto:
		return OpenOto(format, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSink, cfg.Type)
	}
}
