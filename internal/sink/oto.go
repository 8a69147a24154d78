package sink

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"

	"github.com/Raikerian/go-cuse-mixer/pkg/audio"
)

// Oto plays the mix on the host's default audio output. Fragments are fed
// through a pipe to a single persistent player, so Write blocks at the
// playback rate like a real device would.
type Oto struct {
	ctx    *oto.Context
	player *oto.Player
	pr     *io.PipeReader
	pw     *io.PipeWriter
	logger *zap.Logger

	closeOnce sync.Once
}

// oto allows one context per process.
var otoContext struct {
	once sync.Once
	ctx  *oto.Context
	err  error
}

// OpenOto starts playback in the mixer's format.
func OpenOto(format audio.Format, logger *zap.Logger) (*Oto, error) {
	otoContext.once.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			otoContext.err = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoContext.ctx = ctx
	})
	if otoContext.err != nil {
		return nil, otoContext.err
	}

	pr, pw := io.Pipe()
	player := otoContext.ctx.NewPlayer(pr)
	player.Play()

	logger.Info("Audio output initialized",
		zap.Int("sample_rate", format.SampleRate),
		zap.Int("channels", format.Channels))

	return &Oto{
		ctx:    otoContext.ctx,
		player: player,
		pr:     pr,
		pw:     pw,
		logger: logger,
	}, nil
}

func (o *Oto) Write(p []byte) (int, error) {
	return o.pw.Write(p)
}

// Close stops playback. Pending writes fail with io.ErrClosedPipe.
func (o *Oto) Close() error {
	var err error
	o.closeOnce.Do(func() {
		err = errors.Join(
			o.pw.Close(),
			o.player.Close(),
			o.pr.Close(),
			o.ctx.Suspend(),
		)
		o.logger.Info("Audio output closed")
	})
	return err
}
