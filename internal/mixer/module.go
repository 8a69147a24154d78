package mixer

import (
	"io"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-cuse-mixer/internal/config"
)

// Module provides the dispatcher and the mixer.
var Module = fx.Module("mixer",
	fx.Provide(
		NewDispatcher,
		NewMixerFromConfig,
	),
)

// DispatcherParams holds dependencies for NewDispatcher.
type DispatcherParams struct {
	fx.In
	Cfg    *config.Config
	Logger *zap.Logger
}

// NewDispatcher creates the epoll dispatcher sized from config.
func NewDispatcher(params DispatcherParams) (Dispatcher, error) {
	return NewEpollDispatcher(params.Cfg.Mixer.MaxEvents, params.Logger.Named("dispatcher"))
}

// MixerParams holds dependencies for NewMixerFromConfig.
type MixerParams struct {
	fx.In
	Cfg        *config.Config
	Dispatcher Dispatcher
	Sink       io.Writer `name:"mixer_sink"`
	Logger     *zap.Logger
}

// NewMixerFromConfig builds the mixer. Starting it is left to the app
// lifecycle.
func NewMixerFromConfig(params MixerParams) *Mixer {
	return NewMixer(params.Cfg.Audio, params.Dispatcher, params.Sink, params.Logger.Named("mixer"),
		WithMaxEvents(params.Cfg.Mixer.MaxEvents))
}
