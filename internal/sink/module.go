package sink

import (
	"io"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-cuse-mixer/internal/config"
)

// Module provides the configured Sink and exposes it as the mixer's writer.
var Module = fx.Module("sink",
	fx.Provide(
		NewFromConfig,
		fx.Annotate(
			func(s Sink) io.Writer { return s },
			fx.ResultTags(`name:"mixer_sink"`),
		),
	),
)

// Params holds dependencies for NewFromConfig.
type Params struct {
	fx.In
	Cfg    *config.Config
	Logger *zap.Logger
}

// NewFromConfig opens the sink named in the config. Closing it is left to
// the app lifecycle so that it happens after ingest has drained.
func NewFromConfig(params Params) (Sink, error) {
	return New(params.Cfg.Sink, params.Cfg.Audio, params.Logger.Named("sink"))
}
