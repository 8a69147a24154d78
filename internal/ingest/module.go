package ingest

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-cuse-mixer/internal/config"
	"github.com/Raikerian/go-cuse-mixer/internal/mixer"
)

// Module provides the ingest server.
var Module = fx.Module("ingest",
	fx.Provide(NewServerFromConfig),
)

// ServerParams holds dependencies for NewServerFromConfig.
type ServerParams struct {
	fx.In
	Cfg    *config.Config
	Mixer  *mixer.Mixer
	Logger *zap.Logger
}

// NewServerFromConfig creates the ingest server. It is started and stopped
// by the app lifecycle, after the mixer thread is running.
func NewServerFromConfig(params ServerParams) (*Server, error) {
	return NewServer(params.Cfg.Ingest, params.Mixer, params.Logger.Named("ingest"))
}
