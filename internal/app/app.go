// Package app provides the main application structure and lifecycle management.
package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-cuse-mixer/internal/ingest"
	"github.com/Raikerian/go-cuse-mixer/internal/mixer"
	"github.com/Raikerian/go-cuse-mixer/internal/sink"
)

// Application represents the main application with its lifecycle.
type Application struct {
	app *fx.App
}

// New creates a new Application with the provided modules and options.
func New(modules ...fx.Option) *Application {
	options := append(modules, fx.Invoke(registerLifecycleHooks))

	return &Application{
		app: fx.New(options...),
	}
}

// Run starts the application and blocks until it's stopped.
func (a *Application) Run() {
	a.app.Run()
}

// Start starts the application without blocking.
func (a *Application) Start(ctx context.Context) error {
	return a.app.Start(ctx)
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	return a.app.Stop(ctx)
}

// Err reports an error from building the dependency graph.
func (a *Application) Err() error {
	return a.app.Err()
}

// LifecycleParams holds dependencies for registerLifecycleHooks.
type LifecycleParams struct {
	fx.In
	LC     fx.Lifecycle
	Mixer  *mixer.Mixer
	Ingest *ingest.Server
	Sink   sink.Sink
	Logger *zap.Logger
}

// registerLifecycleHooks starts the mixer thread before accepting streams.
// The mixer thread is never stopped. On shutdown ingest is drained first and
// the sink is closed only once the mixer has been detached from it.
func registerLifecycleHooks(params LifecycleParams) {
	logger := params.Logger

	params.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting application: starting mixer thread and ingest server")

			if err := params.Mixer.Start(); err != nil {
				logger.Error("Failed to start mixer", zap.Error(err))

				return err
			}

			if err := params.Ingest.Start(ctx); err != nil {
				logger.Error("Failed to start ingest server", zap.Error(err))

				return err
			}

			logger.Info("Application started successfully")

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping application: draining streams")

			stopErr := params.Ingest.Stop(ctx)
			if stopErr != nil {
				logger.Error("Failed to stop ingest server", zap.Error(stopErr))
			}

			params.Mixer.Detach()
			if err := params.Sink.Close(); err != nil {
				logger.Error("Failed to close sink", zap.Error(err))

				return err
			}

			logger.Info("Application stopped",
				zap.Uint64("cycles", params.Mixer.Cycles()),
				zap.Stringer("mixer_state", params.Mixer.State()))

			return stopErr
		},
	})
}
