// Package infrastructure provides reusable infrastructure components for Go applications.
package infrastructure

import (
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// FxLoggerAdapter routes Fx's own lifecycle events into a zap logger.
// Successful events go to Debug so they stay out of production logs;
// failures are logged at Error.
type FxLoggerAdapter struct {
	logger *zap.Logger
}

// NewFxLoggerAdapter creates a new Fx logger adapter that implements fxevent.Logger.
func NewFxLoggerAdapter(logger *zap.Logger) fxevent.Logger {
	return &FxLoggerAdapter{logger: logger.Named("fx")}
}

// LogEvent implements fxevent.Logger.
func (a *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		a.logger.Debug("OnStart hook executing",
			zap.String("callee", e.FunctionName), zap.String("caller", e.CallerName))
	case *fxevent.OnStartExecuted:
		a.result("OnStart hook", e.Err,
			zap.String("callee", e.FunctionName), zap.String("caller", e.CallerName), zap.Duration("runtime", e.Runtime))
	case *fxevent.OnStopExecuting:
		a.logger.Debug("OnStop hook executing",
			zap.String("callee", e.FunctionName), zap.String("caller", e.CallerName))
	case *fxevent.OnStopExecuted:
		a.result("OnStop hook", e.Err,
			zap.String("callee", e.FunctionName), zap.String("caller", e.CallerName), zap.Duration("runtime", e.Runtime))
	case *fxevent.Supplied:
		a.result("Supplied", e.Err, zap.String("type", e.TypeName))
	case *fxevent.Provided:
		a.result("Provided", e.Err, zap.Strings("types", e.OutputTypeNames), zap.String("constructor", e.ConstructorName))
	case *fxevent.Invoking:
		a.logger.Debug("Invoking", zap.String("function", e.FunctionName))
	case *fxevent.Invoked:
		a.result("Invoked", e.Err, zap.String("function", e.FunctionName))
	case *fxevent.Stopping:
		a.logger.Info("Received signal", zap.String("signal", e.Signal.String()))
	case *fxevent.Stopped:
		a.result("Stopped", e.Err)
	case *fxevent.RollingBack:
		a.logger.Error("Start failed, rolling back", zap.Error(e.StartErr))
	case *fxevent.RolledBack:
		a.result("Rolled back", e.Err)
	case *fxevent.Started:
		a.result("Started", e.Err)
	case *fxevent.LoggerInitialized:
		a.result("Logger initialized", e.Err, zap.String("constructor", e.ConstructorName))
	default:
		a.logger.Debug("Unhandled Fx event", zap.Any("event", event))
	}
}

func (a *FxLoggerAdapter) result(msg string, err error, fields ...zap.Field) {
	if err != nil {
		a.logger.Error(msg+" failed", append(fields, zap.Error(err))...)
		return
	}
	a.logger.Debug(msg, fields...)
}
