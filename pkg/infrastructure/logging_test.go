package infrastructure_test

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Raikerian/go-cuse-mixer/pkg/infrastructure"
)

func TestFxLoggerAdapter_SuccessIsDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	adapter := infrastructure.NewFxLoggerAdapter(zap.New(core))

	adapter.LogEvent(&fxevent.Provided{OutputTypeNames: []string{"*mixer.Mixer"}})
	adapter.LogEvent(&fxevent.Invoking{FunctionName: "registerLifecycleHooks"})
	adapter.LogEvent(&fxevent.Started{})

	assert.Equal(t, 3, logs.Len())
	for _, entry := range logs.All() {
		assert.Equal(t, zapcore.DebugLevel, entry.Level)
		assert.Equal(t, "fx", entry.LoggerName)
	}
}

func TestFxLoggerAdapter_ErrorsAreErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	adapter := infrastructure.NewFxLoggerAdapter(zap.New(core))
	boom := errors.New("sink unavailable")

	adapter.LogEvent(&fxevent.OnStartExecuted{FunctionName: "start", CallerName: "app", Err: boom})
	adapter.LogEvent(&fxevent.RollingBack{StartErr: boom})
	adapter.LogEvent(&fxevent.LoggerInitialized{ConstructorName: "NewZapLogger", Err: boom})

	errs := logs.FilterLevelExact(zapcore.ErrorLevel)
	assert.Equal(t, 3, errs.Len())
	assert.Equal(t, "OnStart hook failed", errs.All()[0].Message)
}

func TestFxLoggerAdapter_Signal(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	adapter := infrastructure.NewFxLoggerAdapter(zap.New(core))

	adapter.LogEvent(&fxevent.Stopping{Signal: os.Interrupt})

	assert.Equal(t, 1, logs.FilterMessage("Received signal").Len())
}

func TestFxIntegration(t *testing.T) {
	app := fx.New(
		fx.WithLogger(infrastructure.NewFxLoggerAdapter),
		fx.Provide(zap.NewNop),
		fx.Invoke(func(*zap.Logger) {}),
	)

	assert.NoError(t, app.Err())
}
