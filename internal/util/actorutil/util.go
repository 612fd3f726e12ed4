package actorutil

import (
	"log/slog"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var slogLevels = map[zapcore.Level]slog.Level{
	zapcore.DebugLevel: slog.LevelDebug,
	zapcore.InfoLevel:  slog.LevelInfo,
	zapcore.WarnLevel:  slog.LevelWarn,
	zapcore.ErrorLevel: slog.LevelError,
	zapcore.PanicLevel: slog.LevelError,
	zapcore.FatalLevel: slog.LevelError,
}

// PipeToSelfWithRecover delivers the future result to the actor itself,
// mapping a failed or timed out future with mapFn.
func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

// NewActorSystemWithZapLogger routes the actor system slog output through
// the zap logger, at the zap logger level.
func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	writer := zap.NewStdLog(logger).Writer()
	level, ok := slogLevels[logger.Level()]
	if !ok {
		level = slog.LevelInfo
	}
	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {
		return slog.New(tint.NewHandler(writer, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
		})).With("system", system.ID)
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// RestartingSupervisor restarts a failed child at most maxRetries times
// within window, logging every failure.
func RestartingSupervisor(logger *zap.Logger, maxRetries int, window time.Duration) actor.SupervisorStrategy {
	return actor.NewOneForOneStrategy(maxRetries, window, func(reason interface{}) actor.Directive {
		logger.Warn("restarting failed child", zap.Any("reason", reason))
		return actor.RestartDirective
	})
}

// BackoffSupervisor restarts a failed child after a growing delay.
func BackoffSupervisor(backoffWindow, initialBackoff time.Duration) actor.SupervisorStrategy {
	return actor.NewExponentialBackoffStrategy(backoffWindow, initialBackoff)
}
