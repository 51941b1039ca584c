package logger

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/andresmejia3/human4d/internal/config"
)

var once sync.Once
var core zapcore.Core

type ctxKey struct{}

// GetZapLogger returns an instance of zap logger.
// Info and debug go to stdout, warnings and errors to stderr.
func GetZapLogger(ctx context.Context) (*zap.Logger, error) {
	once.Do(func() {
		debugInfoLevel := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level == zapcore.DebugLevel || level == zapcore.InfoLevel
		})

		infoLevel := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level == zapcore.InfoLevel
		})

		warnErrorFatalLevel := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= zapcore.WarnLevel
		})

		stdoutSyncer := zapcore.Lock(os.Stdout)
		stderrSyncer := zapcore.Lock(os.Stderr)

		if config.Config.Debug {
			core = zapcore.NewTee(
				zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewDevelopmentEncoderConfig()), stdoutSyncer, debugInfoLevel),
				zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewDevelopmentEncoderConfig()), stderrSyncer, warnErrorFatalLevel),
			)
		} else {
			core = zapcore.NewTee(
				zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), stdoutSyncer, infoLevel),
				zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), stderrSyncer, warnErrorFatalLevel),
			)
		}
	})

	logger := zap.New(core)
	if fields, ok := ctx.Value(ctxKey{}).([]zap.Field); ok {
		logger = logger.With(fields...)
	}
	return logger, nil
}

// WithFields attaches fields that every logger obtained from the returned context carries.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	prev, _ := ctx.Value(ctxKey{}).([]zap.Field)
	merged := make([]zap.Field, 0, len(prev)+len(fields))
	merged = append(merged, prev...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, ctxKey{}, merged)
}
