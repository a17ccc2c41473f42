// Package logging builds the zap loggers used across the service.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger. Development mode gets console encoding with
// colored levels; production gets sampled JSON.
func New(development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// ForRun returns a child logger tagged with the extraction session id so all
// pipeline log lines for one run are correlated.
func ForRun(base *zap.Logger, sessionID string) *zap.Logger {
	if base == nil {
		return zap.NewNop()
	}
	return base.With(zap.String("session_id", sessionID))
}
