// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the logger flavour.
type Config struct {
	Development bool
	// Format is "console" (default) or "json".
	Format string
	// Level is a zap level name; empty means info (debug in development).
	Level string
	// OutputPaths defaults to stderr.
	OutputPaths []string
}

// New builds a zap.Logger configured for development or production. Console output uses
// ISO8601 timestamps and upper-case levels.
func New(c Config) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if c.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.DisableStacktrace = !c.Development
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch c.Format {
	case "", "console":
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		if c.Development {
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	case "json":
		cfg.Encoding = "json"
		cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", c.Format)
	}

	if c.Level != "" {
		level, err := zap.ParseAtomicLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		cfg.Level = level
	}
	if len(c.OutputPaths) > 0 {
		cfg.OutputPaths = c.OutputPaths
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
