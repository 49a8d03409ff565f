package common

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a named zap logger from the centralized Config.
func NewLogger(name string) (*zap.Logger, error) {
	return NewLoggerWithConfig(name, GetConfig())
}

// NewLoggerWithConfig creates a zap logger for cfg.App settings.
// Production uses the JSON encoder with ISO8601 timestamps; every other
// environment gets the colored development console.
func NewLoggerWithConfig(name string, cfg *Config) (*zap.Logger, error) {
	var config zap.Config
	if cfg.App.ENV == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if cfg.App.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.App.LogLevel)
		if err == nil {
			config.Level = level
		}
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	if name != "" {
		return logger.Named(name), nil
	}
	return logger, nil
}
