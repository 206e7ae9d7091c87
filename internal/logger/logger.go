package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log levels
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Log formats
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config configures the process logger.
type Config struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// ApplyDefaults fills in default values
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = LevelInfo
	}
	if c.Format == "" {
		c.Format = FormatJSON
	}
}

// Validate checks configuration
func (c *Config) Validate() error {
	switch c.Level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, "":
	default:
		return fmt.Errorf("logger: invalid level: %s", c.Level)
	}
	switch c.Format {
	case FormatJSON, FormatConsole, "":
	default:
		return fmt.Errorf("logger: invalid format: %s", c.Format)
	}
	return nil
}

// New builds a zap logger. JSON output uses the production preset, console
// output the development one.
func New(cfg Config) (*zap.Logger, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	var zc zap.Config
	if cfg.Format == FormatConsole {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	return zc.Build()
}
