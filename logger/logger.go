package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/isdmx/jailrun/config"
)

const (
	// ServiceName is attached to every log entry.
	ServiceName = "jailrun"

	// DefaultOutput keeps stdout free for the MCP stdio transport.
	DefaultOutput = "stderr"
)

// Option adjusts the zap configuration before the logger is built.
type Option func(*zap.Config)

// WithOutput sends entries and internal logger errors to path, which is
// "stderr", "stdout" or a file path. An empty path keeps DefaultOutput.
func WithOutput(path string) Option {
	return func(cfg *zap.Config) {
		if path == "" {
			return
		}
		cfg.OutputPaths = []string{path}
		cfg.ErrorOutputPaths = []string{path}
	}
}

// WithFields attaches fields to every entry.
func WithFields(fields map[string]any) Option {
	return func(cfg *zap.Config) {
		if cfg.InitialFields == nil {
			cfg.InitialFields = make(map[string]any, len(fields))
		}
		for k, v := range fields {
			cfg.InitialFields[k] = v
		}
	}
}

// NewFromConfig creates a logger from the logging section of cfg.
func NewFromConfig(cfg *config.Config) (*zap.Logger, error) {
	return New(cfg.Logging.Mode, cfg.Logging.Level,
		WithOutput(cfg.Logging.Output),
		WithFields(map[string]any{"transport": cfg.Server.Transport}))
}

// New creates a logger for mode ("production" or "development") at level.
func New(mode, level string, opts ...Option) (*zap.Logger, error) {
	cfg, err := modeConfig(mode)
	if err != nil {
		return nil, err
	}

	logLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging level: %s, must be one of 'debug', 'info', 'warn', 'error', 'dpanic', 'panic', 'fatal'", level)
	}
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	cfg.OutputPaths = []string{DefaultOutput}
	cfg.ErrorOutputPaths = []string{DefaultOutput}
	cfg.InitialFields = map[string]any{"service": ServiceName}

	for _, opt := range opts {
		opt(&cfg)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

func modeConfig(mode string) (zap.Config, error) {
	switch mode {
	case "development":
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		return cfg, nil
	case "production":
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.Sampling = nil
		return cfg, nil
	default:
		return zap.Config{}, fmt.Errorf("invalid logging mode: %s, must be 'production' or 'development'", mode)
	}
}
