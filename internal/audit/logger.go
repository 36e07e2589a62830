// Package audit records authorization decisions as structured log events,
// separate from the server's operational log.
package audit

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where decision events are written.
type Config struct {
	// Enabled turns decision auditing on.
	Enabled bool `yaml:"enabled"`

	// FilePath routes events to a rotated file; empty writes to stdout.
	FilePath string `yaml:"file_path"`

	// Rotation settings, used only with FilePath.
	FileMaxSize    int `yaml:"file_max_size"`    // MB
	FileMaxAge     int `yaml:"file_max_age"`     // days
	FileMaxBackups int `yaml:"file_max_backups"`
}

// DefaultConfig returns the default audit configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		FileMaxSize:    100,
		FileMaxAge:     30,
		FileMaxBackups: 10,
	}
}

// Logger writes one JSON event per authorization decision. It implements
// the engine's decision observer contract.
type Logger struct {
	log *zap.Logger
}

// NewLogger creates a decision audit logger per the config. A disabled
// config yields a logger that drops everything.
func NewLogger(cfg Config) (*Logger, error) {
	if !cfg.Enabled {
		return &Logger{log: zap.NewNop()}, nil
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	var sink zapcore.WriteSyncer
	if cfg.FilePath != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.FileMaxSize,
			MaxAge:     cfg.FileMaxAge,
			MaxBackups: cfg.FileMaxBackups,
			Compress:   true,
		})
	} else {
		sink = zapcore.Lock(os.Stdout)
	}

	core := zapcore.NewCore(encoder, sink, zapcore.InfoLevel)
	return &Logger{log: zap.New(core)}, nil
}

// NewLoggerWithSink creates a logger writing to the given core. Used by
// tests to capture events.
func NewLoggerWithSink(core zapcore.Core) *Logger {
	return &Logger{log: zap.New(core)}
}

// ObserveDecision records one authorization decision.
func (l *Logger) ObserveDecision(policyName string, allowed bool, duration time.Duration) {
	effect := "deny"
	if allowed {
		effect = "allow"
	}
	l.log.Info("authorization decision",
		zap.String("policy", policyName),
		zap.String("effect", effect),
		zap.Duration("duration", duration),
	)
}

// Sync flushes buffered events.
func (l *Logger) Sync() error {
	return l.log.Sync()
}
