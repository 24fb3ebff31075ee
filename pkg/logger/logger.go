package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// File enables rotated JSON output in addition to stdout.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// Development adds stack traces to warnings and panics on DPanic.
	Development bool
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// New builds a JSON logger writing to stdout and, when cfg.File is set, to a
// lumberjack-rotated file.
func New(cfg Config) (*zap.Logger, error) {
	return newWithWriter(cfg, os.Stdout)
}

func newWithWriter(cfg Config, stdout io.Writer) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	enc := zapcore.NewJSONEncoder(encoderConfig())
	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.AddSync(stdout), level)}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(rotator), level))
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}
	return zap.New(zapcore.NewTee(cores...), opts...), nil
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}
