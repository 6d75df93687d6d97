// Package logging builds the zap loggers used by the framez command: a
// console core, optionally tee'd with a rotating JSON file core.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field names used by both encoders.
const (
	FieldTimestamp  = "timestamp"
	FieldLevel      = "level"
	FieldSource     = "source"
	FieldMessage    = "message"
	FieldStacktrace = "stacktrace"
	FieldCaller     = "caller"
)

// Default rotation settings for the log file.
const (
	DefaultMaxSizeMB  = 100
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 30
)

// Options configures New.
type Options struct {
	// Console receives human-readable output. Defaults to os.Stderr.
	Console io.Writer
	// Level is parsed with ParseLevel; empty means info.
	Level string
	// File, when set, adds a JSON core writing to a rotating file.
	File string
	// Development switches the console to a coloured console encoder.
	Development bool
	// MaxSizeMB, MaxBackups and MaxAgeDays tune rotation; zero uses defaults.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a logger from opts.
func New(opts Options) *zap.Logger {
	level := ParseLevel(opts.Level, zapcore.InfoLevel)
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var consoleEncoder zapcore.Encoder
	if opts.Development {
		consoleEncoder = zapcore.NewConsoleEncoder(ConsoleEncoderConfig())
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(EncoderConfig())
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(console), level),
	}
	if opts.File != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(EncoderConfig()),
			NewFileWriter(opts),
			level,
		))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// NewFileWriter returns a size- and age-rotated writer for opts.File.
func NewFileWriter(opts Options) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    orDefault(opts.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: orDefault(opts.MaxBackups, DefaultMaxBackups),
		MaxAge:     orDefault(opts.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   true,
	})
}

// ParseLevel parses debug, info, warn, error or fatal, case-insensitively,
// returning def for anything else.
func ParseLevel(s string, def zapcore.Level) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return def
	}
}

// ValidLevel reports whether s names a level ParseLevel understands.
func ValidLevel(s string) bool {
	const sentinel = zapcore.Level(-128)
	return ParseLevel(s, sentinel) != sentinel
}

// EncoderConfig is the JSON encoder configuration.
func EncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        FieldTimestamp,
		LevelKey:       FieldLevel,
		NameKey:        FieldSource,
		CallerKey:      FieldCaller,
		MessageKey:     FieldMessage,
		StacktraceKey:  FieldStacktrace,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// ConsoleEncoderConfig is the development console encoder configuration.
func ConsoleEncoderConfig() zapcore.EncoderConfig {
	cfg := EncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("15:04:05.000"))
	}
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return cfg
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
