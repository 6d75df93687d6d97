// Package config holds the runtime configuration of the framez command.
// Values come from defaults, an optional YAML file, FRAMEZ_* environment
// variables and command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/zoobzio/framez"
	"github.com/zoobzio/framez/internal/logging"
	"go.uber.org/zap"
)

// Backend names.
const (
	BackendMemory  = "memory"
	BackendChunked = "chunked"
)

// EnvPrefix prefixes every environment variable, e.g. FRAMEZ_WORKERS or
// FRAMEZ_LOG_LEVEL.
const EnvPrefix = "FRAMEZ"

// Config is the runtime configuration.
type Config struct {
	Backend      string        `mapstructure:"backend" yaml:"backend"`
	ChunkShape   []int         `mapstructure:"chunk_shape" yaml:"chunk_shape"`
	Log          LogConfig     `mapstructure:"log" yaml:"log"`
	Workers      int           `mapstructure:"workers" yaml:"workers"`
	FrameTimeout time.Duration `mapstructure:"frame_timeout" yaml:"frame_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	File        string `mapstructure:"file" yaml:"file"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Backend: BackendMemory,
		Workers: 1,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers the defaults with v so that environment variables
// and flags bound to the same keys are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("backend", d.Backend)
	v.SetDefault("chunk_shape", d.ChunkShape)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("frame_timeout", d.FrameTimeout)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.development", d.Log.Development)
}

// Load reads the configuration. An empty file means defaults, environment
// and flags only.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the chain cannot use.
func (c Config) Validate() error {
	var errs []error
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.FrameTimeout < 0 {
		errs = append(errs, fmt.Errorf("frame_timeout must not be negative, got %v", c.FrameTimeout))
	}
	switch c.Backend {
	case BackendMemory:
	case BackendChunked:
		if len(c.ChunkShape) == 0 {
			errs = append(errs, errors.New("chunked backend needs chunk_shape"))
		}
		for i, n := range c.ChunkShape {
			if n < 0 {
				errs = append(errs, fmt.Errorf("chunk_shape[%d] must not be negative, got %d", i, n))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.Log.Level != "" && !logging.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}

// NewBackend returns the configured storage backend.
func (c Config) NewBackend() framez.Backend {
	if c.Backend == BackendChunked {
		return framez.ChunkedBackend{ChunkShape: c.ChunkShape}
	}
	return framez.MemoryBackend{}
}

// NewLogger returns the configured logger.
func (c Config) NewLogger() *zap.Logger {
	return logging.New(logging.Options{
		Level:       c.Log.Level,
		File:        c.Log.File,
		Development: c.Log.Development,
	})
}

// ChainOptions returns the chain options for this configuration.
func (c Config) ChainOptions(logger *zap.Logger) []framez.Option {
	return []framez.Option{
		framez.WithWorkers(c.Workers),
		framez.WithBackend(c.NewBackend()),
		framez.WithLogger(logger),
		framez.WithFrameTimeout(c.FrameTimeout),
	}
}
