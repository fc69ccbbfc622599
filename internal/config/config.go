// Package config loads application settings (not model documents) from
// defaults, an optional config file, .env and UNITSIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. UNITSIM_LOG_LEVEL.
const EnvPrefix = "UNITSIM"

// Config holds all application settings.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	Engine     EngineConfig     `mapstructure:"engine"`
	Trajectory TrajectoryConfig `mapstructure:"trajectory"`
	Output     OutputConfig     `mapstructure:"output"`
	Server     ServerConfig     `mapstructure:"server"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// EngineConfig sizes the Monte Carlo worker set.
type EngineConfig struct {
	Workers int `mapstructure:"workers"`
}

// TrajectoryConfig sizes the illustrative trajectory batch.
type TrajectoryConfig struct {
	Runs int   `mapstructure:"runs"`
	Seed int64 `mapstructure:"seed"`
}

// OutputConfig controls where the result snapshot goes.
type OutputConfig struct {
	Path    string `mapstructure:"path"`
	Summary bool   `mapstructure:"summary"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	WebSocketPath string        `mapstructure:"websocket_path"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes"`
	EventBuffer   int           `mapstructure:"event_buffer"`
}

// JobsConfig bounds the simulation jobs the API runs at once.
type JobsConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("engine.workers", runtime.NumCPU())
	v.SetDefault("trajectory.runs", 30)
	v.SetDefault("trajectory.seed", 123)
	v.SetDefault("output.path", "results.json")
	v.SetDefault("output.summary", true)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.websocket_path", "/ws")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.max_body_bytes", int64(1<<20))
	v.SetDefault("server.event_buffer", 4096)
	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.queue_size", 64)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment are used. A .env file in the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Engine.Workers < 1:
		return fmt.Errorf("engine.workers must be at least 1, got %d", c.Engine.Workers)
	case c.Trajectory.Runs < 1:
		return fmt.Errorf("trajectory.runs must be at least 1, got %d", c.Trajectory.Runs)
	case c.Jobs.Workers < 1:
		return fmt.Errorf("jobs.workers must be at least 1, got %d", c.Jobs.Workers)
	case c.Jobs.QueueSize < 1:
		return fmt.Errorf("jobs.queue_size must be at least 1, got %d", c.Jobs.QueueSize)
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}
