package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Log        LogConfig
	Simulation SimulationConfig
	Training   TrainingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
	JSON  bool
}

type SimulationConfig struct {
	Interval time.Duration
	// Timezone is applied to timestamps without a UTC offset.
	Timezone string
}

// TrainingConfig holds the tunable training settings. The ensemble size and
// learning rate are fixed by gbdt.DefaultParams and are not configurable.
type TrainingConfig struct {
	MaxUploadMB int
	MaxDepth    int
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Simulation: SimulationConfig{
			Interval: time.Second,
			Timezone: "UTC",
		},
		Training: TrainingConfig{
			MaxUploadMB: 200,
			MaxDepth:    6,
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/intelliinspect/config.json and applies INTELLIINSPECT_*
// environment overrides on top.
func Load() (Config, error) {
	return LoadFrom(configFilePath())
}

// LoadFrom is Load with an explicit config file path. A missing file is not
// an error.
func LoadFrom(path string) (Config, error) {
	return loadWith(newFileBackend(path))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid value in cfg.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage.data_dir must not be empty"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Simulation.Interval < 0 {
		errs = append(errs, fmt.Errorf("simulation.interval %s must not be negative", c.Simulation.Interval))
	}
	if _, err := time.LoadLocation(c.Simulation.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("simulation.timezone: %w", err))
	}
	if c.Training.MaxUploadMB < 0 {
		errs = append(errs, fmt.Errorf("training.max_upload_mb %d must not be negative", c.Training.MaxUploadMB))
	}
	if c.Training.MaxDepth < 1 {
		errs = append(errs, fmt.Errorf("training.max_depth %d must be positive", c.Training.MaxDepth))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Location returns the configured timezone. It falls back to UTC when the
// name does not resolve; Validate reports that case.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Simulation.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Addr returns the host:port the server listens on.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// MaxUploadBytes returns the upload limit in bytes, 0 meaning unlimited.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.Training.MaxUploadMB) << 20
}

// LogLevel returns the slog level for Log.Level.
func (c Config) LogLevel() slog.Level {
	l, _ := parseLevel(c.Log.Level)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level %q is not one of debug, info, warn, error", s)
}
