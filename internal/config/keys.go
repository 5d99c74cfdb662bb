package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

const envPrefix = "INTELLIINSPECT_"

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: envPrefix + "SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: envPrefix + "SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: envPrefix + "STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: envPrefix + "LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.json", typ: kBool, env: envPrefix + "LOG_JSON",
		apply:   func(cfg *Config, v any) { cfg.Log.JSON = v.(bool) },
		extract: func(cfg Config) any { return cfg.Log.JSON },
	},
	{
		key: "simulation.interval", typ: kDuration, env: envPrefix + "SIMULATION_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Simulation.Interval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Simulation.Interval },
	},
	{
		key: "simulation.timezone", typ: kString, env: envPrefix + "SIMULATION_TIMEZONE",
		apply:   func(cfg *Config, v any) { cfg.Simulation.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.Simulation.Timezone },
	},
	{
		key: "training.max_upload_mb", typ: kInt, env: envPrefix + "TRAINING_MAX_UPLOAD_MB",
		apply:   func(cfg *Config, v any) { cfg.Training.MaxUploadMB = v.(int) },
		extract: func(cfg Config) any { return cfg.Training.MaxUploadMB },
	},
	{
		key: "training.max_depth", typ: kInt, env: envPrefix + "TRAINING_MAX_DEPTH",
		apply:   func(cfg *Config, v any) { cfg.Training.MaxDepth = v.(int) },
		extract: func(cfg Config) any { return cfg.Training.MaxDepth },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts raw into the Go type of s.
func parseValue(s keySpec, raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
