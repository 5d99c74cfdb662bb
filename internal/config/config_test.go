package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// clearEnv blanks every INTELLIINSPECT_* override for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when no config file exists.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Simulation.Interval != time.Second {
		t.Errorf("Simulation.Interval = %s, want 1s", cfg.Simulation.Interval)
	}
	if cfg.Location() != time.UTC {
		t.Errorf("Location = %v, want UTC", cfg.Location())
	}
	if cfg.Training.MaxDepth != 6 {
		t.Errorf("Training = %+v", cfg.Training)
	}
	if cfg.MaxUploadBytes() != 200<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes())
	}
	if !strings.HasSuffix(cfg.Storage.DataDir, "intelliinspect") && cfg.Storage.DataDir != "intelliinspect-data" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
}

// TestFileParsing verifies that all fields are correctly read from the JSON file.
func TestFileParsing(t *testing.T) {
	clearEnv(t)

	path := writeTempConfig(t, `{
  "server.host": "0.0.0.0",
  "server.port": 9100,
  "storage.data_dir": "/tmp/intelliinspect-test",
  "log.level": "debug",
  "log.json": "true",
  "simulation.interval": "250ms",
  "simulation.timezone": "Asia/Kolkata",
  "training.max_upload_mb": 50,
  "training.max_depth": 3
}`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Addr() != "0.0.0.0:9100" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
	if cfg.Storage.DataDir != "/tmp/intelliinspect-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.LogLevel().String() != "DEBUG" || !cfg.Log.JSON {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Simulation.Interval != 250*time.Millisecond {
		t.Errorf("Simulation.Interval = %s", cfg.Simulation.Interval)
	}
	if cfg.Location().String() != "Asia/Kolkata" {
		t.Errorf("Location = %v", cfg.Location())
	}
	if cfg.Training.MaxUploadMB != 50 || cfg.Training.MaxDepth != 3 {
		t.Errorf("Training = %+v", cfg.Training)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{"server.port": 9100, "simulation.interval": "2s"}`)

	t.Setenv("INTELLIINSPECT_SERVER_PORT", "9200")
	t.Setenv("INTELLIINSPECT_SIMULATION_INTERVAL", "0s")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9200 {
		t.Errorf("Server.Port = %d, want 9200", cfg.Server.Port)
	}
	if cfg.Simulation.Interval != 0 {
		t.Errorf("Simulation.Interval = %s, want 0s", cfg.Simulation.Interval)
	}
}

// TestUnparsableValuesKeepDefaults verifies bad values are skipped with a warning.
func TestUnparsableValuesKeepDefaults(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{"simulation.interval": "soon"}`)
	t.Setenv("INTELLIINSPECT_TRAINING_MAX_DEPTH", "deep")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Simulation.Interval != time.Second {
		t.Errorf("Simulation.Interval = %s, want default", cfg.Simulation.Interval)
	}
	if cfg.Training.MaxDepth != 6 {
		t.Errorf("Training.MaxDepth = %d, want default", cfg.Training.MaxDepth)
	}
}

func TestValidationErrors(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"port", `{"server.port": 70000}`, "server.port"},
		{"timezone", `{"simulation.timezone": "Mars/Olympus"}`, "simulation.timezone"},
		{"level", `{"log.level": "loud"}`, "log.level"},
		{"max depth", `{"training.max_depth": 0}`, "training.max_depth"},
		{"interval", `{"simulation.interval": "-1s"}`, "simulation.interval"},
		{"non-integer port", `{"server.port": 1.5}`, "server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(writeTempConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestSetKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	b := newFileBackend(path)

	if err := setKey(b, "server.port", "9300"); err != nil {
		t.Fatalf("setKey port: %v", err)
	}
	if err := setKey(b, "simulation.interval", "500ms"); err != nil {
		t.Fatalf("setKey interval: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading config file: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("parsing config file: %v", err)
	}
	if got["server.port"] != float64(9300) || got["simulation.interval"] != "500ms" {
		t.Errorf("config file = %v", got)
	}

	clearEnv(t)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != 9300 || cfg.Simulation.Interval != 500*time.Millisecond {
		t.Errorf("reloaded config = %+v", cfg)
	}
}

func TestSetKeyRejects(t *testing.T) {
	b := newFileBackend(filepath.Join(t.TempDir(), "config.json"))

	for _, tc := range [][2]string{
		{"no.such.key", "1"},
		{"server.port", "abc"},
		{"server.port", "0"},
		{"simulation.timezone", "Nowhere/Land"},
		{"log.json", "maybe"},
	} {
		if err := setKey(b, tc[0], tc[1]); err == nil {
			t.Errorf("setKey(%q, %q) succeeded", tc[0], tc[1])
		}
	}
}

func TestShowAllCoversValidKeys(t *testing.T) {
	infos := ShowAll(defaults())
	keys := ValidKeys()
	if len(infos) != len(keys) {
		t.Fatalf("ShowAll returned %d keys, ValidKeys %d", len(infos), len(keys))
	}
	for i, info := range infos {
		if info.Key != keys[i] {
			t.Errorf("key %d = %q, want %q", i, info.Key, keys[i])
		}
		if !strings.HasPrefix(info.EnvVar, envPrefix) {
			t.Errorf("EnvVar %q lacks prefix", info.EnvVar)
		}
	}
}

func TestEnsembleShapeIsNotConfigurable(t *testing.T) {
	b := newFileBackend(filepath.Join(t.TempDir(), "config.json"))

	for _, key := range []string{"training.rounds", "training.learning_rate"} {
		err := setKey(b, key, "1")
		if err == nil {
			t.Fatalf("setKey(%q) succeeded", key)
		}
		if !strings.Contains(err.Error(), "training.max_depth") {
			t.Errorf("error = %q, want it to list the valid keys", err)
		}
		if err := UnsetKey(key); err == nil {
			t.Errorf("UnsetKey(%q) succeeded", key)
		}
	}
}
