// Package config loads the environment knobs and optional YAML file that
// govern a quietmesh node: crypto mode, database paths, and the
// dispatcher retry cap.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// CryptoMode selects between real cryptography and a deterministic
// dummy mode used by tests (spec.md §6, env knob CRYPTO_MODE).
type CryptoMode string

const (
	CryptoModeReal  CryptoMode = "real"
	CryptoModeDummy CryptoMode = "dummy"

	// DefaultRetryCap is the dispatcher loop-protection ceiling
	// (spec.md §4.1, §4.2).
	DefaultRetryCap = 100
)

// Config is the full set of knobs a quietmesh node needs at startup.
type Config struct {
	CryptoMode CryptoMode `yaml:"crypto_mode"`

	// EventDBPath is the SQLite file backing the event store and
	// projected tables. TEST_DB_PATH overrides it for tests; ":memory:"
	// is valid.
	EventDBPath string `yaml:"event_db_path"`

	// SecretsDBPath is the bbolt file backing local-only secret tables
	// (signing_keys, transit_keys, event_keys).
	SecretsDBPath string `yaml:"secrets_db_path"`

	// RetryCap bounds envelope re-emission (spec.md §4.1).
	RetryCap int `yaml:"retry_cap"`

	// JobTickMS is the interval between job-runner ticks.
	JobTickMS int64 `yaml:"job_tick_ms"`

	// MetricsAddr, if non-empty, is the listen address for the
	// Prometheus handler. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns a Config with the spec's documented defaults.
func Default() Config {
	return Config{
		CryptoMode:    CryptoModeReal,
		EventDBPath:   "quietmesh.db",
		SecretsDBPath: "quietmesh-secrets.db",
		RetryCap:      DefaultRetryCap,
		JobTickMS:     1000,
	}
}

// LoadFile reads a YAML config file, starting from Default() and
// overriding only the fields present in the file.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays the documented environment knobs onto cfg, mutating
// and returning it. Env always wins over file config, matching the
// precedence order a node operator expects (file sets a baseline, env
// tweaks a single run).
func ApplyEnv(cfg Config) Config {
	if v := os.Getenv("CRYPTO_MODE"); v != "" {
		cfg.CryptoMode = CryptoMode(v)
	}
	if v := os.Getenv("TEST_DB_PATH"); v != "" {
		cfg.EventDBPath = v
	}
	if v := os.Getenv("QUIETMESH_SECRETS_DB_PATH"); v != "" {
		cfg.SecretsDBPath = v
	}
	if v := os.Getenv("QUIETMESH_RETRY_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryCap = n
		}
	}
	if v := os.Getenv("QUIETMESH_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	return cfg
}

// Load is the standard entrypoint: file (if path non-empty) then env
// overrides.
func Load(path string) (Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return cfg, err
	}
	return ApplyEnv(cfg), nil
}
