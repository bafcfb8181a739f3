// Reqtrace - Rule-Driven Request Diagnostics for KestrelDB
// Copyright 2026 KestrelDB Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestreldb/reqtrace

// Package config loads daemon configuration with layered precedence:
// environment variables override the config file, which overrides
// built-in defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the prefix for environment overrides, e.g.
// REQTRACE_SERVER_PORT=9090.
const envPrefix = "REQTRACE_"

// Config is the complete daemon configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Trace   TraceConfig   `koanf:"trace"`
	Stats   StatsConfig   `koanf:"stats"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig covers the listening surfaces.
type ServerConfig struct {
	// Host is the bind address for both listeners.
	Host string `koanf:"host"`
	// Port serves the HTTP operational endpoints.
	Port int `koanf:"port"`
	// AdminPort serves the line-oriented admin console.
	AdminPort int `koanf:"admin_port"`
}

// TraceConfig covers the request diagnostics engine.
type TraceConfig struct {
	LongRequestMS    int    `koanf:"long_request_ms"`
	LongSQLRequestMS int    `koanf:"long_sql_request_ms"`
	LongReqFile      string `koanf:"long_req_file"`
	StatReqFile      string `koanf:"stat_req_file"`
	DiffstatSeconds  int    `koanf:"diffstat_seconds"`
	Truncate         bool   `koanf:"truncate"`
	ArenaChunkBytes  int    `koanf:"arena_chunk_bytes"`
	ArenaMaxBytes    int    `koanf:"arena_max_bytes"`
}

// StatsConfig covers the per-host counter sweep.
type StatsConfig struct {
	SweepSeconds int `koanf:"sweep_seconds"`
}

// LoggingConfig covers the internal diagnostics logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8290,
			AdminPort: 8291,
		},
		Trace: TraceConfig{
			LongRequestMS:    2000,
			LongSQLRequestMS: 5000,
			DiffstatSeconds:  0,
			Truncate:         true,
			ArenaChunkBytes:  64 * 1024,
			ArenaMaxBytes:    4 * 1024 * 1024,
		},
		Stats: StatsConfig{
			SweepSeconds: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration. path may be empty or point at a YAML
// file; a named file that does not exist is an error.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envToKey), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envToKey maps REQTRACE_TRACE_LONG_REQUEST_MS to
// trace.long_request_ms: the first underscore separates the section,
// the rest stay underscores.
func envToKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if i := strings.Index(s, "_"); i >= 0 {
		return s[:i] + "." + s[i+1:]
	}
	return s
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.AdminPort < 1 || c.Server.AdminPort > 65535 {
		return fmt.Errorf("server.admin_port %d out of range", c.Server.AdminPort)
	}
	if c.Server.Port == c.Server.AdminPort {
		return fmt.Errorf("server.port and server.admin_port are both %d", c.Server.Port)
	}
	if c.Trace.LongRequestMS < 0 || c.Trace.LongSQLRequestMS < 0 {
		return fmt.Errorf("long request thresholds must not be negative")
	}
	if c.Trace.DiffstatSeconds < 0 {
		return fmt.Errorf("trace.diffstat_seconds must not be negative")
	}
	if c.Trace.ArenaChunkBytes < 1024 {
		return fmt.Errorf("trace.arena_chunk_bytes %d too small", c.Trace.ArenaChunkBytes)
	}
	if c.Trace.ArenaMaxBytes != 0 && c.Trace.ArenaMaxBytes < c.Trace.ArenaChunkBytes {
		return fmt.Errorf("trace.arena_max_bytes smaller than one chunk")
	}
	if c.Stats.SweepSeconds < 1 {
		return fmt.Errorf("stats.sweep_seconds must be at least 1")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q unknown", c.Logging.Format)
	}
	return nil
}
