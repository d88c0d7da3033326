// Package config provides hierarchical configuration loading for LoopForge.
// Precedence: defaults < YAML file < environment variables < CLI flags.
package config

import (
	"strings"
	"time"
)

// Config holds all runtime configuration for the LoopForge hub.
type Config struct {
	Server      Server      `yaml:"server"`
	State       State       `yaml:"state"`
	Planner     Planner     `yaml:"planner"`
	Implementer Implementer `yaml:"implementer"`
	Shell       Shell       `yaml:"shell"`
	Cache       Cache       `yaml:"cache"`
	Breaker     Breaker     `yaml:"breaker"`
	Logging     Logging     `yaml:"logging"`
}

// Server holds HTTP server configuration.
type Server struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	CORSOrigin      string        `yaml:"cors_origin"`
	AuthToken       string        `yaml:"auth_token"`       // empty disables bearer auth
	SessionIdle     time.Duration `yaml:"session_idle"`     // MCP sessions expire after this much inactivity
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       float64       `yaml:"rate_limit"` // /mcp requests per second per client, 0 disables
	RateBurst       int           `yaml:"rate_burst"`
}

// State holds the durable state directory layout. The directory contains
// state.json, events.jsonl, and the artifacts/ subdirectory.
type State struct {
	Dir string `yaml:"dir"`
}

// Planner holds planner CLI configuration.
type Planner struct {
	Binary        string        `yaml:"binary"`
	Model         string        `yaml:"model"`          // empty lets the CLI pick its default
	Extensions    string        `yaml:"extensions"`     // comma-separated extension names
	ExtensionName string        `yaml:"extension_name"` // extension probed for get_status
	Timeout       time.Duration `yaml:"timeout"`
}

// ExtensionList splits the configured comma-separated extensions,
// dropping empty entries.
func (p Planner) ExtensionList() []string {
	if p.Extensions == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(p.Extensions, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Implementer holds implementer CLI configuration.
type Implementer struct {
	Default string        `yaml:"default"` // registry name used when run_cycle omits one
	Timeout time.Duration `yaml:"timeout"`
	WorkDir string        `yaml:"workdir"`
}

// Shell holds run_shell_command configuration.
type Shell struct {
	Enabled bool `yaml:"enabled"`
}

// Cache holds probe cache configuration.
type Cache struct {
	ProbeTTL  time.Duration `yaml:"probe_ttl"`
	MaxSizeMB int64         `yaml:"max_size_mb"`
}

// Breaker holds circuit breaker configuration for planner calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`  // "json" or "text"
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Defaults returns a Config with sensible default values for local use.
func Defaults() Config {
	return Config{
		Server: Server{
			Host:            "127.0.0.1",
			Port:            "8765",
			CORSOrigin:      "*",
			SessionIdle:     30 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			RateBurst:       20,
		},
		State: State{
			Dir: "state",
		},
		Planner: Planner{
			Binary:        "gemini",
			ExtensionName: "conductor",
			Timeout:       120 * time.Second,
		},
		Implementer: Implementer{
			Default: "simulate",
			Timeout: 300 * time.Second,
			WorkDir: ".",
		},
		Shell: Shell{
			Enabled: false,
		},
		Cache: Cache{
			ProbeTTL:  time.Minute,
			MaxSizeMB: 64,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Logging: Logging{
			Level:   "info",
			Format:  "json",
			Service: "loopforge",
		},
	}
}
