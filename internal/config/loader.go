package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "loopforge.yaml"

// CLIFlags holds optional command-line overrides. A nil field means the
// flag was not set and the lower-precedence sources win.
type CLIFlags struct {
	ConfigPath *string
	Port       *string
	StateDir   *string
	LogLevel   *string
}

// ParseFlags parses command-line overrides from args (without the program
// name). Unknown flags are an error.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("loopforge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	configPath := fs.String("config", "", "path to YAML config file")
	configShort := fs.String("c", "", "shorthand for --config")
	port := fs.String("port", "", "HTTP port")
	portShort := fs.String("p", "", "shorthand for --port")
	stateDir := fs.String("state-dir", "", "state directory")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, fmt.Errorf("parse flags: %w", err)
	}

	var flags CLIFlags
	if *configShort != "" {
		configPath = configShort
	}
	if *portShort != "" {
		port = portShort
	}
	if *configPath != "" {
		flags.ConfigPath = configPath
	}
	if *port != "" {
		flags.Port = port
	}
	if *stateDir != "" {
		flags.StateDir = stateDir
	}
	if *logLevel != "" {
		flags.LogLevel = logLevel
	}
	return flags, nil
}

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML path comes from LOOPFORGE_CONFIG or DefaultConfigFile; a
// missing file is not an error.
func Load() (*Config, error) {
	cfg, _, err := LoadWithCLI(CLIFlags{})
	return cfg, err
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// LoadWithCLI loads the full hierarchy with CLI flags at the top:
// defaults < YAML < ENV < flags. It returns the YAML path it used.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if v := os.Getenv("LOOPFORGE_CONFIG"); v != "" {
		path = v
	}
	if flags.ConfigPath != nil {
		path = *flags.ConfigPath
	}

	cfg := Defaults()

	if err := loadYAML(&cfg, path); err != nil {
		return nil, "", fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, "", fmt.Errorf("config validate: %w", err)
	}

	return &cfg, path, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Host, "LOOPFORGE_HOST")
	setString(&cfg.Server.Port, "LOOPFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "LOOPFORGE_CORS_ORIGIN")
	setString(&cfg.Server.AuthToken, "LOOPFORGE_AUTH_TOKEN")
	setDuration(&cfg.Server.SessionIdle, "LOOPFORGE_SESSION_IDLE")
	setDuration(&cfg.Server.ShutdownTimeout, "LOOPFORGE_SHUTDOWN_TIMEOUT")
	setFloat64(&cfg.Server.RateLimit, "LOOPFORGE_RATE_LIMIT")
	setInt(&cfg.Server.RateBurst, "LOOPFORGE_RATE_BURST")
	setString(&cfg.State.Dir, "LOOPFORGE_STATE_DIR")
	setString(&cfg.Planner.Binary, "LOOPFORGE_PLANNER_BIN")
	setString(&cfg.Planner.Model, "LOOPFORGE_PLANNER_MODEL")
	setString(&cfg.Planner.Extensions, "LOOPFORGE_PLANNER_EXTENSIONS")
	setString(&cfg.Planner.ExtensionName, "LOOPFORGE_PLANNER_EXTENSION_NAME")
	setDuration(&cfg.Planner.Timeout, "LOOPFORGE_PLANNER_TIMEOUT")
	setString(&cfg.Implementer.Default, "LOOPFORGE_IMPLEMENTER")
	setDuration(&cfg.Implementer.Timeout, "LOOPFORGE_IMPLEMENTER_TIMEOUT")
	setString(&cfg.Implementer.WorkDir, "LOOPFORGE_WORKDIR")
	setBool(&cfg.Shell.Enabled, "LOOPFORGE_SHELL_ENABLED")
	setDuration(&cfg.Cache.ProbeTTL, "LOOPFORGE_CACHE_PROBE_TTL")
	setInt64(&cfg.Cache.MaxSizeMB, "LOOPFORGE_CACHE_MAX_SIZE_MB")
	setInt(&cfg.Breaker.MaxFailures, "LOOPFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "LOOPFORGE_BREAKER_TIMEOUT")
	setString(&cfg.Logging.Level, "LOOPFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOOPFORGE_LOG_FORMAT")
	setString(&cfg.Logging.Service, "LOOPFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "LOOPFORGE_LOG_ASYNC")
}

// applyCLI overlays set CLI flags onto cfg.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.StateDir != nil {
		cfg.State.Dir = *flags.StateDir
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.State.Dir == "" {
		return errors.New("state.dir is required")
	}
	if cfg.Planner.Binary == "" {
		return errors.New("planner.binary is required")
	}
	if cfg.Implementer.Default == "" {
		return errors.New("implementer.default is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Cache.ProbeTTL <= 0 {
		return errors.New("cache.probe_ttl must be positive")
	}
	if cfg.Server.RateLimit < 0 {
		return errors.New("server.rate_limit must not be negative")
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateBurst < 1 {
		return errors.New("server.rate_burst must be >= 1 when rate limiting is on")
	}
	if f := cfg.Logging.Format; f != "json" && f != "text" {
		return fmt.Errorf("logging.format must be json or text, got %q", f)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
