// Package config provides YAML configuration parsing for the conflux binary.
//
// The library is configured with functional options; this package exists so
// the server can run from a file instead.
//
// Example configuration:
//
//	port: 8080
//	probe_timeout: 10s
//
//	log:
//	  level: info
//	  format: json
//
//	storage:
//	  driver: postgres
//	  dsn: ${DATABASE_URL}
//
//	redis:
//	  addr: ${REDIS_ADDR:-localhost:6379}
//
//	health_checks:
//	  - name: Billing API
//	    url: https://billing.example.com/health
//	    interval: 30s
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers accepted in storage.driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	defaultPort            = 8080
	defaultProbeTimeout    = 10 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultCheckInterval   = 60 * time.Second

	// minCheckInterval matches the engine's one second resolution.
	minCheckInterval = 1 * time.Second
	maxCheckInterval = 24 * time.Hour
)

// Config is the root configuration structure for conflux.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// ProbeTimeout bounds each health check request. Defaults to 10s.
	ProbeTimeout Duration `yaml:"probe_timeout"`

	// ShutdownTimeout bounds how long in-flight probes may finish after
	// a shutdown signal. Defaults to 10s.
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	Log     LogConfig     `yaml:"log"`
	CORS    CORSConfig    `yaml:"cors"`
	Storage StorageConfig `yaml:"storage"`

	// Redis enables publishing recorded notifications when Addr is set.
	Redis RedisConfig `yaml:"redis"`

	// HealthChecks are registered at startup in addition to whatever the
	// storage already holds.
	HealthChecks []HealthCheckConfig `yaml:"health_checks"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`

	// Format is text or json. Defaults to text.
	Format string `yaml:"format"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig selects where notifications and health checks live.
type StorageConfig struct {
	// Driver is memory, sqlite or postgres. Defaults to memory.
	Driver string `yaml:"driver"`

	// DSN is a file path for sqlite and a connection string for postgres.
	// Supports environment variable substitution.
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// HealthCheckConfig defines a health check seeded at startup.
type HealthCheckConfig struct {
	// ID is optional. Without it a stable ID is derived from Name and URL
	// so the same seed is not registered twice across restarts.
	ID string `yaml:"id"`

	// Name defaults to the URL.
	Name string `yaml:"name"`

	// URL supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Method defaults to GET.
	Method string `yaml:"method"`

	// Interval between probes, in whole seconds. Defaults to 60s.
	Interval Duration `yaml:"interval"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data, applies defaults and validates.
//
// Environment variables are expanded in the storage DSN, the Redis address
// and password, and health check URLs.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = Duration(defaultProbeTimeout)
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = Duration(defaultShutdownTimeout)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	for i := range c.HealthChecks {
		hc := &c.HealthChecks[i]
		if hc.Method == "" {
			hc.Method = "GET"
		}
		if hc.Interval == 0 {
			hc.Interval = Duration(defaultCheckInterval)
		}
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Port)
	}
	if c.ProbeTimeout.Duration() < 0 {
		return fmt.Errorf("probe_timeout cannot be negative, got %s", c.ProbeTimeout.Duration())
	}
	if c.ShutdownTimeout.Duration() < 0 {
		return fmt.Errorf("shutdown_timeout cannot be negative, got %s", c.ShutdownTimeout.Duration())
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if err := c.Storage.expandAndValidate(); err != nil {
		return err
	}

	var err error
	if c.Redis.Addr, err = expandEnvVars(c.Redis.Addr); err != nil {
		return fmt.Errorf("redis.addr: %w", err)
	}
	if c.Redis.Password, err = expandEnvVars(c.Redis.Password); err != nil {
		return fmt.Errorf("redis.password: %w", err)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db cannot be negative, got %d", c.Redis.DB)
	}

	seen := make(map[string]int)
	for i := range c.HealthChecks {
		hc := &c.HealthChecks[i]
		label := fmt.Sprintf("health_checks[%d]", i)
		if hc.Name != "" {
			label = fmt.Sprintf("health_checks[%d] (%s)", i, hc.Name)
		}

		if hc.URL == "" {
			return fmt.Errorf("%s: url is required", label)
		}
		expanded, err := expandEnvVars(hc.URL)
		if err != nil {
			return fmt.Errorf("%s: url: %w", label, err)
		}
		hc.URL = expanded

		parsedURL, err := url.Parse(hc.URL)
		if err != nil {
			return fmt.Errorf("%s: invalid url: %w", label, err)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("%s: url scheme must be http or https, got %q", label, parsedURL.Scheme)
		}
		if parsedURL.Host == "" {
			return fmt.Errorf("%s: url must have a host", label)
		}

		hc.Method = strings.ToUpper(hc.Method)
		switch hc.Method {
		case "GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS":
		default:
			return fmt.Errorf("%s: unsupported method %q", label, hc.Method)
		}

		if hc.Interval.Duration() < minCheckInterval {
			return fmt.Errorf("%s: interval must be at least %s, got %s", label, minCheckInterval, hc.Interval.Duration())
		}
		if hc.Interval.Duration() > maxCheckInterval {
			return fmt.Errorf("%s: interval must not exceed %s, got %s", label, maxCheckInterval, hc.Interval.Duration())
		}
		if hc.Interval.Duration()%time.Second != 0 {
			return fmt.Errorf("%s: interval must be a whole number of seconds, got %s", label, hc.Interval.Duration())
		}

		if hc.ID != "" {
			if j, dup := seen[hc.ID]; dup {
				return fmt.Errorf("%s: id %q already used by health_checks[%d]", label, hc.ID, j)
			}
			seen[hc.ID] = i
		}
	}

	return nil
}

func (s *StorageConfig) expandAndValidate() error {
	s.Driver = strings.ToLower(s.Driver)

	expanded, err := expandEnvVars(s.DSN)
	if err != nil {
		return fmt.Errorf("storage.dsn: %w", err)
	}
	s.DSN = expanded

	switch s.Driver {
	case DriverMemory:
		return nil
	case DriverSQLite, DriverPostgres:
		if s.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %q", s.Driver)
		}
		return nil
	default:
		return errors.New("storage.driver must be memory, sqlite or postgres")
	}
}
