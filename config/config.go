// Package config provides YAML configuration parsing for munirpanel.
//
// This package enables running the control panel as a standalone binary
// with a configuration file, as an alternative to the programmatic SDK
// approach.
//
// Example configuration:
//
//	title: Munir
//	port: 8080
//	environment: development
//	poll_interval: 1s
//	quiet_period: 3s
//
//	environments:
//	  development:
//	    base_url: http://localhost:8888/api/0.1
//	  production:
//	    base_url: ${MUNIR_ADAPTER_URL}
//	    timeout: 5s
//	    headers:
//	      X-Beamline: ${BEAMLINE:-i13}
//
// The environment can be overridden with MUNIRPANEL_ENV. Variables are
// looked up in the process environment first and then in a .env file next to
// the configuration file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// EnvVar overrides the configured environment.
	EnvVar = "MUNIRPANEL_ENV"

	defaultPort         = 8080
	defaultEnvironment  = "development"
	defaultResource     = "munir"
	defaultPollInterval = time.Second
	defaultQuietPeriod  = 3 * time.Second

	// minPollInterval keeps a misconfigured panel from hammering the adapter.
	minPollInterval = 100 * time.Millisecond
)

// Config is the root configuration structure for munirpanel.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the panel title. Defaults to "Munir" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// Environment selects an entry of Environments. Defaults to
	// "development"; MUNIRPANEL_ENV takes precedence when set.
	Environment string `yaml:"environment"`

	// Environments maps deployment environment names to adapter settings.
	Environments map[string]EnvironmentConfig `yaml:"environments"`

	// Resource is the adapter resource to poll. Defaults to "munir".
	Resource string `yaml:"resource"`

	// Subsystem selects one subsystem of an adapter in fp mode.
	Subsystem string `yaml:"subsystem"`

	// PollInterval is the time between polls. Defaults to 1s.
	PollInterval Duration `yaml:"poll_interval"`

	// QuietPeriod is how long a field must be left alone before an edit is
	// written. Defaults to 3s.
	QuietPeriod Duration `yaml:"quiet_period"`
}

// EnvironmentConfig holds the adapter settings for one deployment
// environment.
type EnvironmentConfig struct {
	// BaseURL is the adapter API root, e.g. http://host:8888/api/0.1.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	BaseURL string `yaml:"base_url"`

	// Headers are custom HTTP headers sent with each request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Timeout is the per-request timeout. Zero uses the session default.
	Timeout Duration `yaml:"timeout"`
}

// Adapter returns the settings of the selected environment.
func (c *Config) Adapter() EnvironmentConfig {
	return c.Environments[c.Environment]
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

// lookupFunc resolves a variable name.
type lookupFunc func(name string) (string, bool)

// withDotEnv looks names up in the process environment, then in vars.
func withDotEnv(vars map[string]string) lookupFunc {
	return func(name string) (string, bool) {
		if v, ok := os.LookupEnv(name); ok {
			return v, true
		}
		v, ok := vars[name]
		return v, ok
	}
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string, lookup lookupFunc) (string, error) {
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

		value, exists := lookup(varName)
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
// A .env file in the same directory, if present, supplies variables that are
// not set in the process environment. It does not modify the process
// environment. Returns an error if either file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	vars, err := readDotEnv(filepath.Join(filepath.Dir(path), ".env"))
	if err != nil {
		return nil, err
	}
	return parse(data, withDotEnv(vars))
}

// readDotEnv returns the variables in a .env file, or none if it is absent.
func readDotEnv(path string) (map[string]string, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return vars, nil
}

// Parse parses YAML configuration data using the process environment for
// substitution.
//
// Defaults are applied for Port (8080), Environment (development), Resource
// (munir), PollInterval (1s) and QuietPeriod (3s).
func Parse(data []byte) (*Config, error) {
	return parse(data, withDotEnv(nil))
}

func parse(data []byte, lookup lookupFunc) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if env, ok := lookup(EnvVar); ok && env != "" {
		cfg.Environment = env
	}
	if cfg.Environment == "" {
		cfg.Environment = defaultEnvironment
	}
	cfg.Resource = strings.Trim(cfg.Resource, "/")
	if cfg.Resource == "" {
		cfg.Resource = defaultResource
	}
	cfg.Subsystem = strings.Trim(cfg.Subsystem, "/")
	if cfg.PollInterval == 0 {
		cfg.PollInterval = Duration(defaultPollInterval)
	}
	if cfg.QuietPeriod == 0 {
		cfg.QuietPeriod = Duration(defaultQuietPeriod)
	}

	if err := cfg.expandAndValidate(lookup); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate(lookup lookupFunc) error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}
	if c.QuietPeriod.Duration() < 0 {
		return fmt.Errorf("quiet_period cannot be negative, got %s", c.QuietPeriod.Duration())
	}

	if len(c.Environments) == 0 {
		return errors.New("at least one environment must be defined")
	}

	// validate in name order so the first error is deterministic
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		env := c.Environments[name]
		if err := env.expandAndValidate(name, lookup, name == c.Environment); err != nil {
			return err
		}
		c.Environments[name] = env
	}

	if _, ok := c.Environments[c.Environment]; !ok {
		return fmt.Errorf("environment %q is not defined (have %s)", c.Environment, strings.Join(names, ", "))
	}

	return nil
}

// expandAndValidate checks one environment. Unset variables are only an
// error in the selected environment, so a development run does not need
// production secrets.
func (e *EnvironmentConfig) expandAndValidate(name string, lookup lookupFunc, selected bool) error {
	if e.BaseURL == "" {
		return fmt.Errorf("environments[%s]: base_url is required", name)
	}

	expanded, err := expandEnvVars(e.BaseURL, lookup)
	if err != nil {
		if !selected {
			return nil
		}
		return fmt.Errorf("environments[%s]: base_url: %w", name, err)
	}
	e.BaseURL = expanded

	parsedURL, err := url.Parse(e.BaseURL)
	if err != nil {
		return fmt.Errorf("environments[%s]: invalid base_url: %w", name, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("environments[%s]: base_url scheme must be http or https, got %q", name, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("environments[%s]: base_url must include a host", name)
	}

	for k, v := range e.Headers {
		expanded, err := expandEnvVars(v, lookup)
		if err != nil {
			if !selected {
				continue
			}
			return fmt.Errorf("environments[%s]: headers[%s]: %w", name, k, err)
		}
		e.Headers[k] = expanded
	}

	if e.Timeout != 0 && e.Timeout.Duration() < 100*time.Millisecond {
		return fmt.Errorf("environments[%s]: timeout must be at least 100ms if specified, got %s",
			name, e.Timeout.Duration())
	}

	return nil
}
