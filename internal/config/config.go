package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type PrometheusCfg struct {
	Port int `yaml:"port" json:"port"` // zero disables the metrics server
}

type LoggingCfg struct {
	Level        string `yaml:"level" json:"level"`                 // zerolog level name (default: info)
	File         string `yaml:"file" json:"file"`                   // optional log file in addition to stderr
	RotationDays int    `yaml:"rotation_days" json:"rotation_days"` // Days to keep logs before rotation
}

type SafetyCfg struct {
	AllowedRoots   []string `yaml:"allowed_roots" json:"allowed_roots"`     // empty allows any unprotected path
	ProtectedPaths []string `yaml:"protected_paths" json:"protected_paths"` // added to the built-in protected set
}

type Config struct {
	Threads       int           `yaml:"threads" json:"threads"`     // goroutines per pool, zero for none
	Processes     int           `yaml:"processes" json:"processes"` // worker processes, zero for none
	Prometheus    PrometheusCfg `yaml:"prometheus" json:"prometheus"`
	Logging       LoggingCfg    `yaml:"logging" json:"logging"`
	Safety        SafetyCfg     `yaml:"safety" json:"safety"`
	DatabasePath  string        `yaml:"database_path" json:"database_path"`   // SQLite deletion history; empty disables it
	WorkerCommand []string      `yaml:"worker_command" json:"worker_command"` // defaults to the running executable
}

var (
	errNegativeThreads   = errors.New("threads cannot be negative")
	errNegativeProcesses = errors.New("processes cannot be negative")
	errInvalidPort       = errors.New("prometheus.port must be between 0 and 65535")
	errInvalidLevel      = errors.New("logging.level is not a known level")
	errInvalidPath       = errors.New("path must be absolute")
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	_ = cfg.validateAndDefault()
	return cfg
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateAndDefault(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate re-checks c, filling defaults, after fields were changed in code.
func (c *Config) Validate() error {
	return c.validateAndDefault()
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) validateAndDefault() error {
	if c.Threads < 0 {
		return errNegativeThreads
	}
	if c.Processes < 0 {
		return errNegativeProcesses
	}

	if c.Prometheus.Port < 0 || c.Prometheus.Port > 65535 {
		return errInvalidPort
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		return fmt.Errorf("%w: %q", errInvalidLevel, c.Logging.Level)
	}
	if c.Logging.RotationDays <= 0 {
		c.Logging.RotationDays = 30 // Default: keep logs for 30 days
	}
	if c.Logging.File != "" && !filepath.IsAbs(c.Logging.File) {
		return fmt.Errorf("logging.file %q: %w", c.Logging.File, errInvalidPath)
	}

	if c.DatabasePath != "" && !filepath.IsAbs(c.DatabasePath) {
		return fmt.Errorf("database_path %q: %w", c.DatabasePath, errInvalidPath)
	}

	for _, root := range c.Safety.AllowedRoots {
		if !filepath.IsAbs(root) {
			return fmt.Errorf("safety.allowed_roots %q: %w", root, errInvalidPath)
		}
	}
	for _, p := range c.Safety.ProtectedPaths {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("safety.protected_paths %q: %w", p, errInvalidPath)
		}
	}

	return nil
}
