// Package config holds tfagg's settings. Defaults are overlaid by an
// optional YAML file, which command line flags override in turn.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ansel1/tfagg/logging"
	"github.com/ansel1/tfagg/results"
)

// Config holds the application configuration
type Config struct {
	RunnerName    string        `yaml:"runner_name"`    // Runner name stamped on every result
	SlowThreshold time.Duration `yaml:"slow_threshold"` // Tests at least this slow are listed in the summary; 0 disables
	Width         int           `yaml:"width"`          // Summary width in columns
	LogLevel      string        `yaml:"log_level"`
	LogFormat     string        `yaml:"log_format"`   // "terminal" or "json"
	MetricsFile   string        `yaml:"metrics_file"` // Prometheus textfile written at exit; empty disables
	MaxLineSize   int           `yaml:"max_line_size"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		RunnerName:    results.DefaultRunnerName,
		SlowThreshold: 10 * time.Second,
		Width:         80,
		LogLevel:      "info",
		LogFormat:     logging.FormatTerminal,
		MaxLineSize:   4 * 1024 * 1024,
	}
}

// Load reads a YAML config file over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for values that can't work.
func (c Config) Validate() error {
	var errs []error
	if c.RunnerName == "" {
		errs = append(errs, errors.New("runner_name must not be empty"))
	}
	if c.SlowThreshold < 0 {
		errs = append(errs, fmt.Errorf("slow_threshold must be >= 0, got %s", c.SlowThreshold))
	}
	if c.Width < 0 {
		errs = append(errs, fmt.Errorf("width must be >= 0, got %d", c.Width))
	}
	if c.MaxLineSize <= 0 {
		errs = append(errs, fmt.Errorf("max_line_size must be > 0, got %d", c.MaxLineSize))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != logging.FormatTerminal && c.LogFormat != logging.FormatJSON {
		errs = append(errs, fmt.Errorf("unknown log_format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
