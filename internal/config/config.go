// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"
)

// Config represents the complete agent configuration
type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Color  string `yaml:"color"`
	}

	Collection struct {
		// Interval between samples of each active target
		Interval time.Duration `yaml:"interval"`
		// Directory that per-target CSVY log files are written to
		Directory string `yaml:"directory"`
		// FlushLog is the path of the auxiliary buffer-flush event log
		// (disabled when empty)
		FlushLog string `yaml:"flushLog"`
		// BufferSize is the size in bytes of each collector's write buffer
		BufferSize int `yaml:"bufferSize"`
	}

	Polling struct {
		// Interval between provider fetches
		Interval time.Duration `yaml:"interval"`
	}

	Kubernetes struct {
		// KubeConfig is an explicit kubeconfig path; empty means auto-detect
		KubeConfig string `yaml:"kubeConfig"`
	}

	Config struct {
		Log        Log        `yaml:"log"`
		Collection Collection `yaml:"collection"`
		Polling    Polling    `yaml:"polling"`
		Kubernetes Kubernetes `yaml:"kubernetes"`
	}
)

const (
	// Flags
	QuietFlag      = "quiet"
	VerboseFlag    = "verbose"
	ColorFlag      = "color"
	DirectoryFlag  = "directory"
	IntervalFlag   = "interval"
	PollFlag       = "poll"
	FlushLogFlag   = "flush-log"
	BufferFlag     = "buffer"
	KubeConfigFlag = "kube-config"
)

const (
	DefaultDirectory  = "/var/log/radvisor/stats"
	DefaultInterval   = 50 * time.Millisecond
	DefaultPoll       = 1000 * time.Millisecond
	DefaultBufferSize = 32 * 1024
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
			Color:  "auto",
		},
		Collection: Collection{
			Interval:   DefaultInterval,
			Directory:  DefaultDirectory,
			BufferSize: DefaultBufferSize,
		},
		Polling: Polling{
			Interval: DefaultPoll,
		},
	}
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFile loads configuration from a file
func FromFile(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Load(file)
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with the kingpin app and returns
// a ConfigUpdaterFn that applies the parsed flags onto a Config; flags that
// were explicitly set override config file settings
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		// Clear the map in case this function is called multiple times
		flagsSet = map[string]bool{}

		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	quiet := app.Flag(QuietFlag, "Only log warnings and errors").Short('q').Bool()
	verbose := app.Flag(VerboseFlag, "Log debug output").Short('v').Bool()
	color := app.Flag(ColorFlag, "Color mode for terminal output").
		Short('c').Default("auto").Enum("auto", "always", "never")

	directory := app.Flag(DirectoryFlag, "Target directory to place log files in ({id}_{timestamp}.log)").
		Short('d').Default(DefaultDirectory).String()
	interval := app.Flag(IntervalFlag, "Collection interval between log entries").
		Short('i').Default(DefaultInterval.String()).Duration()
	poll := app.Flag(PollFlag, "Interval between requests to the provider to get targets").
		Short('p').Default(DefaultPoll.String()).Duration()
	flushLog := app.Flag(FlushLogFlag, "Target location to write a buffer flush event log").
		Short('f').String()
	buffer := app.Flag(BufferFlag, "Size of each per-target log write buffer, in bytes").
		Default("32KiB").Bytes()
	kubeConfig := app.Flag(KubeConfigFlag, "Path of the kubernetes config file (defaults to auto-detection)").
		Short('k').String()

	return func(cfg *Config) error {
		if flagsSet[QuietFlag] && *quiet {
			cfg.Log.Level = "warn"
		}
		// quiet takes precedence when both are given
		if flagsSet[VerboseFlag] && *verbose && cfg.Log.Level != "warn" {
			cfg.Log.Level = "debug"
		}
		if flagsSet[ColorFlag] {
			cfg.Log.Color = *color
		}

		if flagsSet[DirectoryFlag] {
			cfg.Collection.Directory = *directory
		}
		if flagsSet[IntervalFlag] {
			cfg.Collection.Interval = *interval
		}
		if flagsSet[PollFlag] {
			cfg.Polling.Interval = *poll
		}
		if flagsSet[FlushLogFlag] {
			cfg.Collection.FlushLog = *flushLog
		}
		if flagsSet[BufferFlag] {
			cfg.Collection.BufferSize = int(*buffer)
		}
		if flagsSet[KubeConfigFlag] {
			cfg.Kubernetes.KubeConfig = *kubeConfig
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.Log.Color = strings.TrimSpace(c.Log.Color)
	c.Collection.Directory = strings.TrimSpace(c.Collection.Directory)
	c.Collection.FlushLog = strings.TrimSpace(c.Collection.FlushLog)
	c.Kubernetes.KubeConfig = strings.TrimSpace(c.Kubernetes.KubeConfig)
}

// Validate checks for configuration errors
func (c *Config) Validate() error {
	var errs []string

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
	}
	if c.Log.Color != "auto" && c.Log.Color != "always" && c.Log.Color != "never" {
		errs = append(errs, fmt.Sprintf("invalid color mode: %s", c.Log.Color))
	}

	if c.Collection.Interval <= 0 {
		errs = append(errs, "collection interval must be positive")
	}
	if c.Polling.Interval <= 0 {
		errs = append(errs, "polling interval must be positive")
	}
	if c.Collection.Interval > c.Polling.Interval {
		errs = append(errs, "collection interval must not exceed polling interval")
	}
	if c.Collection.Directory == "" {
		errs = append(errs, "collection directory must be set")
	}
	if c.Collection.BufferSize < 1024 {
		errs = append(errs, "write buffer must be at least 1KiB")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) String() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<error marshaling config: %v>", err)
	}
	return string(out)
}
