// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads scmactivity settings from YAML, the environment and
// command line overrides.
//
// Precedence, lowest first: DefaultConfig, the YAML file, SCM_ACTIVITY_*
// environment variables, explicit overrides applied by the caller. The
// result is validated once and then passed around by pointer.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/scmactivity/services/scmactivity/scm"
)

// Environment variables read by ApplyEnv.
const (
	EnvUser     = "SCM_ACTIVITY_USER"
	EnvPassword = "SCM_ACTIVITY_PASSWORD"
	EnvURL      = "SCM_ACTIVITY_URL"
)

// DefaultFileName is looked up in the working directory when no config
// path is given.
const DefaultFileName = "scmactivity.yaml"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// Config is the complete tool configuration.
type Config struct {
	// Enabled turns SCM activity on.
	Enabled bool `yaml:"enabled"`

	// URL is "scm:<kind>:<location>". Guessed from the base dir when blank.
	URL string `yaml:"url"`

	User     string `yaml:"user"`
	Password string `yaml:"password"`

	IgnoreLocalModifications bool `yaml:"ignore_local_modifications"`

	// ThreadCount bounds concurrent blame calls.
	ThreadCount int `yaml:"thread_count" validate:"gte=1,lte=128"`

	// BlameTimeout bounds each blame call. Zero disables the bound.
	BlameTimeout time.Duration `yaml:"blame_timeout" validate:"gte=0"`

	// CommandTimeout bounds status queries. Zero uses the backend default.
	CommandTimeout time.Duration `yaml:"command_timeout" validate:"gte=0"`

	// MaxBlamesPerSecond throttles blame calls. Zero is unlimited.
	MaxBlamesPerSecond float64 `yaml:"max_blames_per_second" validate:"gte=0,lte=10000"`

	Project   ProjectConfig   `yaml:"project"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Server    ServerConfig    `yaml:"server"`
}

// ProjectConfig describes the analysed project.
type ProjectConfig struct {
	BaseDir    string   `yaml:"base_dir" validate:"required"`
	SourceDirs []string `yaml:"source_dirs,omitempty"`
	TestDirs   []string `yaml:"test_dirs,omitempty"`
	Language   string   `yaml:"language"`
	Exclusions []string `yaml:"exclusions,omitempty"`
}

// StoreConfig locates the measure database.
type StoreConfig struct {
	Path     string `yaml:"path" validate:"required_unless=InMemory true"`
	InMemory bool   `yaml:"in_memory"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// TelemetryConfig selects OpenTelemetry exporters.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		ThreadCount: 4,
		Project: ProjectConfig{
			BaseDir: ".",
		},
		Store: StoreConfig{
			Path: ".scmactivity",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "scmactivity",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
		},
		Server: ServerConfig{
			Addr: ":8090",
		},
	}
}

// Load reads path over the defaults, applies the environment and
// validates.
//
// # Description
//
// An empty path tries DefaultFileName and silently keeps the defaults when
// it does not exist. An explicit path that does not exist is an error.
//
// # Outputs
//
//   - *Config: The loaded configuration.
//   - error: Read, parse or validation failure (ErrInvalidConfig).
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads path over the defaults without applying the environment
// or validating. Callers that apply flag overrides use this and validate
// afterwards.
func LoadFile(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overrides credentials and URL from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvUser); ok {
		c.User = v
	}
	if v, ok := lookup(EnvPassword); ok {
		c.Password = v
	}
	if v, ok := lookup(EnvURL); ok && strings.TrimSpace(v) != "" {
		c.URL = v
	}
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ResolvedURL returns URL, or the URL guessed from the project base dir
// when URL is blank. The result may still be blank.
func (c *Config) ResolvedURL() string {
	if strings.TrimSpace(c.URL) != "" {
		return strings.TrimSpace(c.URL)
	}
	return scm.GuessURL(c.Project.BaseDir)
}

// Credentials moves User and Password into an scm.Credentials and clears
// the plain-text password from the config.
func (c *Config) Credentials() *scm.Credentials {
	creds := scm.NewCredentials(c.User, c.Password)
	c.Password = ""
	return creds
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	out := *c
	if out.Password != "" {
		out.Password = "******"
	}
	return out
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
