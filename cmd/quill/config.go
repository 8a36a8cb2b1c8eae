package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/quill/internal/inference"
)

// Config represents the quill configuration file (~/.config/quill/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	ModelDir   string `yaml:"model_dir"`
	MaxContext *int64 `yaml:"max_context"`

	// Sampling defaults
	Temperature     *float64 `yaml:"temperature"`
	TopK            *int64   `yaml:"top_k"`
	MaxTokens       *int64   `yaml:"max_tokens"`
	Samples         *int64   `yaml:"samples"`
	Seed            *int64   `yaml:"seed"`
	StopAtEndOfText *bool    `yaml:"stop_at_end_of_text"`

	// Output
	StreamMode string `yaml:"stream_mode"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`

	// Server
	ServerAddress string  `yaml:"server_address"`
	GenerateRPS   float64 `yaml:"generate_rps"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "quill", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config; a
// malformed one is an error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

// applyModelConfig fills model flags the user did not set.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.ModelDir != "" && !c.IsSet("model") {
		modelDir = cfg.ModelDir
	}
	if cfg.MaxContext != nil && !c.IsSet("max-context") {
		maxContext = *cfg.MaxContext
	}
}

// requestDefaults turns the sampling section into request options.
func (cfg Config) requestDefaults() inference.RequestOptions {
	var opts inference.RequestOptions
	opts.Temperature = cfg.Temperature
	if cfg.TopK != nil {
		k := int(*cfg.TopK)
		opts.TopK = &k
	}
	if cfg.MaxTokens != nil {
		n := int(*cfg.MaxTokens)
		opts.MaxTokens = &n
	}
	if cfg.Samples != nil {
		n := int(*cfg.Samples)
		opts.Samples = &n
	}
	opts.Seed = cfg.Seed
	opts.StopAtEndOfText = cfg.StopAtEndOfText
	return opts
}
