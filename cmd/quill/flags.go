package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quill/internal/logger"
)

var (
	modelDir      string
	maxContext    int64
	randomWeights bool
	configFile    string
	logLevel      string
	logFormat     string
	debug         bool

	// cfg is the user config file, read once in setup.
	cfg Config
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "model directory (encoder.json, vocab.bpe, hparams.json, model.safetensors)",
			Sources:     cli.EnvVars(envModelDir),
			Destination: &modelDir,
		},
		&cli.Int64Flag{
			Name:        "max-context",
			Aliases:     []string{"max-ctx", "ctx", "c"},
			Usage:       "cap the context length (0 = model default)",
			Destination: &maxContext,
		},
		&cli.BoolFlag{
			Name:        "random-weights",
			Usage:       "ignore model.safetensors and use seeded random weights",
			Destination: &randomWeights,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "config file (default ~/.config/quill/config.yaml)",
			Sources:     cli.EnvVars(envConfigFile),
			Destination: &configFile,
		},
	}
}

// setup reads the config file and installs the logger on the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := configFile
	if path == "" {
		path = configPath()
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	cfg = loaded

	lc := logger.Config{Level: logLevel, Format: logFormat}
	if cfg.LogLevel != "" && !cmd.IsSet("log-level") {
		lc.Level = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !cmd.IsSet("log-format") {
		lc.Format = cfg.LogFormat
	}
	if debug {
		lc.Level = "debug"
	}
	log, err := logger.FromConfig(lc, os.Stderr)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return logger.WithContext(ctx, log), nil
}
