package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quill/internal/inference"
	"github.com/samcharles93/quill/internal/logger"
)

// loadGenerator resolves the model directory and loads it with the common
// model flags. seed only matters with --random-weights.
func loadGenerator(ctx context.Context, cmd *cli.Command, seed int64) (*inference.Generator, string, error) {
	seed = max(seed, 0)
	applyModelConfig(cmd, cfg)
	dir, err := resolveModelDir(modelDir)
	if err != nil {
		return nil, "", cli.Exit(fmt.Sprintf("error: resolve model: %v", err), 1)
	}
	loader := inference.Loader{
		Logger:        logger.FromContext(ctx),
		MaxContext:    int(maxContext),
		RandomWeights: randomWeights,
		Seed:          seed,
	}
	g, err := loader.Load(dir)
	if err != nil {
		return nil, "", cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
	}
	return g, dir, nil
}
