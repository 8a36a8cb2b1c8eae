package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quill/internal/logger"
	"github.com/samcharles93/quill/internal/model"
)

// initRandomCmd writes hparams.json and a seeded random model.safetensors
// next to an existing vocabulary, giving a loadable directory for smoke tests.
func initRandomCmd() *cli.Command {
	var (
		nCtx   int64
		nEmbd  int64
		nHead  int64
		nLayer int64
		seed   int64
		stddev float64
		force  bool
	)
	return &cli.Command{
		Name:  "init-random",
		Usage: "Write randomly initialised weights into a model directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "model directory holding the vocabulary", Sources: cli.EnvVars(envModelDir), Destination: &modelDir},
			&cli.Int64Flag{Name: "n-ctx", Value: 128, Destination: &nCtx},
			&cli.Int64Flag{Name: "n-embd", Value: 64, Destination: &nEmbd},
			&cli.Int64Flag{Name: "n-head", Value: 4, Destination: &nHead},
			&cli.Int64Flag{Name: "n-layer", Value: 2, Destination: &nLayer},
			&cli.Int64Flag{Name: "seed", Value: 1, Destination: &seed},
			&cli.Float64Flag{Name: "stddev", Value: 0.02, Destination: &stddev},
			&cli.BoolFlag{Name: "force", Usage: "overwrite existing weights", Destination: &force},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			tok, err := loadTokenizer(c)
			if err != nil {
				return err
			}
			dir, _ := resolveModelDir(modelDir)
			if hasAny(dir, []string{model.WeightsFile}) && !force {
				return cli.Exit(fmt.Sprintf("error: %s already has %s (use --force)", dir, model.WeightsFile), 1)
			}
			hp := model.Hyperparameters{
				VocabSize:        tok.VocabSize(),
				ContextLength:    int(nCtx),
				EmbedWidth:       int(nEmbd),
				HeadCount:        int(nHead),
				LayerCount:       int(nLayer),
				LayerNormEpsilon: model.DefaultLayerNormEpsilon,
			}
			m, err := model.New(hp, model.NewRandomWeights(hp, seed, float32(stddev)))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if err := model.SaveDir(dir, m); err != nil {
				return cli.Exit(fmt.Sprintf("error: save: %v", err), 1)
			}
			log.Info("wrote random model", "dir", dir, "parameters", formatCount(parameterCount(hp)), "seed", seed)
			return nil
		},
	}
}
