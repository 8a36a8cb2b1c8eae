package inference

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samcharles93/quill/internal/logger"
	"github.com/samcharles93/quill/internal/model"
	"github.com/samcharles93/quill/internal/tensor"
	"github.com/samcharles93/quill/internal/tokenizer"
)

// Loader builds a Generator from a model directory holding encoder.json
// (or vocab.json), vocab.bpe (or merges.txt), hparams.json (or config.json)
// and model.safetensors.
type Loader struct {
	Logger logger.Logger
	// MaxContext, when positive, lowers n_ctx and trims the position table.
	MaxContext int
	// RandomWeights skips model.safetensors and initialises weights from
	// Seed. Only useful for smoke tests.
	RandomWeights bool
	Seed          int64
}

// Load reads the tokenizer, hyperparameters and weights from dir and returns a
// ready Generator.
func (l Loader) Load(dir string) (*Generator, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("model directory is required")
	}
	log := l.Logger
	if log == nil {
		log = logger.Discard()
	}
	start := time.Now()

	tok, err := tokenizer.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	hp, err := model.LoadHyperparameters(dir)
	if err != nil {
		if !l.RandomWeights {
			return nil, fmt.Errorf("load hyperparameters: %w", err)
		}
		log.Warn("no usable config, using GPT-2 small shape", "error", err)
		hp = model.DefaultHyperparameters()
		hp.VocabSize = tok.VocabSize()
	}

	var w *model.Weights
	if l.RandomWeights {
		w = model.NewRandomWeights(hp, l.Seed, 0.02)
	} else {
		path := filepath.Join(dir, model.WeightsFile)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("load weights: %w", err)
		}
		if w, err = model.LoadFile(path, hp); err != nil {
			return nil, fmt.Errorf("load weights: %w", err)
		}
	}
	hp, w = capContext(hp, w, l.MaxContext)

	m, err := model.New(hp, w)
	if err != nil {
		return nil, err
	}
	gen, err := NewGenerator(m, tok, log)
	if err != nil {
		return nil, err
	}
	log.Info("model loaded",
		"dir", dir,
		"n_vocab", hp.VocabSize,
		"n_ctx", hp.ContextLength,
		"n_embd", hp.EmbedWidth,
		"n_head", hp.HeadCount,
		"n_layer", hp.LayerCount,
		"random", l.RandomWeights,
		"took", time.Since(start),
	)
	return gen, nil
}

func capContext(hp model.Hyperparameters, w *model.Weights, limit int) (model.Hyperparameters, *model.Weights) {
	if limit <= 0 || limit >= hp.ContextLength {
		return hp, w
	}
	c := hp.EmbedWidth
	hp.ContextLength = limit
	w.PositionEmbedding = tensor.NewMatFromData(limit, c, w.PositionEmbedding.Data[:limit*c])
	return hp, w
}
