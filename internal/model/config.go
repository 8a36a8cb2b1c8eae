package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// DefaultLayerNormEpsilon is used when a config does not set one.
const DefaultLayerNormEpsilon = 1e-5

// Hyperparameters fix the shape of a GPT-2 model.
type Hyperparameters struct {
	VocabSize        int     `json:"n_vocab"`
	ContextLength    int     `json:"n_ctx"`
	EmbedWidth       int     `json:"n_embd"`
	HeadCount        int     `json:"n_head"`
	LayerCount       int     `json:"n_layer"`
	LayerNormEpsilon float32 `json:"layer_norm_epsilon"`
}

// DefaultHyperparameters returns the GPT-2 small shape with no vocabulary;
// VocabSize must come from the checkpoint.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		ContextLength:    1024,
		EmbedWidth:       768,
		HeadCount:        12,
		LayerCount:       12,
		LayerNormEpsilon: DefaultLayerNormEpsilon,
	}
}

// HeadDim is the per-head width.
func (h Hyperparameters) HeadDim() int { return h.EmbedWidth / h.HeadCount }

// Validate checks that every dimension is positive and heads divide the
// embedding width.
func (h Hyperparameters) Validate() error {
	for _, f := range []struct {
		name string
		v    int
	}{
		{"n_vocab", h.VocabSize},
		{"n_ctx", h.ContextLength},
		{"n_embd", h.EmbedWidth},
		{"n_head", h.HeadCount},
		{"n_layer", h.LayerCount},
	} {
		if f.v <= 0 {
			return ConfigError{Field: f.name, Reason: fmt.Sprintf("must be positive, got %d", f.v)}
		}
	}
	if h.EmbedWidth%h.HeadCount != 0 {
		return ConfigError{
			Field:  "n_embd",
			Reason: fmt.Sprintf("%d is not divisible by n_head %d", h.EmbedWidth, h.HeadCount),
		}
	}
	if !(h.LayerNormEpsilon > 0) {
		return ConfigError{Field: "layer_norm_epsilon", Reason: fmt.Sprintf("must be positive, got %g", h.LayerNormEpsilon)}
	}
	return nil
}

// rawHyperparameters accepts both hparams.json and the Hugging Face GPT-2
// config.json spellings.
type rawHyperparameters struct {
	NVocab     *int     `json:"n_vocab"`
	VocabSize  *int     `json:"vocab_size"`
	NCtx       *int     `json:"n_ctx"`
	NPositions *int     `json:"n_positions"`
	NEmbd      *int     `json:"n_embd"`
	HiddenSize *int     `json:"hidden_size"`
	NHead      *int     `json:"n_head"`
	NLayer     *int     `json:"n_layer"`
	Epsilon    *float64 `json:"layer_norm_epsilon"`
}

// ParseHyperparameters overlays a JSON config on DefaultHyperparameters and
// validates the result.
func ParseHyperparameters(raw []byte) (Hyperparameters, error) {
	var r rawHyperparameters
	if err := json.Unmarshal(raw, &r); err != nil {
		return Hyperparameters{}, ConfigError{Field: "json", Reason: err.Error()}
	}
	hp := DefaultHyperparameters()
	pick := func(dst *int, vals ...*int) {
		for _, v := range vals {
			if v != nil {
				*dst = *v
				return
			}
		}
	}
	pick(&hp.VocabSize, r.NVocab, r.VocabSize)
	pick(&hp.ContextLength, r.NCtx, r.NPositions)
	pick(&hp.EmbedWidth, r.NEmbd, r.HiddenSize)
	pick(&hp.HeadCount, r.NHead)
	pick(&hp.LayerCount, r.NLayer)
	if r.Epsilon != nil {
		hp.LayerNormEpsilon = float32(*r.Epsilon)
	}
	if err := hp.Validate(); err != nil {
		return Hyperparameters{}, err
	}
	return hp, nil
}

// ConfigFiles are the names tried by LoadHyperparameters, in order.
var ConfigFiles = []string{"hparams.json", "config.json"}

// LoadHyperparameters reads the first config file found in dir.
func LoadHyperparameters(dir string) (Hyperparameters, error) {
	for _, name := range ConfigFiles {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Hyperparameters{}, err
		}
		hp, err := ParseHyperparameters(raw)
		if err != nil {
			return Hyperparameters{}, fmt.Errorf("%s: %w", name, err)
		}
		return hp, nil
	}
	return Hyperparameters{}, ConfigError{Field: "file", Reason: fmt.Sprintf("none of %v in %s", ConfigFiles, dir)}
}

// Marshal renders hp in hparams.json form.
func (h Hyperparameters) Marshal() ([]byte, error) {
	return json.MarshalIndent(h, "", "  ")
}
