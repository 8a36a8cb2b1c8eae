package model

import (
	"fmt"

	"github.com/samcharles93/quill/internal/tensor"
)

// Linear is a dense projection with W laid out [in, out].
type Linear struct {
	W tensor.Mat
	B []float32
}

// LayerNorm holds the learned affine transform applied after normalisation.
type LayerNorm struct {
	Gain []float32
	Bias []float32
}

// Block holds one decoder block's parameters.
type Block struct {
	LN1      LayerNorm
	Attn     Linear // C -> 3C, packed q|k|v
	AttnProj Linear // C -> C
	LN2      LayerNorm
	FC       Linear // C -> 4C
	Proj     Linear // 4C -> C
}

// Weights owns every tensor of a model. It is read-only once handed to New.
type Weights struct {
	TokenEmbedding    tensor.Mat // [vocab, C], also the output projection
	PositionEmbedding tensor.Mat // [ctx, C]
	Blocks            []Block
	FinalNorm         LayerNorm
}

func newLinear(in, out int) Linear {
	return Linear{W: tensor.NewMat(in, out), B: make([]float32, out)}
}

func newLayerNorm(c int) LayerNorm {
	ln := LayerNorm{Gain: make([]float32, c), Bias: make([]float32, c)}
	for i := range ln.Gain {
		ln.Gain[i] = 1
	}
	return ln
}

// NewWeights allocates zeroed weights (unit layernorm gains) for hp.
func NewWeights(hp Hyperparameters) *Weights {
	c := hp.EmbedWidth
	w := &Weights{
		TokenEmbedding:    tensor.NewMat(hp.VocabSize, c),
		PositionEmbedding: tensor.NewMat(hp.ContextLength, c),
		Blocks:            make([]Block, hp.LayerCount),
		FinalNorm:         newLayerNorm(c),
	}
	for i := range w.Blocks {
		w.Blocks[i] = Block{
			LN1:      newLayerNorm(c),
			Attn:     newLinear(c, 3*c),
			AttnProj: newLinear(c, c),
			LN2:      newLayerNorm(c),
			FC:       newLinear(c, 4*c),
			Proj:     newLinear(4*c, c),
		}
	}
	return w
}

// NewRandomWeights returns reproducible N(0, stddev²) weights. Biases stay
// zero and layernorm gains stay one, as in GPT-2 initialisation.
func NewRandomWeights(hp Hyperparameters, seed int64, stddev float32) *Weights {
	w := NewWeights(hp)
	tensor.FillNormal(&w.TokenEmbedding, seed, stddev)
	tensor.FillNormal(&w.PositionEmbedding, seed+1, stddev)
	for i := range w.Blocks {
		b := &w.Blocks[i]
		base := seed + int64(2+4*i)
		tensor.FillNormal(&b.Attn.W, base, stddev)
		tensor.FillNormal(&b.AttnProj.W, base+1, stddev)
		tensor.FillNormal(&b.FC.W, base+2, stddev)
		tensor.FillNormal(&b.Proj.W, base+3, stddev)
	}
	return w
}

// Validate checks every tensor shape against hp.
func (w *Weights) Validate(hp Hyperparameters) error {
	c := hp.EmbedWidth
	if err := checkMat("wte", w.TokenEmbedding, hp.VocabSize, c); err != nil {
		return err
	}
	if err := checkMat("wpe", w.PositionEmbedding, hp.ContextLength, c); err != nil {
		return err
	}
	if len(w.Blocks) != hp.LayerCount {
		return ConfigError{Field: "h", Reason: fmt.Sprintf("have %d blocks, want %d", len(w.Blocks), hp.LayerCount)}
	}
	for i, b := range w.Blocks {
		p := fmt.Sprintf("h.%d.", i)
		checks := []error{
			checkNorm(p+"ln_1", b.LN1, c),
			checkLinear(p+"attn.c_attn", b.Attn, c, 3*c),
			checkLinear(p+"attn.c_proj", b.AttnProj, c, c),
			checkNorm(p+"ln_2", b.LN2, c),
			checkLinear(p+"mlp.c_fc", b.FC, c, 4*c),
			checkLinear(p+"mlp.c_proj", b.Proj, 4*c, c),
		}
		for _, err := range checks {
			if err != nil {
				return err
			}
		}
	}
	return checkNorm("ln_f", w.FinalNorm, c)
}

func checkMat(name string, m tensor.Mat, r, c int) error {
	if m.R != r || m.C != c || len(m.Data) < r*c {
		return ConfigError{Field: name, Reason: fmt.Sprintf("shape [%d %d], want [%d %d]", m.R, m.C, r, c)}
	}
	return nil
}

func checkLinear(name string, l Linear, in, out int) error {
	if err := checkMat(name+".weight", l.W, in, out); err != nil {
		return err
	}
	if len(l.B) != out {
		return ConfigError{Field: name + ".bias", Reason: fmt.Sprintf("length %d, want %d", len(l.B), out)}
	}
	return nil
}

func checkNorm(name string, ln LayerNorm, c int) error {
	if len(ln.Gain) != c || len(ln.Bias) != c {
		return ConfigError{Field: name, Reason: fmt.Sprintf("lengths %d/%d, want %d", len(ln.Gain), len(ln.Bias), c)}
	}
	return nil
}
