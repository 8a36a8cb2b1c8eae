package model

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/samcharles93/quill/internal/safetensors"
	"github.com/samcharles93/quill/internal/tensor"
)

// WeightsFile is the checkpoint name expected in a model directory.
const WeightsFile = "model.safetensors"

// tensorSource is the subset of a checkpoint the loader needs.
type tensorSource interface {
	Tensor(name string) (safetensors.TensorInfo, bool)
	ReadTensorF32(name string) ([]float32, safetensors.TensorInfo, error)
}

// tensorPrefix detects the "transformer." prefix used by GPT2LMHeadModel
// checkpoints; bare GPT2Model checkpoints have none.
func tensorPrefix(src tensorSource) (string, error) {
	for _, p := range []string{"", "transformer."} {
		if _, ok := src.Tensor(p + "wte.weight"); ok {
			return p, nil
		}
	}
	return "", ConfigError{Field: "wte.weight", Reason: "tensor not found"}
}

// LoadWeights reads GPT-2 weights in Hugging Face naming from src. Every
// tensor is converted to float32 and checked against hp.
func LoadWeights(src tensorSource, hp Hyperparameters) (*Weights, error) {
	if err := hp.Validate(); err != nil {
		return nil, err
	}
	prefix, err := tensorPrefix(src)
	if err != nil {
		return nil, err
	}
	c := hp.EmbedWidth
	l := loader{src: src, prefix: prefix}

	w := &Weights{
		TokenEmbedding:    l.mat("wte.weight", hp.VocabSize, c),
		PositionEmbedding: l.mat("wpe.weight", hp.ContextLength, c),
		Blocks:            make([]Block, hp.LayerCount),
		FinalNorm:         l.norm("ln_f", c),
	}
	for i := range w.Blocks {
		p := fmt.Sprintf("h.%d.", i)
		w.Blocks[i] = Block{
			LN1:      l.norm(p+"ln_1", c),
			Attn:     l.linear(p+"attn.c_attn", c, 3*c),
			AttnProj: l.linear(p+"attn.c_proj", c, c),
			LN2:      l.norm(p+"ln_2", c),
			FC:       l.linear(p+"mlp.c_fc", c, 4*c),
			Proj:     l.linear(p+"mlp.c_proj", 4*c, c),
		}
	}
	if l.err != nil {
		return nil, l.err
	}
	return w, nil
}

// LoadFile opens a safetensors checkpoint and reads weights for hp.
func LoadFile(path string, hp Hyperparameters) (*Weights, error) {
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open weights: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadWeights(f, hp)
}

// LoadDir reads the hyperparameters and weights of a model directory.
func LoadDir(dir string) (*Model, error) {
	hp, err := LoadHyperparameters(dir)
	if err != nil {
		return nil, err
	}
	w, err := LoadFile(filepath.Join(dir, WeightsFile), hp)
	if err != nil {
		return nil, err
	}
	return New(hp, w)
}

// loader records the first failure so LoadWeights reads linearly.
type loader struct {
	src    tensorSource
	prefix string
	err    error
}

func (l *loader) read(name string, shape ...int) []float32 {
	if l.err != nil {
		return nil
	}
	data, info, err := l.src.ReadTensorF32(l.prefix + name)
	if err != nil {
		l.err = fmt.Errorf("read %s: %w", name, err)
		return nil
	}
	if !slices.Equal(info.Shape, shape) {
		l.err = ConfigError{Field: name, Reason: fmt.Sprintf("shape %v, want %v", info.Shape, shape)}
		return nil
	}
	return data
}

func (l *loader) mat(name string, r, c int) tensor.Mat {
	data := l.read(name, r, c)
	if data == nil {
		return tensor.Mat{}
	}
	return tensor.NewMatFromData(r, c, data)
}

func (l *loader) linear(name string, in, out int) Linear {
	return Linear{W: l.mat(name+".weight", in, out), B: l.read(name+".bias", out)}
}

func (l *loader) norm(name string, c int) LayerNorm {
	return LayerNorm{Gain: l.read(name+".weight", c), Bias: l.read(name+".bias", c)}
}

// Tensors returns w under Hugging Face GPT-2 names, ready for
// safetensors.WriteF32.
func (w *Weights) Tensors() map[string]safetensors.F32Tensor {
	out := make(map[string]safetensors.F32Tensor)
	mat := func(name string, m tensor.Mat) {
		out[name] = safetensors.F32Tensor{Shape: []int{m.R, m.C}, Data: m.Data[:m.R*m.C]}
	}
	vec := func(name string, v []float32) {
		out[name] = safetensors.F32Tensor{Shape: []int{len(v)}, Data: v}
	}
	norm := func(name string, ln LayerNorm) {
		vec(name+".weight", ln.Gain)
		vec(name+".bias", ln.Bias)
	}
	linear := func(name string, l Linear) {
		mat(name+".weight", l.W)
		vec(name+".bias", l.B)
	}
	mat("wte.weight", w.TokenEmbedding)
	mat("wpe.weight", w.PositionEmbedding)
	for i, b := range w.Blocks {
		p := fmt.Sprintf("h.%d.", i)
		norm(p+"ln_1", b.LN1)
		linear(p+"attn.c_attn", b.Attn)
		linear(p+"attn.c_proj", b.AttnProj)
		norm(p+"ln_2", b.LN2)
		linear(p+"mlp.c_fc", b.FC)
		linear(p+"mlp.c_proj", b.Proj)
	}
	norm("ln_f", w.FinalNorm)
	return out
}

// SaveDir writes hparams.json and model.safetensors for m into dir.
func SaveDir(dir string, m *Model) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	raw, err := m.hp.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "hparams.json"), raw, 0o644); err != nil {
		return err
	}
	return safetensors.WriteF32(filepath.Join(dir, WeightsFile), m.w.Tensors(), map[string]string{"format": "pt"})
}
