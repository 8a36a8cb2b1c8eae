// Package model implements the GPT-2 decoder forward pass with an
// incremental key/value cache.
package model

import (
	"errors"
	"fmt"

	"github.com/samcharles93/quill/internal/tensor"
)

// Model is a loaded GPT-2. It is immutable, so one Model can serve any
// number of concurrent sessions as long as each session owns its KVCache.
type Model struct {
	hp Hyperparameters
	w  *Weights
}

// New validates hp and the weight shapes and returns a Model.
func New(hp Hyperparameters, w *Weights) (*Model, error) {
	if err := hp.Validate(); err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ConfigError{Field: "weights", Reason: "nil"}
	}
	if err := w.Validate(hp); err != nil {
		return nil, err
	}
	return &Model{hp: hp, w: w}, nil
}

// Hyperparameters returns the model shape.
func (m *Model) Hyperparameters() Hyperparameters { return m.hp }

// Weights exposes the model tensors read-only.
func (m *Model) Weights() *Weights { return m.w }

// NewCache returns an empty cache for batch rows.
func (m *Model) NewCache(batch int) *KVCache { return NewKVCache(m.hp, batch) }

// Forward runs tokens through the model from position zero.
func (m *Model) Forward(tokens [][]int) (*Logits, error) {
	logits, _, err := m.Step(tokens, nil)
	return logits, err
}

// Step processes tokens[b][t] at positions cache.SeenLength()+t and returns
// logits for every position processed. A nil cache starts a new sequence.
// On success the cache is extended in place by len(tokens[0]) positions and
// returned; on error it is left untouched.
func (m *Model) Step(tokens [][]int, cache *KVCache) (*Logits, *KVCache, error) {
	batch := len(tokens)
	if batch == 0 {
		return nil, nil, errors.New("step: empty batch")
	}
	steps := len(tokens[0])
	if steps == 0 {
		return nil, nil, errors.New("step: no tokens")
	}
	for b, row := range tokens {
		if len(row) != steps {
			return nil, nil, fmt.Errorf("step: row %d has %d tokens, row 0 has %d", b, len(row), steps)
		}
		for t, id := range row {
			if id < 0 || id >= m.hp.VocabSize {
				return nil, nil, fmt.Errorf("step: row %d position %d: token id %d out of range [0, %d)", b, t, id, m.hp.VocabSize)
			}
		}
	}
	if cache == nil {
		cache = m.NewCache(batch)
	} else if cache.batch != batch {
		return nil, nil, fmt.Errorf("step: cache has %d rows, got %d", cache.batch, batch)
	}
	past := cache.seen
	if past+steps > m.hp.ContextLength {
		return nil, nil, ContextOverflowError{Position: past + steps - 1, ContextLength: m.hp.ContextLength}
	}

	c := m.hp.EmbedWidth
	rows := batch * steps
	x := tensor.NewMat(rows, c)
	for b, row := range tokens {
		for t, id := range row {
			h := x.Row(b*steps + t)
			copy(h, m.w.TokenEmbedding.Row(id))
			tensor.Add(h, m.w.PositionEmbedding.Row(past+t))
		}
	}

	s := newScratch(rows, c)
	presents := make([]LayerKV, len(m.w.Blocks))
	for i := range m.w.Blocks {
		presents[i] = m.block(&m.w.Blocks[i], &x, s, cache.layers[i], batch, steps, past)
	}

	layerNormRows(&s.normed, &x, m.w.FinalNorm, m.hp.LayerNormEpsilon)
	out := tensor.NewMat(rows, m.hp.VocabSize)
	tensor.MatMulTransB(&out, &s.normed, &m.w.TokenEmbedding)

	cache.extend(presents, steps)
	return &Logits{Batch: batch, Steps: steps, Vocab: m.hp.VocabSize, Data: out.Data}, cache, nil
}

// scratch holds per-call buffers reused across blocks.
type scratch struct {
	normed tensor.Mat // [rows, C]
	qkv    tensor.Mat // [rows, 3C]
	attn   tensor.Mat // [rows, C]
	proj   tensor.Mat // [rows, C]
	fc     tensor.Mat // [rows, 4C]
}

func newScratch(rows, c int) *scratch {
	return &scratch{
		normed: tensor.NewMat(rows, c),
		qkv:    tensor.NewMat(rows, 3*c),
		attn:   tensor.NewMat(rows, c),
		proj:   tensor.NewMat(rows, c),
		fc:     tensor.NewMat(rows, 4*c),
	}
}

func layerNormRows(dst, src *tensor.Mat, ln LayerNorm, eps float32) {
	for i := 0; i < src.R; i++ {
		tensor.LayerNorm(dst.Row(i), src.Row(i), ln.Gain, ln.Bias, eps)
	}
}
