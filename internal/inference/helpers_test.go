package inference

import (
	"testing"

	"github.com/samcharles93/quill/internal/logger"
	"github.com/samcharles93/quill/internal/model"
	"github.com/samcharles93/quill/internal/tokenizer"
)

const testEOT = 256

// byteTokens is a merge-free vocabulary: one id per byte, then <|endoftext|>.
func byteTokens() []string {
	tokens := make([]string, 0, 257)
	for b := range 256 {
		tokens = append(tokens, string(tokenizer.ByteSymbol(byte(b))))
	}
	return append(tokens, tokenizer.EndOfText)
}

func newTestTokenizer(t testing.TB) *tokenizer.GPT2Tokenizer {
	t.Helper()
	tok, err := tokenizer.NewGPT2(byteTokens(), nil)
	if err != nil {
		t.Fatalf("tokenizer: %v", err)
	}
	return tok
}

func testHyperparameters() model.Hyperparameters {
	return model.Hyperparameters{
		VocabSize:        257,
		ContextLength:    16,
		EmbedWidth:       8,
		HeadCount:        2,
		LayerCount:       2,
		LayerNormEpsilon: model.DefaultLayerNormEpsilon,
	}
}

func newTestModel(t testing.TB) *model.Model {
	t.Helper()
	hp := testHyperparameters()
	m, err := model.New(hp, model.NewRandomWeights(hp, 11, 0.3))
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	return m
}

func newTestGenerator(t testing.TB, m Stepper) *Generator {
	t.Helper()
	if m == nil {
		m = newTestModel(t)
	}
	g, err := NewGenerator(m, newTestTokenizer(t), logger.Discard())
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	return g
}

// riggedStepper runs the real forward pass and then forces the last-position
// argmax of each row to pick(step, row). A negative pick leaves the row alone.
type riggedStepper struct {
	inner *model.Model
	pick  func(step, row int) int
	steps int
}

func (r *riggedStepper) Hyperparameters() model.Hyperparameters { return r.inner.Hyperparameters() }

func (r *riggedStepper) Step(tokens [][]int, cache *model.KVCache) (*model.Logits, *model.KVCache, error) {
	out, cache, err := r.inner.Step(tokens, cache)
	if err != nil {
		return nil, nil, err
	}
	for b := range out.Batch {
		if id := r.pick(r.steps, b); id >= 0 {
			out.Last(b)[id] = 1e4
		}
	}
	r.steps++
	return out, cache, nil
}

// sequence picks ids[step] for every row and stays on the last id afterwards.
func sequence(ids ...int) func(step, row int) int {
	return func(step, _ int) int {
		if step >= len(ids) {
			return ids[len(ids)-1]
		}
		return ids[step]
	}
}

type panicStepper struct{ hp model.Hyperparameters }

func (p panicStepper) Hyperparameters() model.Hyperparameters { return p.hp }

func (p panicStepper) Step([][]int, *model.KVCache) (*model.Logits, *model.KVCache, error) {
	panic("boom")
}

func greedy(maxTokens int) Request {
	req := DefaultRequest()
	req.TopK = 1
	req.Seed = 1
	req.MaxTokens = maxTokens
	return req
}
