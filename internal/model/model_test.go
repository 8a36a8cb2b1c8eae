package model

import (
	"errors"
	"math"
	"testing"
)

func testHyperparameters() Hyperparameters {
	return Hyperparameters{
		VocabSize:        16,
		ContextLength:    8,
		EmbedWidth:       8,
		HeadCount:        2,
		LayerCount:       2,
		LayerNormEpsilon: DefaultLayerNormEpsilon,
	}
}

func newTestModel(t testing.TB) *Model {
	t.Helper()
	hp := testHyperparameters()
	m, err := New(hp, NewRandomWeights(hp, 7, 0.2))
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	return m
}

func compareSlices(t *testing.T, got, want []float32, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range got {
		diff := math.Abs(float64(got[i] - want[i]))
		scale := math.Max(1, math.Abs(float64(want[i])))
		if diff > tol*scale {
			t.Fatalf("index %d: got %v want %v (diff %g)", i, got[i], want[i], diff)
		}
	}
}

func TestIncrementalMatchesFullRecompute(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	seq := []int{3, 1, 4, 1, 5, 9}
	full, err := m.Forward([][]int{seq})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	var cache *KVCache
	for i, id := range seq {
		var logits *Logits
		logits, cache, err = m.Step([][]int{{id}}, cache)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if cache.SeenLength() != i+1 {
			t.Fatalf("step %d: seen length %d", i, cache.SeenLength())
		}
		compareSlices(t, logits.Last(0), full.Row(0, i), 1e-4)
	}
}

func TestPromptThenOneTokenMatchesFourTokenForward(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	_, cache, err := m.Step([][]int{{2, 7, 11}}, nil)
	if err != nil {
		t.Fatalf("prompt step: %v", err)
	}
	next, cache, err := m.Step([][]int{{5}}, cache)
	if err != nil {
		t.Fatalf("continuation step: %v", err)
	}
	if cache.SeenLength() != 4 {
		t.Fatalf("seen length: got %d want 4", cache.SeenLength())
	}
	full, err := m.Forward([][]int{{2, 7, 11, 5}})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	compareSlices(t, next.Last(0), full.Last(0), 1e-4)
}

func TestCausality(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	a, err := m.Forward([][]int{{1, 2, 3, 4, 5, 6}})
	if err != nil {
		t.Fatalf("forward a: %v", err)
	}
	b, err := m.Forward([][]int{{1, 2, 3, 4, 12, 6}})
	if err != nil {
		t.Fatalf("forward b: %v", err)
	}
	for i := range 4 {
		compareSlices(t, b.Row(0, i), a.Row(0, i), 1e-6)
	}
	same := true
	for v, x := range a.Row(0, 4) {
		if x != b.Row(0, 4)[v] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("changing token 4 did not change its own logits")
	}
}

func TestBatchRowsAreIndependent(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	batch, err := m.Forward([][]int{{1, 2, 3}, {9, 8, 7}})
	if err != nil {
		t.Fatalf("batch forward: %v", err)
	}
	for b, row := range [][]int{{1, 2, 3}, {9, 8, 7}} {
		single, err := m.Forward([][]int{row})
		if err != nil {
			t.Fatalf("single forward: %v", err)
		}
		for s := range 3 {
			compareSlices(t, batch.Row(b, s), single.Row(0, s), 1e-5)
		}
	}
}

func TestContextOverflow(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	_, cache, err := m.Step([][]int{{1, 2, 3, 4, 5, 6}}, nil)
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	_, _, err = m.Step([][]int{{1, 2, 3}}, cache)
	var coe ContextOverflowError
	if !errors.As(err, &coe) {
		t.Fatalf("expected ContextOverflowError, got %v", err)
	}
	if coe.Position != 8 || coe.ContextLength != 8 {
		t.Fatalf("unexpected overflow detail: %+v", coe)
	}
	if !errors.Is(err, ErrContextOverflow) {
		t.Fatalf("expected ErrContextOverflow")
	}
	if cache.SeenLength() != 6 {
		t.Fatalf("cache modified on failure: seen %d", cache.SeenLength())
	}

	// Exactly filling the context is allowed.
	if _, cache, err = m.Step([][]int{{1, 2}}, cache); err != nil {
		t.Fatalf("fill context: %v", err)
	}
	if _, _, err = m.Step([][]int{{1}}, cache); !errors.Is(err, ErrContextOverflow) {
		t.Fatalf("expected overflow past full context, got %v", err)
	}
}

func TestStepRejectsBadInput(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	cases := map[string][][]int{
		"empty batch":  {},
		"empty row":    {{}},
		"ragged":       {{1, 2}, {3}},
		"negative id":  {{-1}},
		"id too large": {{16}},
	}
	for name, tokens := range cases {
		if _, _, err := m.Step(tokens, nil); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	_, cache, err := m.Step([][]int{{1}}, nil)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if _, _, err := m.Step([][]int{{1}, {2}}, cache); err == nil {
		t.Fatalf("expected batch mismatch error")
	}
}

func TestCacheShapeAndClone(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	_, cache, err := m.Step([][]int{{1, 2, 3}, {4, 5, 6}}, nil)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if got, want := cache.Shape(), [4]int{2, 2, 3, 4}; got != want {
		t.Fatalf("shape: got %v want %v", got, want)
	}
	for i := range 2 {
		l := cache.Layer(i)
		if len(l.Keys) != 4 || len(l.Keys[3]) != 3*4 || len(l.Values[3]) != 3*4 {
			t.Fatalf("layer %d: unexpected entry sizes", i)
		}
	}

	fork := cache.Clone()
	a, _, err := m.Step([][]int{{7}, {7}}, cache)
	if err != nil {
		t.Fatalf("step original: %v", err)
	}
	b, fork, err := m.Step([][]int{{7}, {7}}, fork)
	if err != nil {
		t.Fatalf("step fork: %v", err)
	}
	compareSlices(t, b.Data, a.Data, 1e-6)
	if fork.SeenLength() != 4 || cache.SeenLength() != 4 {
		t.Fatalf("unexpected seen lengths %d/%d", fork.SeenLength(), cache.SeenLength())
	}
}

func TestLogitsShape(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	logits, err := m.Forward([][]int{{1, 2, 3}})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if logits.Batch != 1 || logits.Steps != 3 || logits.Vocab != 16 || len(logits.Data) != 48 {
		t.Fatalf("unexpected logits shape %+v", logits)
	}
	if rows := logits.LastRows(); len(rows) != 1 || len(rows[0]) != 16 {
		t.Fatalf("unexpected last rows")
	}
}

func TestNewRejectsMismatchedWeights(t *testing.T) {
	t.Parallel()

	hp := testHyperparameters()
	other := hp
	other.ContextLength = 4
	_, err := New(hp, NewRandomWeights(other, 1, 0.02))
	var ce ConfigError
	if !errors.As(err, &ce) || ce.Field != "wpe" {
		t.Fatalf("expected ConfigError on wpe, got %v", err)
	}
	if _, err := New(hp, nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for nil weights, got %v", err)
	}
}
