package inference

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/samcharles93/quill/internal/logger"
	"github.com/samcharles93/quill/internal/logits"
	"github.com/samcharles93/quill/internal/model"
	"github.com/samcharles93/quill/internal/tensor"
)

func TestGreedyMatchesFullRecompute(t *testing.T) {
	t.Parallel()
	m := newTestModel(t)
	g := newTestGenerator(t, m)

	res, err := g.Generate(context.Background(), greedy(5), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	seq := []int{testEOT}
	for range 5 {
		out, err := m.Forward([][]int{seq})
		if err != nil {
			t.Fatalf("forward: %v", err)
		}
		seq = append(seq, tensor.Argmax(out.Last(0)))
	}
	if got, want := res.Samples[0].Tokens, seq[1:]; !slices.Equal(got, want) {
		t.Fatalf("tokens = %v, want %v", got, want)
	}
	if !slices.Equal(res.PromptTokens, []int{testEOT}) {
		t.Fatalf("prompt tokens = %v", res.PromptTokens)
	}
	if res.Finish != FinishLength {
		t.Fatalf("finish = %q, want %q", res.Finish, FinishLength)
	}
	if res.Stats.TokensGenerated != 5 || res.Stats.PromptTokens != 1 {
		t.Fatalf("stats = %+v", res.Stats)
	}

	again, err := g.Generate(context.Background(), greedy(5), nil)
	if err != nil {
		t.Fatalf("generate again: %v", err)
	}
	if !slices.Equal(again.Samples[0].Tokens, res.Samples[0].Tokens) {
		t.Fatalf("greedy run not repeatable: %v vs %v", again.Samples[0].Tokens, res.Samples[0].Tokens)
	}
}

func TestSeededSamplingIsDeterministic(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t, nil)
	req := DefaultRequest()
	req.Prompt = "seed"
	req.Seed = 42
	req.TopK = 0
	req.Samples = 3
	req.MaxTokens = 6

	a, err := g.Generate(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := g.Generate(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(a.Samples) != 3 {
		t.Fatalf("samples = %d, want 3", len(a.Samples))
	}
	for i := range a.Samples {
		if !slices.Equal(a.Samples[i].Tokens, b.Samples[i].Tokens) {
			t.Fatalf("row %d differs: %v vs %v", i, a.Samples[i].Tokens, b.Samples[i].Tokens)
		}
		if len(a.Samples[i].Tokens) != 6 {
			t.Fatalf("row %d has %d tokens, want 6", i, len(a.Samples[i].Tokens))
		}
	}
	if a.Seed != 42 {
		t.Fatalf("seed = %d, want 42", a.Seed)
	}
}

func TestRandomSeedIsReported(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t, nil)
	req := DefaultRequest()
	req.MaxTokens = 2
	res, err := g.Generate(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Seed < 0 {
		t.Fatalf("seed = %d, want non-negative", res.Seed)
	}
	req.Seed = res.Seed
	replay, err := g.Generate(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !slices.Equal(replay.Samples[0].Tokens, res.Samples[0].Tokens) {
		t.Fatalf("replay = %v, want %v", replay.Samples[0].Tokens, res.Samples[0].Tokens)
	}
}

func TestRunsUntilContextIsFull(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t, nil)
	ctxLen := testHyperparameters().ContextLength

	tests := []struct {
		name   string
		prompt string
		want   int
	}{
		{"start token", "", ctxLen},
		{"short prompt", "abcd", ctxLen - 4 + 1},
		{"full prompt", strings.Repeat("x", ctxLen), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := greedy(0)
			req.Prompt = tt.prompt
			res, err := g.Generate(context.Background(), req, nil)
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			if got := len(res.Samples[0].Tokens); got != tt.want {
				t.Fatalf("generated %d tokens, want %d", got, tt.want)
			}
			if res.Finish != FinishContext {
				t.Fatalf("finish = %q, want %q", res.Finish, FinishContext)
			}
		})
	}
}

func TestBudgetWinsOverContext(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t, nil)
	res, err := g.Generate(context.Background(), greedy(3), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Samples[0].Tokens) != 3 || res.Finish != FinishLength {
		t.Fatalf("got %d tokens, finish %q", len(res.Samples[0].Tokens), res.Finish)
	}
}

func TestPromptLongerThanContext(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t, nil)
	req := greedy(1)
	req.Prompt = strings.Repeat("x", testHyperparameters().ContextLength+1)
	_, err := g.Generate(context.Background(), req, nil)
	if !errors.Is(err, model.ErrContextOverflow) {
		t.Fatalf("err = %v, want ErrContextOverflow", err)
	}
}

func TestEndOfTextIsKeptByDefault(t *testing.T) {
	t.Parallel()
	r := &riggedStepper{inner: newTestModel(t), pick: sequence('a', testEOT, 'b')}
	g := newTestGenerator(t, r)

	res, err := g.Generate(context.Background(), greedy(3), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got, want := res.Samples[0].Tokens, []int{'a', testEOT, 'b'}; !slices.Equal(got, want) {
		t.Fatalf("tokens = %v, want %v", got, want)
	}
	if got, want := res.Text(), "a<|endoftext|>b"; got != want {
		t.Fatalf("text = %q, want %q", got, want)
	}
}

func TestStopAtEndOfText(t *testing.T) {
	t.Parallel()
	r := &riggedStepper{inner: newTestModel(t), pick: sequence('a', 'b', testEOT, 'c')}
	g := newTestGenerator(t, r)

	req := greedy(8)
	req.StopAtEndOfText = true
	res, err := g.Generate(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := res.Text(); got != "ab" {
		t.Fatalf("text = %q, want %q", got, "ab")
	}
	if res.Finish != FinishStop {
		t.Fatalf("finish = %q, want %q", res.Finish, FinishStop)
	}
}

func TestStoppedRowWaitsForOthers(t *testing.T) {
	t.Parallel()
	pick := func(step, row int) int {
		if row == 0 && step == 1 {
			return 'z'
		}
		return 'a' + step
	}
	r := &riggedStepper{inner: newTestModel(t), pick: pick}
	g := newTestGenerator(t, r)

	req := greedy(4)
	req.Samples = 2
	req.StopTokens = []int{'z'}
	res, err := g.Generate(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := res.Samples[0].Text; got != "a" {
		t.Fatalf("row 0 = %q, want %q", got, "a")
	}
	if got := res.Samples[1].Text; got != "abcd" {
		t.Fatalf("row 1 = %q, want %q", got, "abcd")
	}
	if res.Finish != FinishLength {
		t.Fatalf("finish = %q, want %q", res.Finish, FinishLength)
	}
}

func TestStreamMatchesFinalText(t *testing.T) {
	t.Parallel()
	word := []byte("héllo")
	ids := make([]int, len(word))
	for i, b := range word {
		ids[i] = int(b)
	}
	r := &riggedStepper{inner: newTestModel(t), pick: sequence(ids...)}
	g := newTestGenerator(t, r)

	var chunks []string
	res, err := g.Generate(context.Background(), greedy(len(ids)), func(row int, text string) {
		if row != 0 {
			t.Errorf("unexpected row %d", row)
		}
		chunks = append(chunks, text)
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := strings.Join(chunks, ""); got != res.Text() || got != "héllo" {
		t.Fatalf("streamed %q, final %q", got, res.Text())
	}
	if slices.Contains(chunks, "\xc3") {
		t.Fatalf("stream split a rune: %q", chunks)
	}
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Generate(ctx, greedy(2), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestPanicInStepBecomesError(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t, panicStepper{hp: testHyperparameters()})
	_, err := g.Generate(context.Background(), greedy(2), nil)
	if err == nil || !strings.Contains(err.Error(), "panic in Step: boom") {
		t.Fatalf("err = %v, want recovered panic", err)
	}
}

func TestInvalidRequest(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t, nil)

	req := greedy(2)
	req.Temperature = 0
	if _, err := g.Generate(context.Background(), req, nil); !errors.Is(err, logits.ErrInvalidSamplingParameter) {
		t.Fatalf("temperature 0: err = %v", err)
	}
	req = greedy(2)
	req.TopK = -1
	if _, err := g.Generate(context.Background(), req, nil); !errors.Is(err, logits.ErrInvalidSamplingParameter) {
		t.Fatalf("top_k -1: err = %v", err)
	}
	req = greedy(2)
	req.Samples = 0
	if _, err := g.Generate(context.Background(), req, nil); err == nil {
		t.Fatal("expected error for zero samples")
	}
}

func TestNewGeneratorRejectsVocabMismatch(t *testing.T) {
	t.Parallel()
	hp := testHyperparameters()
	hp.VocabSize = 300
	m, err := model.New(hp, model.NewRandomWeights(hp, 1, 0.02))
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	_, err = NewGenerator(m, newTestTokenizer(t), logger.Discard())
	if !errors.Is(err, model.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestGenerateBatch(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t, nil)
	g.Concurrency = 2

	req := DefaultRequest()
	req.Seed = 5
	req.MaxTokens = 3
	prompts := []string{"a", "bb", "ccc"}

	results, err := g.GenerateBatch(context.Background(), prompts, req)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(results) != len(prompts) {
		t.Fatalf("results = %d, want %d", len(results), len(prompts))
	}
	for i, p := range prompts {
		single := req
		single.Prompt = p
		single.Seed = req.Seed + int64(i)
		want, err := g.Generate(context.Background(), single, nil)
		if err != nil {
			t.Fatalf("single %d: %v", i, err)
		}
		if !slices.Equal(results[i].Samples[0].Tokens, want.Samples[0].Tokens) {
			t.Fatalf("prompt %d: batch %v, single %v", i, results[i].Samples[0].Tokens, want.Samples[0].Tokens)
		}
		if results[i].Stats.PromptTokens != len(p) {
			t.Fatalf("prompt %d: prompt tokens %d", i, results[i].Stats.PromptTokens)
		}
	}
}

func TestGenerateBatchReportsFailure(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t, nil)
	req := greedy(1)
	prompts := []string{"ok", strings.Repeat("x", testHyperparameters().ContextLength+1)}
	if _, err := g.GenerateBatch(context.Background(), prompts, req); !errors.Is(err, model.ErrContextOverflow) {
		t.Fatalf("err = %v, want ErrContextOverflow", err)
	}
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t, nil)
	ids, err := g.Encode("hi<|endoftext|>", true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if want := []int{'h', 'i', testEOT}; !slices.Equal(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	text, err := g.Decode(ids)
	if err != nil || text != "hi<|endoftext|>" {
		t.Fatalf("decode = %q, %v", text, err)
	}
}
