package api

import (
	"net/http"
	"testing"

	"github.com/goccy/go-json"

	"github.com/samcharles93/quill/internal/inference"
	"github.com/samcharles93/quill/internal/logger"
	"github.com/samcharles93/quill/internal/model"
	"github.com/samcharles93/quill/internal/tokenizer"
)

func newTinyGenerator(t *testing.T) *inference.Generator {
	t.Helper()
	tokens := make([]string, 0, 257)
	for b := range 256 {
		tokens = append(tokens, string(tokenizer.ByteSymbol(byte(b))))
	}
	tokens = append(tokens, tokenizer.EndOfText)
	tok, err := tokenizer.NewGPT2(tokens, nil)
	if err != nil {
		t.Fatalf("tokenizer: %v", err)
	}
	hp := model.Hyperparameters{VocabSize: 257, ContextLength: 8, EmbedWidth: 8, HeadCount: 2, LayerCount: 1, LayerNormEpsilon: model.DefaultLayerNormEpsilon}
	m, err := model.New(hp, model.NewRandomWeights(hp, 3, 0.2))
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	g, err := inference.NewGenerator(m, tok, logger.Discard())
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	return g
}

func TestServerWithGenerator(t *testing.T) {
	t.Parallel()
	e, _ := newTestEcho(newTinyGenerator(t), Config{})

	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"prompt":"ab","top_k":1,"max_tokens":3,"seed":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	var g Generation
	if err := json.Unmarshal(rec.Body.Bytes(), &g); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(g.Samples[0].Tokens) != 3 || g.Usage.CompletionTokens != 3 || g.Usage.PromptTokens != 2 {
		t.Fatalf("unexpected generation %+v", g)
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/generate", `{"prompt":"abcdefghij"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("overlong prompt status %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decodeError(t, rec); got.Code != "context_length_exceeded" {
		t.Fatalf("error %+v", got)
	}
}
