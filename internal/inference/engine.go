package inference

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/samcharles93/quill/internal/logger"
	"github.com/samcharles93/quill/internal/model"
	"github.com/samcharles93/quill/internal/tokenizer"
)

// Generator pairs a model with its tokenizer. Both are read-only, so one
// Generator serves concurrent requests; every request gets its own Session.
type Generator struct {
	model Stepper
	tok   *tokenizer.GPT2Tokenizer
	log   logger.Logger

	// Concurrency bounds GenerateBatch; zero means GOMAXPROCS.
	Concurrency int
}

var _ Engine = (*Generator)(nil)

// NewGenerator checks that the tokenizer and model agree on the vocabulary.
func NewGenerator(m Stepper, tok *tokenizer.GPT2Tokenizer, log logger.Logger) (*Generator, error) {
	if m == nil || tok == nil {
		return nil, errors.New("generator: model and tokenizer are required")
	}
	if log == nil {
		log = logger.Discard()
	}
	hp := m.Hyperparameters()
	if hp.VocabSize != tok.VocabSize() {
		return nil, model.ConfigError{
			Field:  "n_vocab",
			Reason: fmt.Sprintf("model has %d ids, tokenizer has %d", hp.VocabSize, tok.VocabSize()),
		}
	}
	return &Generator{model: m, tok: tok, log: log}, nil
}

// Tokenizer returns the shared tokenizer.
func (g *Generator) Tokenizer() *tokenizer.GPT2Tokenizer { return g.tok }

// Hyperparameters returns the model shape.
func (g *Generator) Hyperparameters() model.Hyperparameters { return g.model.Hyperparameters() }

// NewSession prepares a session for req without running it.
func (g *Generator) NewSession(req Request) (*Session, error) {
	return newSession(g.model, g.tok, g.log, req)
}

// Generate runs req to completion. With Samples > 1 the rows share the
// prompt and draw independently.
func (g *Generator) Generate(ctx context.Context, req Request, stream StreamFunc) (*Result, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := g.NewSession(req)
	if err != nil {
		return nil, err
	}
	g.log.Debug("generate", "session", s.ID, "samples", req.Samples, "max_tokens", req.MaxTokens)
	return s.Run(ctx, stream)
}

// GenerateBatch runs one independent session per prompt, concurrently,
// sharing req's other settings. Prompt i uses seed req.Seed+i when req.Seed
// is non-negative. Results are in prompt order; the first error cancels the
// remaining sessions.
func (g *Generator) GenerateBatch(ctx context.Context, prompts []string, req Request) ([]*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limit := g.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	sem := make(chan struct{}, limit)
	results := make([]*Result, len(prompts))
	errs := make([]error, len(prompts))

	var wg sync.WaitGroup
	for i, p := range prompts {
		r := req
		r.Prompt = p
		if req.Seed >= 0 {
			r.Seed = req.Seed + int64(i)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			defer func() { <-sem }()
			res, err := g.Generate(ctx, r, nil)
			if err != nil {
				errs[i] = fmt.Errorf("prompt %d: %w", i, err)
				cancel()
				return
			}
			results[i] = res
		}()
	}
	wg.Wait()
	if err := firstError(errs); err != nil {
		return nil, err
	}
	return results, nil
}

// firstError prefers a real failure over the cancellations it caused.
func firstError(errs []error) error {
	var cancelled error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) {
			if cancelled == nil {
				cancelled = err
			}
			continue
		}
		return err
	}
	return cancelled
}

// Encode tokenizes text, optionally recognising special tokens.
func (g *Generator) Encode(text string, specials bool) ([]int, error) {
	if specials {
		return g.tok.EncodeWithSpecials(text)
	}
	return g.tok.Encode(text)
}

// Decode maps ids back to text with invalid UTF-8 replaced.
func (g *Generator) Decode(ids []int) (string, error) { return g.tok.Decode(ids) }

// Close is a no-op: weights are copied out of the checkpoint at load time.
func (g *Generator) Close() error { return nil }
