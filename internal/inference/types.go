package inference

import (
	"context"
	"time"

	"github.com/samcharles93/quill/internal/model"
)

// StreamFunc receives decoded text for one batch row as it is produced.
// Chunks never split a UTF-8 character.
type StreamFunc func(row int, text string)

// Engine generates text from a request.
type Engine interface {
	Generate(ctx context.Context, req Request, stream StreamFunc) (*Result, error)
	Close() error
}

// Stepper is the forward pass a session drives. *model.Model implements it.
type Stepper interface {
	Step(tokens [][]int, cache *model.KVCache) (*model.Logits, *model.KVCache, error)
	Hyperparameters() model.Hyperparameters
}

// FinishReason records why a session stopped.
type FinishReason string

const (
	// FinishLength means the token budget was spent.
	FinishLength FinishReason = "length"
	// FinishContext means another step would pass the context length.
	FinishContext FinishReason = "context"
	// FinishStop means every row produced a stop token.
	FinishStop FinishReason = "stop"
)

// Sample is one generated continuation.
type Sample struct {
	Tokens []int  `json:"tokens"`
	Text   string `json:"text"`
}

type Result struct {
	ID           string       `json:"id"`
	PromptTokens []int        `json:"prompt_tokens"`
	Samples      []Sample     `json:"samples"`
	Finish       FinishReason `json:"finish_reason"`
	Seed         int64        `json:"seed"`
	Stats        Stats        `json:"stats"`
}

// Text returns the first sample's text.
func (r *Result) Text() string {
	if r == nil || len(r.Samples) == 0 {
		return ""
	}
	return r.Samples[0].Text
}

type Stats struct {
	PromptTokens    int           `json:"prompt_tokens"`
	TokensGenerated int           `json:"tokens_generated"`
	Duration        time.Duration `json:"duration_ns"`
	TPS             float64       `json:"tokens_per_second"`
}

func (s *Stats) finish(start time.Time) {
	s.Duration = time.Since(start)
	if secs := s.Duration.Seconds(); secs > 0 {
		s.TPS = float64(s.TokensGenerated) / secs
	}
}
