package api

import (
	"github.com/samcharles93/quill/internal/inference"
	"github.com/samcharles93/quill/internal/model"
	"github.com/samcharles93/quill/internal/version"
)

type EncodeRequest struct {
	Text     string `json:"text"`
	Specials bool   `json:"specials,omitempty"`
}

type EncodeResponse struct {
	Object string `json:"object"`
	Tokens []int  `json:"tokens"`
	Count  int    `json:"count"`
}

type DecodeRequest struct {
	Tokens []int `json:"tokens"`
}

type DecodeResponse struct {
	Object string `json:"object"`
	Text   string `json:"text"`
}

// GenerateRequest mirrors inference.RequestOptions; omitted fields take the
// server defaults.
type GenerateRequest struct {
	Prompt          *string  `json:"prompt,omitempty"`
	StartToken      *int     `json:"start_token,omitempty"`
	MaxTokens       *int     `json:"max_tokens,omitempty"`
	Samples         *int     `json:"n_samples,omitempty"`
	Seed            *int64   `json:"seed,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopK            *int     `json:"top_k,omitempty"`
	StopAtEndOfText *bool    `json:"stop_at_end_of_text,omitempty"`
	StopTokens      []int    `json:"stop_tokens,omitempty"`
	Specials        *bool    `json:"specials,omitempty"`
	Stream          bool     `json:"stream,omitempty"`
	Store           *bool    `json:"store,omitempty"`
}

func (r GenerateRequest) options() inference.RequestOptions {
	return inference.RequestOptions{
		Prompt:          r.Prompt,
		StartToken:      r.StartToken,
		MaxTokens:       r.MaxTokens,
		Samples:         r.Samples,
		Seed:            r.Seed,
		Temperature:     r.Temperature,
		TopK:            r.TopK,
		StopAtEndOfText: r.StopAtEndOfText,
		Specials:        r.Specials,
	}
}

type Generation struct {
	ID           string                 `json:"id"`
	Object       string                 `json:"object"`
	CreatedAt    int64                  `json:"created_at"`
	Model        string                 `json:"model,omitempty"`
	PromptTokens []int                  `json:"prompt_tokens"`
	Samples      []inference.Sample     `json:"samples"`
	OutputText   string                 `json:"output_text"`
	Finish       inference.FinishReason `json:"finish_reason"`
	Seed         int64                  `json:"seed"`
	Usage        Usage                  `json:"usage"`
}

type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	DurationMS       int64   `json:"duration_ms"`
	TokensPerSecond  float64 `json:"tokens_per_second"`
}

type ModelResponse struct {
	Object          string                `json:"object"`
	ID              string                `json:"id"`
	Hyperparameters model.Hyperparameters `json:"hyperparameters"`
	Version         version.Info          `json:"version"`
}

type DeletedResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// streamDelta is one SSE text chunk for a sample row.
type streamDelta struct {
	Type           string `json:"type"`
	GenerationID   string `json:"generation_id"`
	Row            int    `json:"row"`
	Delta          string `json:"delta"`
	SequenceNumber int    `json:"sequence_number"`
}

type streamEvent struct {
	Type           string         `json:"type"`
	Generation     *Generation    `json:"generation,omitempty"`
	Error          *ResponseError `json:"error,omitempty"`
	SequenceNumber int            `json:"sequence_number"`
}
