package inference

import (
	"fmt"

	"github.com/samcharles93/quill/internal/logits"
)

// Request describes one generation. Build it with DefaultRequest or
// ResolveRequest; the zero value has an invalid temperature.
type Request struct {
	// Prompt is encoded as the initial sequence. Empty means start from
	// StartToken.
	Prompt string
	// StartToken seeds an unprompted run; negative selects <|endoftext|>.
	StartToken int
	// MaxTokens caps generated tokens per row; 0 runs until the context
	// is full.
	MaxTokens int
	// Samples is the number of batch rows sharing the prompt.
	Samples int
	// Seed drives sampling; negative picks a random seed, reported in the
	// Result.
	Seed        int64
	Temperature float32
	// TopK keeps only the K best candidates; 0 disables truncation.
	TopK int
	// StopAtEndOfText ends a row when it samples <|endoftext|>.
	StopAtEndOfText bool
	// StopTokens are extra ids that end a row.
	StopTokens []int
	// Specials encodes "<|endoftext|>" in the prompt as the special id
	// rather than as text.
	Specials bool
}

// DefaultRequest mirrors the GPT-2 sampling defaults: temperature 1,
// top-k 40, one sample, start from <|endoftext|>.
func DefaultRequest() Request {
	return Request{
		StartToken:  -1,
		Samples:     1,
		Seed:        -1,
		Temperature: 1,
		TopK:        40,
	}
}

// RequestOptions carries optional overrides, e.g. from CLI flags, a config
// file or an HTTP body. Nil fields keep the default.
type RequestOptions struct {
	Prompt          *string
	StartToken      *int
	MaxTokens       *int
	Samples         *int
	Seed            *int64
	Temperature     *float64
	TopK            *int
	StopAtEndOfText *bool
	Specials        *bool
}

// ResolveRequest overlays opts on DefaultRequest.
func ResolveRequest(opts RequestOptions) Request {
	req := DefaultRequest()
	if opts.Prompt != nil {
		req.Prompt = *opts.Prompt
	}
	if opts.StartToken != nil {
		req.StartToken = *opts.StartToken
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	if opts.Samples != nil {
		req.Samples = *opts.Samples
	}
	if opts.Seed != nil {
		req.Seed = *opts.Seed
	}
	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
	}
	if opts.TopK != nil {
		req.TopK = *opts.TopK
	}
	if opts.StopAtEndOfText != nil {
		req.StopAtEndOfText = *opts.StopAtEndOfText
	}
	if opts.Specials != nil {
		req.Specials = *opts.Specials
	}
	return req
}

// Validate checks the request shape. Sampling parameter errors are
// logits.InvalidSamplingParameterError.
func (r Request) Validate() error {
	if err := logits.ValidateParams(r.Temperature, r.TopK); err != nil {
		return err
	}
	if r.Samples <= 0 {
		return fmt.Errorf("samples must be positive, got %d", r.Samples)
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("max tokens must not be negative, got %d", r.MaxTokens)
	}
	return nil
}

// Merge returns o with every non-nil field of over applied on top.
func (o RequestOptions) Merge(over RequestOptions) RequestOptions {
	if over.Prompt != nil {
		o.Prompt = over.Prompt
	}
	if over.StartToken != nil {
		o.StartToken = over.StartToken
	}
	if over.MaxTokens != nil {
		o.MaxTokens = over.MaxTokens
	}
	if over.Samples != nil {
		o.Samples = over.Samples
	}
	if over.Seed != nil {
		o.Seed = over.Seed
	}
	if over.Temperature != nil {
		o.Temperature = over.Temperature
	}
	if over.TopK != nil {
		o.TopK = over.TopK
	}
	if over.StopAtEndOfText != nil {
		o.StopAtEndOfText = over.StopAtEndOfText
	}
	if over.Specials != nil {
		o.Specials = over.Specials
	}
	return o
}
