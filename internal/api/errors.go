package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/samcharles93/quill/internal/logits"
	"github.com/samcharles93/quill/internal/model"
	"github.com/samcharles93/quill/internal/tokenizer"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// classify maps a service error to an HTTP status, error type and code.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, logits.ErrInvalidSamplingParameter):
		return http.StatusBadRequest, "invalid_request_error", "invalid_sampling_parameter"
	case errors.Is(err, model.ErrContextOverflow):
		return http.StatusBadRequest, "invalid_request_error", "context_length_exceeded"
	case errors.Is(err, tokenizer.ErrUnknownToken):
		return http.StatusBadRequest, "invalid_request_error", "unknown_token"
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request_error", ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "server_error", "cancelled"
	}
	return http.StatusInternalServerError, "server_error", ""
}

func paramFor(err error) string {
	var sp logits.InvalidSamplingParameterError
	if errors.As(err, &sp) {
		return sp.Name
	}
	return ""
}
