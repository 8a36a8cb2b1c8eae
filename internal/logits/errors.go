package logits

import (
	"errors"
	"fmt"
)

// ErrInvalidSamplingParameter reports a non-positive temperature or a
// negative top-k.
var ErrInvalidSamplingParameter = errors.New("invalid sampling parameter")

type InvalidSamplingParameterError struct {
	Name  string
	Value float64
}

func (e InvalidSamplingParameterError) Error() string {
	return fmt.Sprintf("invalid sampling parameter %s=%g", e.Name, e.Value)
}

func (e InvalidSamplingParameterError) Unwrap() error { return ErrInvalidSamplingParameter }

// ValidateParams checks temperature and top-k without building a sampler.
func ValidateParams(temperature float32, topK int) error {
	if !(temperature > 0) {
		return InvalidSamplingParameterError{Name: "temperature", Value: float64(temperature)}
	}
	if topK < 0 {
		return InvalidSamplingParameterError{Name: "top_k", Value: float64(topK)}
	}
	return nil
}
