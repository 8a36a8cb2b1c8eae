package model

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig reports malformed or missing hyperparameters or weights.
	ErrConfig = errors.New("invalid model config")
	// ErrContextOverflow reports a position at or beyond the context length.
	ErrContextOverflow = errors.New("context length exceeded")
)

// ConfigError names the offending field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e ConfigError) Unwrap() error { return ErrConfig }

// ContextOverflowError is returned when a step would place a token at
// Position >= ContextLength. No state has been modified when it is returned.
type ContextOverflowError struct {
	Position      int
	ContextLength int
}

func (e ContextOverflowError) Error() string {
	return fmt.Sprintf("position %d exceeds context length %d", e.Position, e.ContextLength)
}

func (e ContextOverflowError) Unwrap() error { return ErrContextOverflow }
