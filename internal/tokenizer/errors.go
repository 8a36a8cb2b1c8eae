package tokenizer

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownToken is returned when an id lies outside the vocabulary.
	ErrUnknownToken = errors.New("unknown token")
	// ErrUnknownSymbol is returned when a merged symbol has no vocabulary entry.
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrDecodeEncoding reports decoded bytes that are not valid UTF-8.
	ErrDecodeEncoding = errors.New("decoded bytes are not valid utf-8")
	// ErrVocabulary reports a malformed vocabulary or merge table.
	ErrVocabulary = errors.New("invalid vocabulary")
)

// UnknownTokenError carries the offending id.
type UnknownTokenError struct {
	ID        int
	VocabSize int
}

func (e UnknownTokenError) Error() string {
	return fmt.Sprintf("token id %d out of range [0, %d)", e.ID, e.VocabSize)
}

func (e UnknownTokenError) Unwrap() error { return ErrUnknownToken }

// DecodeEncodingError records the byte offset of the first invalid UTF-8
// sequence in a decoded token stream.
type DecodeEncodingError struct {
	Offset int
}

func (e DecodeEncodingError) Error() string {
	return fmt.Sprintf("invalid utf-8 at byte %d", e.Offset)
}

func (e DecodeEncodingError) Unwrap() error { return ErrDecodeEncoding }
