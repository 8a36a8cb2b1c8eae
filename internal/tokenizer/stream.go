package tokenizer

import (
	"strings"
	"unicode/utf8"
)

// StreamDecoder turns a stream of ids into text without splitting multi-byte
// characters across chunks. Bytes that can still complete a rune are held
// back until the next Push or Flush.
type StreamDecoder struct {
	tok     *GPT2Tokenizer
	pending []byte
}

// NewStreamDecoder returns a decoder bound to t.
func (t *GPT2Tokenizer) NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{tok: t}
}

// Push appends one id and returns the text that is now complete.
func (d *StreamDecoder) Push(id int) (string, error) {
	p, err := d.tok.appendTokenBytes(d.pending, id)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	i := 0
	for i < len(p) {
		r, size := utf8.DecodeRune(p[i:])
		if r == utf8.RuneError && size == 1 {
			if !utf8.FullRune(p[i:]) {
				break
			}
			sb.WriteRune(utf8.RuneError)
			i += invalidSpan(p[i:])
			continue
		}
		sb.Write(p[i : i+size])
		i += size
	}
	d.pending = append(d.pending[:0], p[i:]...)
	return sb.String(), nil
}

// Flush returns whatever is still buffered, replacing incomplete sequences.
func (d *StreamDecoder) Flush() string {
	s := toValidUTF8(d.pending)
	d.pending = d.pending[:0]
	return s
}
