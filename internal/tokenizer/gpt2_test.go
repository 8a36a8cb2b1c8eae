package tokenizer

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

func TestFixtureLayout(t *testing.T) {
	t.Parallel()

	tok := newFixture(t)
	if got := tok.VocabSize(); got != 266 {
		t.Fatalf("vocab size: got %d want 266", got)
	}
	if id, ok := tok.EndOfTextID(); !ok || id != 265 {
		t.Fatalf("end of text: got %d,%v want 265,true", id, ok)
	}
	if got := tok.TokenString(264); got != "Ġworld" {
		t.Fatalf("token 264: got %q", got)
	}
	if got := tok.MergeCount(); got != 9 {
		t.Fatalf("merge count: got %d want 9", got)
	}
}

func TestEncodeHelloWorld(t *testing.T) {
	t.Parallel()

	tok := newFixture(t)
	ids, err := tok.Encode("Hello, world!")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []int{259, 44, 264, 33}
	if !slices.Equal(ids, want) {
		t.Fatalf("encode: got %v want %v", ids, want)
	}
}

func TestDecodeHelloWorld(t *testing.T) {
	t.Parallel()

	tok := newFixture(t)
	got, err := tok.Decode([]int{259, 44, 264})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "Hello, world" {
		t.Fatalf("decode: got %q", got)
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	tok := newFixture(t)
	inputs := []string{
		"",
		"Hello, world!",
		"a  b",
		"tabs\tand\nnewlines\n\n",
		"trailing spaces   ",
		"it's we'll they've I'd",
		"numbers 12345 and 3.14",
		"héllo wörld ünïcödé",
		"日本語のテキスト",
		"emoji 🙂🚀 mixed",
		"<|endoftext|> literal",
		" non-breaking em space",
	}
	for _, in := range inputs {
		ids, err := tok.Encode(in)
		if err != nil {
			t.Fatalf("encode %q: %v", in, err)
		}
		for _, id := range ids {
			if id < 0 || id >= tok.VocabSize() {
				t.Fatalf("encode %q: id %d out of range", in, id)
			}
		}
		out, err := tok.Decode(ids)
		if err != nil {
			t.Fatalf("decode %q: %v", in, err)
		}
		if out != in {
			t.Fatalf("round trip: got %q want %q", out, in)
		}
	}
}

func TestEncodeTreatsSpecialsAsText(t *testing.T) {
	t.Parallel()

	tok := newFixture(t)
	plain, err := tok.Encode(EndOfText)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if slices.Contains(plain, 265) {
		t.Fatalf("Encode produced the special id: %v", plain)
	}
	special, err := tok.EncodeWithSpecials("Hello" + EndOfText + "Hello")
	if err != nil {
		t.Fatalf("encode with specials: %v", err)
	}
	if want := []int{259, 265, 259}; !slices.Equal(special, want) {
		t.Fatalf("encode with specials: got %v want %v", special, want)
	}
}

func TestDecodeUnknownToken(t *testing.T) {
	t.Parallel()

	tok := newFixture(t)
	for _, id := range []int{-1, 266, 1 << 20} {
		_, err := tok.Decode([]int{259, id})
		if !errors.Is(err, ErrUnknownToken) {
			t.Fatalf("decode id %d: expected ErrUnknownToken, got %v", id, err)
		}
		var ute UnknownTokenError
		if !errors.As(err, &ute) || ute.ID != id {
			t.Fatalf("decode id %d: expected UnknownTokenError carrying the id, got %v", id, err)
		}
	}
}

func TestDecodeInvalidUTF8(t *testing.T) {
	t.Parallel()

	tok := newFixture(t)
	// 0xE2 0x82 is a truncated three-byte sequence.
	ids := []int{259, 0xE2, 0x82}
	got, err := tok.Decode(ids)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if want := "Hello\uFFFD"; got != want {
		t.Fatalf("decode: got %q want %q", got, want)
	}

	_, err = tok.DecodeStrict(ids)
	var dee DecodeEncodingError
	if !errors.As(err, &dee) || dee.Offset != 5 {
		t.Fatalf("strict decode: expected DecodeEncodingError at 5, got %v", err)
	}
	if !errors.Is(err, ErrDecodeEncoding) {
		t.Fatalf("strict decode: expected ErrDecodeEncoding, got %v", err)
	}

	raw, err := tok.DecodeBytes(ids)
	if err != nil {
		t.Fatalf("decode bytes: %v", err)
	}
	if want := []byte("Hello\xe2\x82"); !slices.Equal(raw, want) {
		t.Fatalf("decode bytes: got %x want %x", raw, want)
	}
}

// Invalid input is replaced the way Python's errors="replace" does it: one
// U+FFFD per maximal invalid subsequence, not per byte.
func TestDecodeReplacesMaximalSubparts(t *testing.T) {
	t.Parallel()

	tok := newFixture(t)
	cases := []struct {
		bytes []int
		want  string
	}{
		{[]int{0xE2, 0x82}, "\uFFFD"},
		{[]int{0xE2, 0x82, 'A'}, "\uFFFDA"},
		{[]int{0xF0, 0x9F, 0x99}, "\uFFFD"},
		{[]int{0xE2, 'A'}, "\uFFFDA"},
		{[]int{0x80, 0x80}, "\uFFFD\uFFFD"},
		{[]int{0xE0, 0x80}, "\uFFFD\uFFFD"},
		{[]int{0xED, 0xA0, 0x80}, "\uFFFD\uFFFD\uFFFD"},
		{[]int{0xC0, 0xAF}, "\uFFFD\uFFFD"},
		{[]int{0xF4, 0x90}, "\uFFFD\uFFFD"},
		{[]int{0xE2, 0x82, 0xE2, 0x82, 0xAC}, "\uFFFD\u20ac"},
	}
	for _, tc := range cases {
		got, err := tok.Decode(tc.bytes)
		if err != nil {
			t.Fatalf("decode %x: %v", tc.bytes, err)
		}
		if got != tc.want {
			t.Fatalf("decode %x: got %q want %q", tc.bytes, got, tc.want)
		}
	}
}

func TestDecodeArbitraryIDsIsValidUTF8(t *testing.T) {
	t.Parallel()

	tok := newFixture(t)
	ids := make([]int, 0, tok.VocabSize())
	for id := tok.VocabSize() - 1; id >= 0; id-- {
		ids = append(ids, id)
	}
	got, err := tok.Decode(ids)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("decode produced invalid utf-8")
	}
}

func TestSplitPretokens(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want []string
	}{
		{"Hello, world!", []string{"Hello", ",", " world", "!"}},
		{"a  b", []string{"a", " ", " b"}},
		{"a\n\nb", []string{"a", "\n", "\n", "b"}},
		{"a  ", []string{"a", "  "}},
		{"it's", []string{"it", "'s"}},
		{"x 123", []string{"x", " 123"}},
	}
	for _, tc := range cases {
		got := splitPretokens(tc.in)
		if !slices.Equal(got, tc.want) {
			t.Fatalf("split %q: got %q want %q", tc.in, got, tc.want)
		}
		if strings.Join(got, "") != tc.in {
			t.Fatalf("split %q: pieces do not cover the input", tc.in)
		}
	}
}

func TestByteTable(t *testing.T) {
	t.Parallel()

	if got := ByteSymbol(' '); got != 'Ġ' {
		t.Fatalf("space symbol: got %q want %q", got, 'Ġ')
	}
	if got := ByteSymbol('A'); got != 'A' {
		t.Fatalf("printable byte changed: got %q", got)
	}
	if got := ByteSymbol(0); got != 256 {
		t.Fatalf("byte 0: got %d want 256", got)
	}
	seen := make(map[rune]bool, 256)
	for b := range 256 {
		r := ByteSymbol(byte(b))
		if seen[r] {
			t.Fatalf("byte %d maps to duplicate rune %q", b, r)
		}
		seen[r] = true
	}
	if bytesToUnicode() != bytesToUnicode() {
		t.Fatalf("byte table rebuilt between calls")
	}
}

func TestMergePairNonOverlapping(t *testing.T) {
	t.Parallel()

	got := mergePair([]string{"a", "a", "a", "b", "a", "a"}, Pair{A: "a", B: "a"})
	want := []string{"aa", "a", "b", "aa"}
	if !slices.Equal(got, want) {
		t.Fatalf("merge: got %q want %q", got, want)
	}
}

func TestNewGPT2RejectsDuplicateTokens(t *testing.T) {
	t.Parallel()

	_, err := NewGPT2([]string{"a", "b", "a"}, nil)
	if !errors.Is(err, ErrVocabulary) {
		t.Fatalf("expected ErrVocabulary, got %v", err)
	}
}

func TestConcurrentEncode(t *testing.T) {
	t.Parallel()

	tok := newFixture(t)
	want, err := tok.Encode("Hello, world! Hello again, world.")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				got, err := tok.Encode("Hello, world! Hello again, world.")
				if err != nil {
					errs <- err
					return
				}
				if !slices.Equal(got, want) {
					errs <- errors.New("concurrent encode diverged")
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
