package tokenizer

import "testing"

// fixtureMerges covers "Hello" and " world"; every other byte stays a single
// byte symbol.
var fixtureMerges = []string{
	"#version: 0.2",
	"H e",
	"l l",
	"He ll",
	"Hell o",
	"Ġ w",
	"o r",
	"Ġw or",
	"Ġwor l",
	"Ġworl d",
}

// fixtureTokens lists ids 0..255 as byte symbols in byte-value order, then one
// id per merge result in merge order, then <|endoftext|> at 265.
func fixtureTokens() []string {
	tokens := make([]string, 0, 266)
	for b := range 256 {
		tokens = append(tokens, string(ByteSymbol(byte(b))))
	}
	tokens = append(tokens, "He", "ll", "Hell", "Hello", "Ġw", "or", "Ġwor", "Ġworl", "Ġworld")
	tokens = append(tokens, EndOfText)
	return tokens
}

func newFixture(t testing.TB) *GPT2Tokenizer {
	t.Helper()
	tok, err := NewGPT2(fixtureTokens(), fixtureMerges)
	if err != nil {
		t.Fatalf("build fixture tokenizer: %v", err)
	}
	return tok
}
