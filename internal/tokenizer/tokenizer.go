package tokenizer

// Tokenizer is the text codec used by the generation loop and the server.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	VocabSize() int
}

var _ Tokenizer = (*GPT2Tokenizer)(nil)
