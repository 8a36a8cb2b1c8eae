package inference

import (
	"slices"

	"github.com/samcharles93/quill/internal/tokenizer"
)

// BuildStopTokens returns the sorted, de-duplicated ids that end a row for
// req. <|endoftext|> is included only when StopAtEndOfText is set.
func BuildStopTokens(tok *tokenizer.GPT2Tokenizer, req Request) []int {
	stop := make([]int, 0, len(req.StopTokens)+1)
	if req.StopAtEndOfText {
		if id, ok := tok.EndOfTextID(); ok {
			stop = append(stop, id)
		}
	}
	for _, id := range req.StopTokens {
		if id >= 0 && id < tok.VocabSize() {
			stop = append(stop, id)
		}
	}
	slices.Sort(stop)
	return slices.Compact(stop)
}
