package tokenizer

import (
	"regexp"
	"unicode"
	"unicode/utf8"
)

// whitespace mirrors the Unicode-aware \s of the reference pattern. RE2's \s
// is ASCII only.
const whitespace = `\s\v\x{1c}-\x{1f}\x{85}\p{Z}`

// RE2 has no lookahead, so `\s+(?!\S)|\s+` is collapsed into a single
// whitespace branch and the boundary is fixed up in splitPretokens.
var pretokenPattern = regexp.MustCompile(
	`'s|'t|'re|'ve|'m|'ll|'d` +
		`| ?\p{L}+| ?\p{N}+` +
		`| ?[^` + whitespace + `\p{L}\p{N}]+` +
		`|[` + whitespace + `]+`,
)

func isSpace(r rune) bool {
	switch {
	case unicode.IsSpace(r):
		return true
	case r >= 0x1c && r <= 0x1f:
		return true
	case unicode.In(r, unicode.Z):
		return true
	}
	return false
}

// splitPretokens cuts text into the maximal runs BPE operates on. A
// whitespace run followed by non-space gives back its final rune so that the
// following word can take a leading space, matching `\s+(?!\S)`.
func splitPretokens(text string) []string {
	var out []string
	for pos := 0; pos < len(text); {
		loc := pretokenPattern.FindStringIndex(text[pos:])
		if loc == nil || loc[0] != 0 || loc[1] == 0 {
			// Every rune belongs to one of the branches; this only guards
			// against an empty match looping forever.
			_, size := utf8.DecodeRuneInString(text[pos:])
			out = append(out, text[pos:pos+size])
			pos += size
			continue
		}
		end := pos + loc[1]
		match := text[pos:end]
		if end < len(text) {
			last, size := utf8.DecodeLastRuneInString(match)
			if isSpace(last) && size < len(match) {
				end -= size
				match = text[pos:end]
			}
		}
		out = append(out, match)
		pos = end
	}
	return out
}
