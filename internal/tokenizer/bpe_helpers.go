package tokenizer

import (
	"sort"
	"strings"
)

// Pair represents a pair of adjacent BPE symbols.
type Pair struct {
	A string
	B string
}

type textPart struct {
	text      string
	isSpecial bool
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func getPairs(word []string) map[Pair]struct{} {
	pairs := make(map[Pair]struct{})
	if len(word) < 2 {
		return pairs
	}
	prev := word[0]
	for _, w := range word[1:] {
		pairs[Pair{A: prev, B: w}] = struct{}{}
		prev = w
	}
	return pairs
}

// indexFrom returns the first index >= from holding sym.
func indexFrom(word []string, sym string, from int) (int, bool) {
	for i := from; i < len(word); i++ {
		if word[i] == sym {
			return i, true
		}
	}
	return 0, false
}

// mergePair replaces every non-overlapping occurrence of pair, scanning left
// to right, with the concatenated symbol.
func mergePair(word []string, pair Pair) []string {
	out := make([]string, 0, len(word))
	for i := 0; i < len(word); {
		j, ok := indexFrom(word, pair.A, i)
		if !ok {
			out = append(out, word[i:]...)
			break
		}
		out = append(out, word[i:j]...)
		i = j
		if i < len(word)-1 && word[i+1] == pair.B {
			out = append(out, pair.A+pair.B)
			i += 2
			continue
		}
		out = append(out, word[i])
		i++
	}
	return out
}

func collectSpecials(tokens []string) []string {
	out := make([]string, 0, 4)
	for _, t := range tokens {
		if isSpecialToken(t) {
			out = append(out, t)
		}
	}
	// longest-match first
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

func isSpecialToken(s string) bool {
	if len(s) < 4 {
		return false
	}
	return strings.HasPrefix(s, "<|") && strings.HasSuffix(s, "|>")
}

func splitSpecials(text string, specials []string) []textPart {
	if len(specials) == 0 || !strings.Contains(text, "<|") {
		return []textPart{{text: text, isSpecial: false}}
	}
	var parts []textPart
	var buf strings.Builder
	for i := 0; i < len(text); {
		match := ""
		for _, sp := range specials {
			if strings.HasPrefix(text[i:], sp) {
				match = sp
				break
			}
		}
		if match != "" {
			if buf.Len() > 0 {
				parts = append(parts, textPart{text: buf.String(), isSpecial: false})
				buf.Reset()
			}
			parts = append(parts, textPart{text: match, isSpecial: true})
			i += len(match)
			continue
		}
		buf.WriteByte(text[i])
		i++
	}
	if buf.Len() > 0 {
		parts = append(parts, textPart{text: buf.String(), isSpecial: false})
	}
	return parts
}
