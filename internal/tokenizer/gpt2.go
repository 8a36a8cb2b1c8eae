package tokenizer

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

// EndOfText is the GPT-2 document separator and default start token.
const EndOfText = "<|endoftext|>"

// maxCacheEntries bounds the per-pretoken memo; it is reset when full.
const maxCacheEntries = 1 << 16

// GPT2Tokenizer is a byte-level BPE tokenizer. It is immutable after
// construction apart from its memo, which is guarded, so one instance can be
// shared by concurrent sessions.
type GPT2Tokenizer struct {
	encoder  map[string]int
	decoder  []string
	bpeRanks map[Pair]int
	bytes    *byteTable
	special  []string
	eotID    int

	mu    sync.RWMutex
	cache map[string][]string
}

// NewGPT2 builds a tokenizer from the id-ordered token list and the
// rank-ordered merge lines ("a b"). Blank lines and lines starting with '#'
// (the "#version" header) are skipped.
func NewGPT2(tokens []string, merges []string) (*GPT2Tokenizer, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty token list", ErrVocabulary)
	}
	encoder := make(map[string]int, len(tokens))
	for i, t := range tokens {
		if prev, dup := encoder[t]; dup {
			return nil, fmt.Errorf("%w: token %q has ids %d and %d", ErrVocabulary, t, prev, i)
		}
		encoder[t] = i
	}
	decoder := append([]string(nil), tokens...)

	bpeRanks := make(map[Pair]int, len(merges))
	rank := 0
	for _, line := range merges {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: merge line %q", ErrVocabulary, line)
		}
		p := Pair{A: parts[0], B: parts[1]}
		if _, ok := bpeRanks[p]; !ok {
			bpeRanks[p] = rank
			rank++
		}
	}

	eot := -1
	if id, ok := encoder[EndOfText]; ok {
		eot = id
	}

	return &GPT2Tokenizer{
		encoder:  encoder,
		decoder:  decoder,
		bpeRanks: bpeRanks,
		bytes:    bytesToUnicode(),
		special:  collectSpecials(tokens),
		eotID:    eot,
		cache:    make(map[string][]string),
	}, nil
}

// Encode converts text to token ids. Special-token spellings such as
// "<|endoftext|>" are treated as ordinary text.
func (t *GPT2Tokenizer) Encode(text string) ([]int, error) {
	return t.encodeText(nil, text)
}

// EncodeWithSpecials is Encode, except that exact special-token spellings
// map directly to their ids.
func (t *GPT2Tokenizer) EncodeWithSpecials(text string) ([]int, error) {
	var ids []int
	for _, part := range splitSpecials(text, t.special) {
		if part.isSpecial {
			ids = append(ids, t.encoder[part.text])
			continue
		}
		var err error
		if ids, err = t.encodeText(ids, part.text); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (t *GPT2Tokenizer) encodeText(ids []int, text string) ([]int, error) {
	for _, token := range splitPretokens(text) {
		for _, sym := range t.bpe(t.byteEncode(token)) {
			id, ok := t.encoder[sym]
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownSymbol, sym)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// DecodeBytes maps ids back to the raw byte sequence they encode.
func (t *GPT2Tokenizer) DecodeBytes(ids []int) ([]byte, error) {
	var b []byte
	for _, id := range ids {
		var err error
		if b, err = t.appendTokenBytes(b, id); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Decode maps ids back to text. Byte sequences that are not valid UTF-8 are
// replaced with U+FFFD, one per offending byte.
func (t *GPT2Tokenizer) Decode(ids []int) (string, error) {
	b, err := t.DecodeBytes(ids)
	if err != nil {
		return "", err
	}
	return toValidUTF8(b), nil
}

// DecodeStrict is Decode without replacement: invalid UTF-8 is reported as a
// DecodeEncodingError.
func (t *GPT2Tokenizer) DecodeStrict(ids []int) (string, error) {
	b, err := t.DecodeBytes(ids)
	if err != nil {
		return "", err
	}
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return "", DecodeEncodingError{Offset: i}
		}
		i += size
	}
	return string(b), nil
}

func (t *GPT2Tokenizer) appendTokenBytes(b []byte, id int) ([]byte, error) {
	if id < 0 || id >= len(t.decoder) {
		return nil, UnknownTokenError{ID: id, VocabSize: len(t.decoder)}
	}
	for _, r := range t.decoder[id] {
		if by, ok := t.bytes.dec[r]; ok {
			b = append(b, by)
		} else {
			b = utf8.AppendRune(b, r)
		}
	}
	return b, nil
}

// VocabSize reports the number of ids.
func (t *GPT2Tokenizer) VocabSize() int { return len(t.decoder) }

// EndOfTextID returns the id of "<|endoftext|>" when the vocabulary has one.
func (t *GPT2Tokenizer) EndOfTextID() (int, bool) { return t.eotID, t.eotID >= 0 }

// TokenString returns the vocabulary symbol for id, or "" when out of range.
func (t *GPT2Tokenizer) TokenString(id int) string {
	if id < 0 || id >= len(t.decoder) {
		return ""
	}
	return t.decoder[id]
}

// MergeCount reports the number of ranked merges.
func (t *GPT2Tokenizer) MergeCount() int { return len(t.bpeRanks) }

func (t *GPT2Tokenizer) byteEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 2)
	for i := 0; i < len(s); i++ {
		b.WriteRune(t.bytes.enc[s[i]])
	}
	return b.String()
}

func (t *GPT2Tokenizer) bpe(token string) []string {
	t.mu.RLock()
	v, ok := t.cache[token]
	t.mu.RUnlock()
	if ok {
		return v
	}

	word := splitRunes(token)
	if len(word) > 1 {
		pairs := getPairs(word)
		for {
			best, found := t.lowestRank(pairs)
			if !found {
				break
			}
			word = mergePair(word, best)
			if len(word) == 1 {
				break
			}
			pairs = getPairs(word)
		}
	}

	t.mu.Lock()
	if len(t.cache) >= maxCacheEntries {
		t.cache = make(map[string][]string)
	}
	t.cache[token] = word
	t.mu.Unlock()
	return word
}

func (t *GPT2Tokenizer) lowestRank(pairs map[Pair]struct{}) (Pair, bool) {
	bestRank := int(^uint(0) >> 1)
	bestPair := Pair{}
	found := false
	for p := range pairs {
		if rank, ok := t.bpeRanks[p]; ok && rank < bestRank {
			bestRank = rank
			bestPair = p
			found = true
		}
	}
	return bestPair, found
}

// toValidUTF8 replaces each maximal invalid subsequence of b with one U+FFFD.
func toValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b) + 8)
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
			b = b[invalidSpan(b):]
			continue
		}
		sb.Write(b[:size])
		b = b[size:]
	}
	return sb.String()
}

// invalidSpan returns the length of the invalid sequence at the start of b:
// a lead byte plus the continuation bytes that still form a valid prefix, or
// 1 for a byte that cannot start a sequence. b must not begin with a valid
// rune.
func invalidSpan(b []byte) int {
	need := 0
	lo, hi := byte(0x80), byte(0xBF)
	switch c := b[0]; {
	case c >= 0xC2 && c <= 0xDF:
		need = 1
	case c == 0xE0:
		need, lo = 2, 0xA0
	case c == 0xED:
		need, hi = 2, 0x9F
	case c >= 0xE1 && c <= 0xEF:
		need = 2
	case c == 0xF0:
		need, lo = 3, 0x90
	case c >= 0xF1 && c <= 0xF3:
		need = 3
	case c == 0xF4:
		need, hi = 3, 0x8F
	default:
		return 1
	}
	n := 1
	for n <= need && n < len(b) {
		if b[n] < lo || b[n] > hi {
			break
		}
		lo, hi = 0x80, 0xBF
		n++
	}
	return n
}
