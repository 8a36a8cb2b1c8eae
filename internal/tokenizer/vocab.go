package tokenizer

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// Candidate file names, checked in order, for a GPT-2 vocabulary directory.
var (
	EncoderFiles = []string{"encoder.json", "vocab.json"}
	MergesFiles  = []string{"vocab.bpe", "merges.txt"}
)

// ParseEncoder decodes an encoder.json object (symbol -> id) into an
// id-ordered token list. Ids must be exactly 0..n-1.
func ParseEncoder(data []byte) ([]string, error) {
	var enc map[string]int
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("%w: decode encoder: %v", ErrVocabulary, err)
	}
	tokens := make([]string, len(enc))
	seen := make([]bool, len(enc))
	for sym, id := range enc {
		if id < 0 || id >= len(enc) {
			return nil, fmt.Errorf("%w: id %d for %q outside [0, %d)", ErrVocabulary, id, sym, len(enc))
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: id %d assigned twice", ErrVocabulary, id)
		}
		seen[id] = true
		tokens[id] = sym
	}
	return tokens, nil
}

// ParseMerges splits a merges file into lines. Header and blank lines are kept
// and later skipped by NewGPT2.
func ParseMerges(data []byte) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read merges: %v", ErrVocabulary, err)
	}
	return lines, nil
}

// Load builds a tokenizer from raw encoder.json and vocab.bpe contents.
func Load(encoderJSON, merges []byte) (*GPT2Tokenizer, error) {
	tokens, err := ParseEncoder(encoderJSON)
	if err != nil {
		return nil, err
	}
	lines, err := ParseMerges(merges)
	if err != nil {
		return nil, err
	}
	return NewGPT2(tokens, lines)
}

// LoadDir loads a tokenizer from a model directory, accepting both the
// original GPT-2 file names and the Hugging Face ones.
func LoadDir(dir string) (*GPT2Tokenizer, error) {
	encPath, err := findFile(dir, EncoderFiles)
	if err != nil {
		return nil, err
	}
	mergePath, err := findFile(dir, MergesFiles)
	if err != nil {
		return nil, err
	}
	enc, err := os.ReadFile(encPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", encPath, err)
	}
	merges, err := os.ReadFile(mergePath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", mergePath, err)
	}
	return Load(enc, merges)
}

func findFile(dir string, names []string) (string, error) {
	for _, n := range names {
		p := filepath.Join(dir, n)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: none of %v in %s", ErrVocabulary, names, dir)
}
