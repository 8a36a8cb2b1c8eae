package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/samcharles93/quill/internal/tokenizer"
)

const (
	envModelDir   = "QUILL_MODEL_DIR"
	envConfigFile = "QUILL_CONFIG"
)

// resolveModelDir checks that dir looks like a model directory: it must
// hold a vocabulary and a merges file.
func resolveModelDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", fmt.Errorf("--model is required unless %s or model_dir in the config is set", envModelDir)
	}
	dir = filepath.Clean(dir)
	st, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !st.IsDir() {
		return "", fmt.Errorf("model path is not a directory: %s", dir)
	}
	if !hasAny(dir, tokenizer.EncoderFiles) {
		return "", fmt.Errorf("%s: no vocabulary (%s)", dir, strings.Join(tokenizer.EncoderFiles, " or "))
	}
	if !hasAny(dir, tokenizer.MergesFiles) {
		return "", fmt.Errorf("%s: no merges (%s)", dir, strings.Join(tokenizer.MergesFiles, " or "))
	}
	return dir, nil
}

func hasAny(dir string, names []string) bool {
	for _, n := range names {
		if _, err := os.Stat(filepath.Join(dir, n)); err == nil {
			return true
		}
	}
	return false
}

// readPrompt returns flag text, or the file contents, or stdin when the
// path is "-".
func readPrompt(text, path string) (string, error) {
	if path == "" {
		return text, nil
	}
	if text != "" {
		return "", errors.New("--prompt and --prompt-file are mutually exclusive")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = readAllStdin()
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// readAllStdin is a seam for tests.
var readAllStdin = func() ([]byte, error) {
	return io.ReadAll(os.Stdin)
}

// parseIDs accepts ids separated by spaces, commas or newlines.
func parseIDs(args []string) ([]int, error) {
	var ids []int
	for _, a := range args {
		for _, f := range strings.FieldsFunc(a, func(r rune) bool { return r == ',' || unicode.IsSpace(r) }) {
			id, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("invalid token id %q", f)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
