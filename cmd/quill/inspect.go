package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quill/internal/model"
	"github.com/samcharles93/quill/internal/safetensors"
	"github.com/samcharles93/quill/internal/tokenizer"
)

func inspectCmd() *cli.Command {
	var (
		showTensors bool
		tensorLimit int64
		filter      string
		showVocab   bool
		vocabLimit  int64
	)
	return &cli.Command{
		Name:  "inspect",
		Usage: "Print hyperparameters, tokenizer summary and tensor inventory of a model directory",
		Flags: append(commonModelFlags(),
			&cli.BoolFlag{Name: "tensors", Usage: "list tensors", Value: true, Destination: &showTensors},
			&cli.Int64Flag{Name: "tensors-limit", Usage: "limit tensor listing (0 = no limit)", Value: 50, Destination: &tensorLimit},
			&cli.StringFlag{Name: "filter", Usage: "only list tensors containing this substring", Destination: &filter},
			&cli.BoolFlag{Name: "vocab", Usage: "list vocab entries", Destination: &showVocab},
			&cli.Int64Flag{Name: "vocab-limit", Usage: "limit vocab listing (0 = no limit)", Value: 50, Destination: &vocabLimit},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyModelConfig(c, cfg)
			dir, err := resolveModelDir(modelDir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: resolve model: %v", err), 1)
			}
			fmt.Printf("Model: %s\n", dir)

			hp, err := model.LoadHyperparameters(dir)
			if err != nil {
				fmt.Printf("Hyperparameters: %v\n", err)
			} else {
				printHyperparameters(hp)
			}

			tok, err := tokenizer.LoadDir(dir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load tokenizer: %v", err), 1)
			}
			printTokenizerSummary(tok)
			if showVocab {
				printVocab(tok, int(vocabLimit))
			}

			path := filepath.Join(dir, model.WeightsFile)
			st, err := os.Stat(path)
			if err != nil {
				fmt.Printf("\nWeights: %s not found\n", model.WeightsFile)
				return nil
			}
			f, err := safetensors.Open(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open weights: %v", err), 1)
			}
			defer func() { _ = f.Close() }()
			printTensorSummary(f, uint64(st.Size()))
			if showTensors {
				printTensors(f, filter, int(tensorLimit))
			}
			return nil
		},
	}
}

func printHyperparameters(hp model.Hyperparameters) {
	fmt.Println("\nHyperparameters:")
	fmt.Printf("  n_vocab:            %d\n", hp.VocabSize)
	fmt.Printf("  n_ctx:              %d\n", hp.ContextLength)
	fmt.Printf("  n_embd:             %d\n", hp.EmbedWidth)
	fmt.Printf("  n_head:             %d (head dim %d)\n", hp.HeadCount, hp.HeadDim())
	fmt.Printf("  n_layer:            %d\n", hp.LayerCount)
	fmt.Printf("  layer_norm_epsilon: %g\n", hp.LayerNormEpsilon)
	fmt.Printf("  parameters:         %s\n", formatCount(parameterCount(hp)))
}

// parameterCount assumes the output projection is tied to wte.
func parameterCount(hp model.Hyperparameters) uint64 {
	c := uint64(hp.EmbedWidth)
	block := 2*2*c + (c*3*c + 3*c) + (c*c + c) + (c*4*c + 4*c) + (4*c*c + c)
	return uint64(hp.VocabSize)*c + uint64(hp.ContextLength)*c + uint64(hp.LayerCount)*block + 2*c
}

func printTokenizerSummary(tok *tokenizer.GPT2Tokenizer) {
	fmt.Println("\nTokenizer:")
	fmt.Printf("  vocab:  %d\n", tok.VocabSize())
	fmt.Printf("  merges: %d\n", tok.MergeCount())
	if id, ok := tok.EndOfTextID(); ok {
		fmt.Printf("  %s: %d\n", tokenizer.EndOfText, id)
	}
}

func printVocab(tok *tokenizer.GPT2Tokenizer, limit int) {
	n := tok.VocabSize()
	if limit > 0 {
		n = min(n, limit)
	}
	fmt.Println("\nVocab:")
	for id := range n {
		fmt.Printf("  %6d  %q\n", id, tok.TokenString(id))
	}
}

func printTensorSummary(f *safetensors.File, size uint64) {
	var elems uint64
	dtypes := make(map[string]int)
	for _, name := range f.Names() {
		info, _ := f.Tensor(name)
		n := uint64(1)
		for _, d := range info.Shape {
			n *= uint64(d)
		}
		elems += n
		dtypes[info.DType]++
	}
	fmt.Println("\nWeights:")
	fmt.Printf("  file:     %s (%s)\n", model.WeightsFile, formatBytes(size))
	fmt.Printf("  tensors:  %d\n", len(f.Names()))
	fmt.Printf("  elements: %s\n", formatCount(elems))
	for dt, n := range dtypes {
		fmt.Printf("  dtype %s: %d tensors\n", dt, n)
	}
	if len(f.Metadata) > 0 {
		fmt.Printf("  metadata: %v\n", f.Metadata)
	}
}

func printTensors(f *safetensors.File, filter string, limit int) {
	fmt.Println("\nTensors:")
	shown := 0
	for _, name := range f.Names() {
		if filter != "" && !strings.Contains(name, filter) {
			continue
		}
		if limit > 0 && shown >= limit {
			fmt.Printf("  ... (use --tensors-limit 0 for all)\n")
			return
		}
		info, _ := f.Tensor(name)
		fmt.Printf("  %-40s %-5s %v\n", name, info.DType, info.Shape)
		shown++
	}
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatCount(n uint64) string {
	switch {
	case n >= 1e9:
		return fmt.Sprintf("%.2fB", float64(n)/1e9)
	case n >= 1e6:
		return fmt.Sprintf("%.2fM", float64(n)/1e6)
	case n >= 1e3:
		return fmt.Sprintf("%.2fK", float64(n)/1e3)
	}
	return fmt.Sprintf("%d", n)
}
