package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quill/internal/inference"
	"github.com/samcharles93/quill/internal/logger"
)

func generateCmd() *cli.Command {
	var (
		prompt      string
		promptFile  string
		batchFile   string
		maxTokens   int64
		samples     int64
		seed        int64
		temp        float64
		topK        int64
		stopAtEOT   bool
		stopTokens  string
		specials    bool
		streamMode  string
		rawOutput   bool
		jsonOutput  bool
		showStats   bool
		concurrency int64
	)

	return &cli.Command{
		Name:    "generate",
		Aliases: []string{"run", "gen"},
		Usage:   "Generate text from a prompt or from <|endoftext|>",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "prompt text (empty = unconditional)",
				Destination: &prompt,
			},
			&cli.StringFlag{
				Name:        "prompt-file",
				Usage:       "read the prompt from a file, or stdin with -",
				Destination: &promptFile,
			},
			&cli.StringFlag{
				Name:        "batch-file",
				Usage:       "generate once per non-empty line, concurrently",
				Destination: &batchFile,
			},
			&cli.Int64Flag{
				Name:        "max-tokens",
				Aliases:     []string{"n", "length"},
				Usage:       "tokens to generate per sample (0 = until the context is full)",
				Destination: &maxTokens,
			},
			&cli.Int64Flag{
				Name:        "samples",
				Aliases:     []string{"n-samples"},
				Usage:       "independent samples sharing the prompt",
				Value:       1,
				Destination: &samples,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "sampling RNG seed (default -1 = random)",
				Value:       -1,
				Destination: &seed,
			},
			&cli.Float64Flag{
				Name:        "temperature",
				Aliases:     []string{"temp", "t"},
				Usage:       "sampling temperature",
				Value:       1,
				Destination: &temp,
			},
			&cli.Int64Flag{
				Name:        "top-k",
				Aliases:     []string{"top_k", "topk", "k"},
				Usage:       "keep the k most likely tokens (0 = no truncation)",
				Value:       40,
				Destination: &topK,
			},
			&cli.BoolFlag{
				Name:        "stop-at-eot",
				Usage:       "end a sample when it produces <|endoftext|>",
				Destination: &stopAtEOT,
			},
			&cli.StringFlag{
				Name:        "stop-tokens",
				Usage:       "comma separated token ids that end a sample",
				Destination: &stopTokens,
			},
			&cli.BoolFlag{
				Name:        "specials",
				Usage:       "treat <|endoftext|> in the prompt as the special token",
				Destination: &specials,
			},
			&cli.StringFlag{
				Name:        "stream-mode",
				Usage:       "output mode (instant, smooth, quiet)",
				Value:       string(StreamInstant),
				Destination: &streamMode,
			},
			&cli.BoolFlag{
				Name:        "raw",
				Usage:       "escape control characters in the output",
				Destination: &rawOutput,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the result as JSON",
				Destination: &jsonOutput,
			},
			&cli.BoolFlag{
				Name:        "stats",
				Usage:       "print generation statistics to stderr",
				Value:       true,
				Destination: &showStats,
			},
			&cli.Int64Flag{
				Name:        "concurrency",
				Usage:       "parallel sessions for --batch-file (0 = GOMAXPROCS)",
				Destination: &concurrency,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)

			if cfg.StreamMode != "" && !c.IsSet("stream-mode") {
				streamMode = cfg.StreamMode
			}
			mode, err := parseStreamMode(streamMode)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			text, err := readPrompt(prompt, promptFile)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: read prompt: %v", err), 1)
			}
			stops, err := parseIDs([]string{stopTokens})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: --stop-tokens: %v", err), 1)
			}

			flags := inference.RequestOptions{Prompt: &text}
			if c.IsSet("max-tokens") {
				n := int(maxTokens)
				flags.MaxTokens = &n
			}
			if c.IsSet("samples") {
				n := int(samples)
				flags.Samples = &n
			}
			if c.IsSet("seed") {
				flags.Seed = &seed
			}
			if c.IsSet("temperature") {
				flags.Temperature = &temp
			}
			if c.IsSet("top-k") {
				k := int(topK)
				flags.TopK = &k
			}
			if c.IsSet("stop-at-eot") {
				flags.StopAtEndOfText = &stopAtEOT
			}
			if c.IsSet("specials") {
				flags.Specials = &specials
			}
			req := inference.ResolveRequest(cfg.requestDefaults().Merge(flags))
			req.StopTokens = stops
			if err := req.Validate(); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			g, _, err := loadGenerator(ctx, c, req.Seed)
			if err != nil {
				return err
			}
			defer func() { _ = g.Close() }()

			if batchFile != "" {
				prompts, err := readLines(batchFile)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: read batch file: %v", err), 1)
				}
				g.Concurrency = int(concurrency)
				results, err := g.GenerateBatch(ctx, prompts, req)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: generate: %v", err), 1)
				}
				return printResults(results, jsonOutput, rawOutput)
			}

			var stream inference.StreamFunc
			var sw *StreamWriter
			if !jsonOutput && req.Samples == 1 {
				sw = NewStreamWriter(os.Stdout, mode, rawOutput)
				stream = func(_ int, text string) { sw.Write(text) }
			}
			res, err := g.Generate(ctx, req, stream)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: generate: %v", err), 1)
			}
			if sw != nil {
				sw.Flush()
				fmt.Println()
			} else if err := printResults([]*inference.Result{res}, jsonOutput, rawOutput); err != nil {
				return err
			}
			log.Debug("generation finished", "id", res.ID, "finish", string(res.Finish), "seed", res.Seed)
			if showStats && !jsonOutput {
				printStats(res)
			}
			return nil
		},
	}
}

func printResults(results []*inference.Result, asJSON, raw bool) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if len(results) == 1 {
			return enc.Encode(results[0])
		}
		return enc.Encode(results)
	}
	for i, res := range results {
		for j, s := range res.Samples {
			if len(results) > 1 || len(res.Samples) > 1 {
				fmt.Printf("======== prompt %d sample %d ========\n", i+1, j+1)
			}
			text := s.Text
			if raw {
				text = escapeRawOutput(text)
			}
			fmt.Println(text)
		}
	}
	return nil
}

func printStats(res *inference.Result) {
	st := res.Stats
	fmt.Fprintf(os.Stderr, "\nStats: prompt=%d generated=%d time=%s speed=%.2f tok/s finish=%s seed=%d\n",
		st.PromptTokens, st.TokensGenerated, st.Duration.Round(1e6), st.TPS, res.Finish, res.Seed)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%s has no prompts", path)
	}
	return lines, nil
}
