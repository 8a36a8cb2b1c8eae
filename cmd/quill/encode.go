package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quill/internal/tokenizer"
)

func loadTokenizer(cmd *cli.Command) (*tokenizer.GPT2Tokenizer, error) {
	applyModelConfig(cmd, cfg)
	dir, err := resolveModelDir(modelDir)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("error: resolve model: %v", err), 1)
	}
	tok, err := tokenizer.LoadDir(dir)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("error: load tokenizer: %v", err), 1)
	}
	return tok, nil
}

func encodeCmd() *cli.Command {
	var (
		specials   bool
		showPieces bool
		jsonOutput bool
	)
	return &cli.Command{
		Name:      "encode",
		Usage:     "Print the token ids of text (arguments, or stdin when none)",
		ArgsUsage: "[text...]",
		Flags: append(commonModelFlags(),
			&cli.BoolFlag{Name: "specials", Usage: "recognise <|endoftext|>", Destination: &specials},
			&cli.BoolFlag{Name: "pieces", Usage: "print each id with its token string", Destination: &showPieces},
			&cli.BoolFlag{Name: "json", Usage: "print ids as a JSON array", Destination: &jsonOutput},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			tok, err := loadTokenizer(c)
			if err != nil {
				return err
			}
			text := strings.Join(c.Args().Slice(), " ")
			if c.Args().Len() == 0 {
				data, err := readAllStdin()
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: read stdin: %v", err), 1)
				}
				text = string(data)
			}
			var ids []int
			if specials {
				ids, err = tok.EncodeWithSpecials(text)
			} else {
				ids, err = tok.Encode(text)
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: encode: %v", err), 1)
			}
			switch {
			case jsonOutput:
				return json.NewEncoder(os.Stdout).Encode(ids)
			case showPieces:
				for _, id := range ids {
					fmt.Printf("%6d  %s\n", id, strconv.Quote(tok.TokenString(id)))
				}
			default:
				fmt.Println(formatIDs(ids))
			}
			return nil
		},
	}
}

func decodeCmd() *cli.Command {
	var strict bool
	return &cli.Command{
		Name:      "decode",
		Usage:     "Print the text of token ids (arguments, or stdin when none)",
		ArgsUsage: "[id...]",
		Flags: append(commonModelFlags(),
			&cli.BoolFlag{Name: "strict", Usage: "fail on invalid UTF-8 instead of substituting U+FFFD", Destination: &strict},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			tok, err := loadTokenizer(c)
			if err != nil {
				return err
			}
			args := c.Args().Slice()
			if len(args) == 0 {
				data, err := readAllStdin()
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: read stdin: %v", err), 1)
				}
				args = []string{strings.Trim(string(data), "[] \n")}
			}
			ids, err := parseIDs(args)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			var text string
			if strict {
				text, err = tok.DecodeStrict(ids)
			} else {
				text, err = tok.Decode(ids)
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: decode: %v", err), 1)
			}
			fmt.Println(text)
			return nil
		},
	}
}

func formatIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, " ")
}
