package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quill/internal/version"
)

type versionReport struct {
	version.Info
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func versionCmd() *cli.Command {
	var jsonOutput bool
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print version information as JSON", Destination: &jsonOutput},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			report := versionReport{
				Info:      version.Resolve(),
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}
			if err := writeVersion(os.Stdout, report, jsonOutput); err != nil {
				return cli.Exit(fmt.Sprintf("version: %v", err), 1)
			}
			return nil
		},
	}
}

func writeVersion(w io.Writer, r versionReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	fmt.Fprintf(w, "quill %s\n", r.Info)
	if r.BuildTime != "" {
		fmt.Fprintf(w, "  built:    %s\n", r.BuildTime)
	}
	_, err := fmt.Fprintf(w, "  go:       %s %s\n", r.GoVersion, r.Platform)
	return err
}
