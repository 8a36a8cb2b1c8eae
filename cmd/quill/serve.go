package main

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quill/internal/api"
	"github.com/samcharles93/quill/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr         string
		readTimeout  time.Duration
		genTimeout   time.Duration
		rps          float64
		burst        int64
		storeEntries int64
		noUI         bool
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API (/v1/generate, /v1/encode, /v1/decode, /v1/model)",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.DurationFlag{
				Name:        "generate-timeout",
				Usage:       "per-request generation limit (0 = none)",
				Destination: &genTimeout,
			},
			&cli.Float64Flag{
				Name:        "rps",
				Usage:       "generate requests per second (0 = unlimited)",
				Destination: &rps,
			},
			&cli.Int64Flag{
				Name:        "burst",
				Usage:       "generate request burst",
				Value:       4,
				Destination: &burst,
			},
			&cli.Int64Flag{
				Name:        "store",
				Usage:       "finished generations kept for GET /v1/generations/:id",
				Value:       api.DefaultStoreCapacity,
				Destination: &storeEntries,
			},
			&cli.BoolFlag{
				Name:        "no-ui",
				Usage:       "do not serve the browser playground at /",
				Destination: &noUI,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if cfg.ServerAddress != "" && !cmd.IsSet("addr") {
				addr = cfg.ServerAddress
			}
			if cfg.GenerateRPS > 0 && !cmd.IsSet("rps") {
				rps = cfg.GenerateRPS
			}

			g, dir, err := loadGenerator(ctx, cmd, 0)
			if err != nil {
				return err
			}
			defer func() { _ = g.Close() }()

			server := api.NewServer(g, api.NewGenerationStore(int(storeEntries)), log, api.Config{
				ModelID:       filepath.Base(dir),
				Defaults:      cfg.requestDefaults(),
				GenerateRPS:   rps,
				GenerateBurst: int(burst),
				Timeout:       genTimeout,
				UI:            !noUI,
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "model", dir)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
