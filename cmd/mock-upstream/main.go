// Command mock-upstream serves a deterministic imitation of the OpenAI API
// for local development and end-to-end tests.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/tjfontaine/aiwire/internal/config"
	"github.com/tjfontaine/aiwire/internal/mockserver"
	"github.com/tjfontaine/aiwire/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "mock-upstream:", err)
		os.Exit(1)
	}
}

func command() *cli.Command {
	return &cli.Command{
		Name:  "mock-upstream",
		Usage: "serve a scripted OpenAI-compatible API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: config.DefaultPath, Sources: cli.EnvVars("AIWIRE_CONFIG")},
			&cli.IntFlag{Name: "port", Usage: "listen port (default: server.port)"},
			&cli.StringFlag{Name: "api-key", Usage: "only accept this bearer token", Sources: cli.EnvVars("MOCK_API_KEY")},
			&cli.DurationFlag{Name: "frame-delay", Usage: "pause between streamed frames"},
		},
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	logger, err := telemetry.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if cfg.Telemetry.Tracing {
		shutdown, err := telemetry.InitTracer("mock-upstream", os.Stderr, logger)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	port := cfg.Server.Port
	if p := cmd.Int("port"); p != 0 {
		port = p
	}

	opts := mockserver.Options{
		Port:       port,
		APIKey:     cmd.String("api-key"),
		Logger:     logger,
		FrameDelay: cmd.Duration("frame-delay"),
	}
	if cfg.Telemetry.Metrics {
		opts.Metrics = promhttp.Handler()
	}

	srv := mockserver.New(opts)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("mock upstream stopped")
	return nil
}
