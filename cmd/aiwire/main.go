// Command aiwire is a command line client for the OpenAI-compatible API.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/tjfontaine/aiwire/internal/api/openai"
	"github.com/tjfontaine/aiwire/internal/config"
	"github.com/tjfontaine/aiwire/internal/conversation"
	"github.com/tjfontaine/aiwire/internal/storage"
	"github.com/tjfontaine/aiwire/internal/storage/memory"
	"github.com/tjfontaine/aiwire/internal/storage/sqlite"
	"github.com/tjfontaine/aiwire/internal/telemetry"
)

// app is the state shared by every subcommand, built in before.
type app struct {
	out      io.Writer
	cfg      *config.Config
	logger   *slog.Logger
	client   *openai.Client
	store    storage.TranscriptStore
	recorder *conversation.Recorder
	shutdown func(context.Context) error
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{out: os.Stdout}
	if err := a.command().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "aiwire:", err)
		os.Exit(1)
	}
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:  "aiwire",
		Usage: "talk to an OpenAI-compatible API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				Value:   config.DefaultPath,
				Sources: cli.EnvVars("AIWIRE_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override log.level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "record",
				Usage: "record streams into this SQLite database",
			},
			&cli.BoolFlag{
				Name:  "trace",
				Usage: "export spans to stderr",
			},
		},
		Before: a.before,
		After:  a.after,
		Commands: []*cli.Command{
			completeCommand(a),
			chatCommand(a),
			modelsCommand(a),
			uploadCommand(a),
			realtimeCommand(a),
			tokensCommand(a),
			transcriptsCommand(a),
		},
	}
}

func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return ctx, err
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	a.cfg = cfg

	a.logger, err = telemetry.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return ctx, err
	}
	slog.SetDefault(a.logger)

	if cmd.Bool("trace") || cfg.Telemetry.Tracing {
		a.shutdown, err = telemetry.InitTracer("aiwire", os.Stderr, a.logger)
		if err != nil {
			return ctx, fmt.Errorf("init tracer: %w", err)
		}
	}

	if err := a.openStore(cmd.String("record")); err != nil {
		return ctx, err
	}

	a.client = openai.NewClient(cfg.OpenAI.APIKey,
		openai.WithBaseURL(cfg.OpenAI.BaseURL),
		openai.WithRealtimeURL(cfg.OpenAI.RealtimeURL),
		openai.WithOrganization(cfg.OpenAI.Organization),
		openai.WithTimeout(cfg.OpenAI.Timeout),
		openai.WithMaxFrameSize(cfg.OpenAI.MaxFrameSize),
		openai.WithLogger(a.logger),
	)
	return ctx, nil
}

// openStore picks the transcript store: --record wins over storage.type.
func (a *app) openStore(recordPath string) error {
	if recordPath == "" && a.cfg.Storage.Type == "sqlite" {
		recordPath = a.cfg.Storage.SQLite.Path
	}
	switch {
	case recordPath != "":
		store, err := sqlite.New(recordPath)
		if err != nil {
			return fmt.Errorf("open transcript store: %w", err)
		}
		a.store = store
	case a.cfg.Storage.Type == "memory":
		a.store = memory.New()
	case a.cfg.Storage.Type == "none", a.cfg.Storage.Type == "":
		return nil
	default:
		return fmt.Errorf("unknown storage type %q", a.cfg.Storage.Type)
	}
	a.recorder = conversation.NewRecorder(a.store, a.logger)
	return nil
}

func (a *app) after(ctx context.Context, cmd *cli.Command) error {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close transcript store", slog.String("error", err.Error()))
		}
	}
	if a.shutdown != nil {
		if err := a.shutdown(context.WithoutCancel(ctx)); err != nil {
			a.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}
	return nil
}
