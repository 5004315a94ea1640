package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/tjfontaine/aiwire/internal/api/openai"
	"github.com/tjfontaine/aiwire/internal/conversation"
	"github.com/tjfontaine/aiwire/internal/domain"
	"github.com/tjfontaine/aiwire/internal/model"
	"github.com/tjfontaine/aiwire/internal/storage"
	"github.com/tjfontaine/aiwire/internal/stream"
	"github.com/tjfontaine/aiwire/internal/tokens"
)

const defaultRealtimeModel = "gpt-4o-realtime-preview"

func modelFlag() cli.Flag {
	return &cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "model name (default: openai.model)"}
}

func streamFlag() cli.Flag {
	return &cli.BoolFlag{Name: "stream", Aliases: []string{"s"}, Usage: "stream the response"}
}

func (a *app) model(cmd *cli.Command) string {
	if m := cmd.String("model"); m != "" {
		return m
	}
	return a.cfg.OpenAI.Model
}

func promptArg(cmd *cli.Command) (string, error) {
	prompt := strings.Join(cmd.Args().Slice(), " ")
	if prompt == "" {
		return "", fmt.Errorf("%s: missing prompt", cmd.Name)
	}
	return prompt, nil
}

func completeCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "complete",
		Usage:     "run a legacy text completion",
		ArgsUsage: "PROMPT...",
		Flags:     []cli.Flag{modelFlag(), streamFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			prompt, err := promptArg(cmd)
			if err != nil {
				return err
			}
			req := &openai.CompletionRequest{Model: a.model(cmd), Prompt: prompt}

			if !cmd.Bool("stream") {
				c, err := a.client.CreateCompletion(ctx, req)
				if err != nil {
					return err
				}
				for _, choice := range c.Choices {
					fmt.Fprintln(a.out, choice.Text)
				}
				a.logUsage(c.Usage)
				return nil
			}

			req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
			dec, err := a.client.StreamCompletion(ctx, req)
			if err != nil {
				return err
			}
			return a.printStream(ctx, "completions.stream", req.Model, dec)
		},
	}
}

func chatCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "run a chat completion",
		ArgsUsage: "MESSAGE...",
		Flags: []cli.Flag{
			modelFlag(),
			streamFlag(),
			&cli.StringFlag{Name: "system", Usage: "system prompt"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			prompt, err := promptArg(cmd)
			if err != nil {
				return err
			}
			var messages []model.ChatMessage
			if system := cmd.String("system"); system != "" {
				messages = append(messages, model.ChatMessage{Role: "system", Content: &system})
			}
			messages = append(messages, model.ChatMessage{Role: "user", Content: &prompt})
			req := &openai.ChatCompletionRequest{Model: a.model(cmd), Messages: messages}

			if !cmd.Bool("stream") {
				c, err := a.client.CreateChatCompletion(ctx, req)
				if err != nil {
					return err
				}
				for _, choice := range c.Choices {
					if choice.Message.Content != nil {
						fmt.Fprintln(a.out, *choice.Message.Content)
					}
				}
				a.logUsage(c.Usage)
				return nil
			}

			req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
			dec, err := a.client.StreamChatCompletion(ctx, req)
			if err != nil {
				return err
			}
			return a.printStream(ctx, "chat.stream", req.Model, dec)
		},
	}
}

func modelsCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "list available models",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			list, err := a.client.ListModels(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			for _, m := range model.Items[*model.Model](list) {
				fmt.Fprintf(tw, "%s\t%s\n", m.ID, m.OwnedBy)
			}
			for _, u := range list.Unrecognized {
				a.logger.Warn("skipped list element",
					slog.Int("index", u.Index),
					slog.String("error", u.Err.Error()),
				)
			}
			return tw.Flush()
		},
	}
}

func uploadCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "upload a file",
		ArgsUsage: "PATH",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "purpose", Value: "fine-tune", Usage: "file purpose"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("upload: expected exactly one path")
			}
			f, err := a.client.UploadFile(ctx, cmd.Args().First(), cmd.String("purpose"))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s\t%d bytes\t%s\n", f.ID, f.Bytes, f.Filename)
			return nil
		},
	}
}

func realtimeCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "realtime",
		Usage:     "send one message over a realtime session and print the response",
		ArgsUsage: "MESSAGE...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Value: defaultRealtimeModel, Usage: "realtime model"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			prompt, err := promptArg(cmd)
			if err != nil {
				return err
			}
			rc, err := a.client.ConnectRealtime(ctx, cmd.String("model"))
			if err != nil {
				return err
			}
			defer rc.Close()

			item := &model.ConversationItemCreateEvent{Item: model.ConversationItem{
				Type:    "message",
				Role:    "user",
				Content: []model.ContentPart{model.TextPart{Text: prompt}},
			}}
			if err := rc.Send(ctx, item); err != nil {
				return err
			}
			if err := rc.Send(ctx, &model.ResponseCreateEvent{}); err != nil {
				return err
			}

			seq := a.record(ctx, "realtime", cmd.String("model"), rc.Events)
			for ev, err := range seq {
				if err != nil {
					if terminal(err) {
						return err
					}
					a.logger.Warn("skipped realtime event", slog.String("error", err.Error()))
					continue
				}
				rt := ev.(*model.RealtimeEvent)
				a.logger.Debug("realtime event", slog.String("type", rt.Type), slog.String("event_id", rt.EventID))
				switch p := rt.Payload.(type) {
				case model.OutputDelta:
					if rt.Type != model.EventResponseAudioDelta {
						fmt.Fprint(a.out, p.Delta)
					}
				case model.ResponseUpdate:
					if rt.Type == model.EventResponseDone {
						fmt.Fprintln(a.out)
						return nil
					}
				}
			}
			fmt.Fprintln(a.out)
			return nil
		},
	}
}

func tokensCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "tokens",
		Usage:     "estimate the token count of a prompt",
		ArgsUsage: "PROMPT...",
		Flags:     []cli.Flag{modelFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			prompt, err := promptArg(cmd)
			if err != nil {
				return err
			}
			reg := tokens.NewRegistry()
			reg.Register(tokens.NewTiktokenCounter())

			res, err := reg.CountTokens(ctx, &tokens.Request{Model: a.model(cmd), Prompt: prompt})
			if err != nil {
				return err
			}
			if res.Estimated {
				fmt.Fprintf(a.out, "%d (estimated)\n", res.InputTokens)
			} else {
				fmt.Fprintf(a.out, "%d\n", res.InputTokens)
			}
			return nil
		},
	}
}

func transcriptsCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "transcripts",
		Usage: "inspect recorded streams",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list recorded transcripts, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "operation", Usage: "only this operation"},
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if a.store == nil {
						return errNoStore
					}
					list, err := a.store.ListTranscripts(ctx, storage.ListOptions{
						Operation: cmd.String("operation"),
						Limit:     cmd.Int("limit"),
					})
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
					for _, t := range list {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Operation, t.Model, t.State, t.ErrorKind)
					}
					return tw.Flush()
				},
			},
			{
				Name:      "show",
				Usage:     "print a transcript as JSON",
				ArgsUsage: "ID",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if a.store == nil {
						return errNoStore
					}
					t, err := a.store.GetTranscript(ctx, cmd.Args().First())
					if err != nil {
						return err
					}
					enc := json.NewEncoder(a.out)
					enc.SetIndent("", "  ")
					return enc.Encode(t)
				},
			},
		},
	}
}

var errNoStore = errors.New("no transcript store: pass --record or set storage.type")

// record wraps the decoder's sequence with a transcript when recording is on.
func (a *app) record(ctx context.Context, operation, modelName string, dec *stream.Decoder[model.Event]) iter.Seq2[model.Event, error] {
	if a.recorder == nil {
		return dec.All(ctx)
	}
	s := a.recorder.Start(ctx, operation, modelName, nil)
	a.logger.Debug("recording stream", slog.String("transcript_id", s.ID()))
	return conversation.Record(ctx, s, dec)
}

// printStream writes text deltas as they arrive. Isolated element errors are
// logged; a terminal error is returned once the sequence ends.
func (a *app) printStream(ctx context.Context, operation, modelName string, dec *stream.Decoder[model.Event]) error {
	defer dec.Close()

	var final error
	for ev, err := range a.record(ctx, operation, modelName, dec) {
		if err != nil {
			if terminal(err) {
				final = err
			} else {
				a.logger.Warn("skipped stream element", slog.String("error", err.Error()))
			}
			continue
		}
		switch e := ev.(type) {
		case *model.StreamDelta:
			fmt.Fprint(a.out, e.Text)
		case *model.UsageReport:
			a.logUsage(&e.Usage)
		}
	}
	fmt.Fprintln(a.out)
	return final
}

func (a *app) logUsage(u *model.Usage) {
	if u == nil {
		return
	}
	a.logger.Info("usage",
		slog.Int("prompt_tokens", u.PromptTokens),
		slog.Int("completion_tokens", u.CompletionTokens),
		slog.Int("total_tokens", u.TotalTokens),
	)
}

func terminal(err error) bool {
	var ce *domain.ClientError
	return !errors.As(err, &ce) || ce.Terminal()
}
