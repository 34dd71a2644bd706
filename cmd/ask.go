package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/mindsearch/config"
	"github.com/mohammad-safakhou/mindsearch/internal/pipeline"
	"github.com/mohammad-safakhou/mindsearch/internal/runtime"
	"github.com/mohammad-safakhou/mindsearch/internal/server"
	"github.com/mohammad-safakhou/mindsearch/internal/stream"
	"github.com/mohammad-safakhou/mindsearch/models"
	"github.com/mohammad-safakhou/mindsearch/provider"
)

var errInterrupted = errors.New("interrupted")

func askCMD() *cobra.Command {
	var quiet, asJSON bool
	var opts provider.Options
	var temperature float64
	var ask = &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question and print the event stream",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			logger, err := runtime.NewLogger(cfg.General.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if cmd.Flags().Changed("temperature") {
				opts.Temperature = &temperature
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			builder, err := server.NewPipelineBuilder(ctx, cfg, logger, nil, nil)
			if err != nil {
				return err
			}
			defer func() { _ = builder.Close() }()
			runner, err := builder.Build(ctx, opts)
			if err != nil {
				return err
			}
			q := models.Query{Text: strings.Join(args, " ")}
			return ask(ctx, runner, q, cfg.Pipeline.EventBuffer, newPrinter(cmd.OutOrStdout(), quiet, asJSON))
		},
	}
	ask.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the final answer")
	ask.Flags().BoolVar(&asJSON, "json", false, "print every event as one JSON line")
	ask.Flags().StringVar(&opts.ChatModel, "chat-model", "", "chat model override")
	ask.Flags().StringVar(&opts.EmbeddingModel, "embedding-model", "", "embedding model override")
	ask.Flags().Float64Var(&temperature, "temperature", 0.7, "sampling temperature")
	ask.Flags().IntVar(&opts.MaxTokens, "context-size", 0, "max tokens")

	return ask
}

// ask runs q and forwards its events to sink. Interrupting ctx cancels the
// stream; the run then stops at its next stage boundary.
func ask(ctx context.Context, runner server.Runner, q models.Query, buffer int, sink stream.Sink) error {
	out := stream.New(buffer)
	done := make(chan pipeline.Result, 1)
	go func() { done <- runner.Run(ctx, q, out) }()

	ferr := out.Forward(ctx, sink)
	res := <-done
	if ctx.Err() != nil {
		return errInterrupted
	}
	if ferr != nil {
		return ferr
	}
	return res.Err
}

type printer struct {
	w      io.Writer
	quiet  bool
	asJSON bool
}

func newPrinter(w io.Writer, quiet, asJSON bool) stream.Sink {
	return &printer{w: w, quiet: quiet, asJSON: asJSON}
}

func (p *printer) Send(ev stream.Event) error {
	if p.asJSON {
		b, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(p.w, "%s\n", b)
		return err
	}
	var err error
	switch d := ev.Data.(type) {
	case stream.ResponseChunk:
		_, err = io.WriteString(p.w, d.Chunk)
	case stream.ResponseFinished:
		_, err = io.WriteString(p.w, "\n")
	case stream.Error:
		_, err = fmt.Fprintf(p.w, "error: %s\n", d.Message)
	default:
		if !p.quiet {
			err = p.progress(ev)
		}
	}
	return err
}

func (p *printer) progress(ev stream.Event) error {
	var err error
	switch d := ev.Data.(type) {
	case stream.Plans:
		var b strings.Builder
		b.WriteString("Plans:\n")
		for _, pl := range d.Plans {
			fmt.Fprintf(&b, "  - %s\n", pl.Name)
		}
		_, err = io.WriteString(p.w, b.String())
	case stream.SearchResult:
		_, err = fmt.Fprintf(p.w, "[%s] %d results\n", d.PlanName, len(d.Results))
	case stream.PlanFinished:
		_, err = fmt.Fprintf(p.w, "[%s] %s\n", d.PlanName, d.Answer)
	case stream.OutlineFinished:
		_, err = fmt.Fprintf(p.w, "\n%s\n\n", d.Outline)
	case stream.SourcesFinal:
		var b strings.Builder
		for _, s := range d.Sources {
			fmt.Fprintf(&b, "[%d] %s %s\n", s.Index, s.Title, s.URL)
		}
		b.WriteString("\n")
		_, err = io.WriteString(p.w, b.String())
	}
	return err
}
