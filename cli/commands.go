// Package cli runs the document pipeline on local files, without the database
// or the HTTP server.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"docchat/app/agent"
	"docchat/model"
	"docchat/types"

	"github.com/spf13/cobra"
)

// GeneratorFactory builds the backend used by the summarize and ask commands.
type GeneratorFactory func(types.LLMConfig, *slog.Logger) (model.Generator, error)

type options struct {
	maxSize    int
	transcript bool
	question   string
	direct     bool
}

func NewRootCmd(cfg types.Config, newGen GeneratorFactory) *cobra.Command {
	opts := &options{maxSize: cfg.MaxSegmentSize, direct: cfg.DirectSingleSegment}

	root := &cobra.Command{
		Use:           "docchat",
		Short:         "Summarize and question long documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().IntVar(&opts.maxSize, "max-segment", opts.maxSize, "maximum segment size in characters")

	split := &cobra.Command{
		Use:   "split <file>",
		Short: "Show how a file is split into segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(args[0])
			if err != nil {
				return err
			}
			segments := agent.Split(text, opts.maxSize)
			fmt.Fprintf(cmd.OutOrStdout(), "%d segments\n", len(segments))
			for _, s := range segments {
				fmt.Fprintf(cmd.OutOrStdout(), "part %d: %d chars\n", s.Index+1, len([]rune(s.Text)))
			}
			return nil
		},
	}

	summarize := &cobra.Command{
		Use:   "summarize <file>",
		Short: "Summarize a text or markdown file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cfg, newGen, opts, args[0], agent.TaskSummarize)
		},
	}

	ask := &cobra.Command{
		Use:   "ask <file>",
		Short: "Answer a question about a text or markdown file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cfg, newGen, opts, args[0], agent.TaskAnswer)
		},
	}
	ask.Flags().StringVarP(&opts.question, "question", "q", "", "question to answer")
	_ = ask.MarkFlagRequired("question")

	for _, c := range []*cobra.Command{summarize, ask} {
		c.Flags().BoolVar(&opts.transcript, "transcript", false, "treat the file as an audio transcription")
		c.Flags().BoolVar(&opts.direct, "direct", opts.direct, "answer single-segment files with one call")
	}

	root.AddCommand(split, summarize, ask)
	return root
}

func run(cmd *cobra.Command, cfg types.Config, newGen GeneratorFactory, opts *options, path string, task agent.Task) error {
	text, err := readText(path)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
	gen, err := newGen(cfg.LLM, logger)
	if err != nil {
		return err
	}

	pipeline := agent.NewPipeline(gen, logger, agent.Options{
		MaxSegmentSize:      opts.maxSize,
		CallTimeout:         cfg.SegmentCallTimeout,
		DirectSingleSegment: opts.direct,
	})

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	res, err := pipeline.Run(cmd.Context(), agent.Request{
		Text:         text,
		Task:         task,
		Question:     opts.question,
		DocumentName: name,
		IsTranscript: opts.transcript,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.Text)
	if res.Failed > 0 || !res.Unified {
		logger.Warn("answer is incomplete", "segments", res.Segments, "failed", res.Failed, "unified", res.Unified)
	}
	return nil
}

func readText(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", "":
	default:
		return "", errors.New("only plain text and markdown files are supported; index PDFs with the loader")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
