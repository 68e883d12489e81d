package agent

import (
	"context"
	"log/slog"
	"time"

	"docchat/model"
)

const DefaultCallTimeout = 2 * time.Minute

type Options struct {
	// MaxSegmentSize is the segment length limit in characters.
	MaxSegmentSize int
	// CallTimeout bounds every backend call; a timeout counts as a backend failure.
	CallTimeout time.Duration
	// DirectSingleSegment answers a document that fits one segment with a single
	// call and skips recombination.
	DirectSingleSegment bool
	// Tokens, when set, adds prompt token estimates to the segment log lines.
	Tokens TokenCounter
}

// Pipeline splits long text, asks the backend about every segment in order and
// merges the partial answers. It keeps no per-request state and may be shared.
type Pipeline struct {
	gen    model.Generator
	logger *slog.Logger
	opts   Options
}

func NewPipeline(gen model.Generator, logger *slog.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxSegmentSize <= 0 {
		opts.MaxSegmentSize = DefaultMaxSegmentSize
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	return &Pipeline{
		gen:    gen,
		logger: logger,
		opts:   opts,
	}
}

// Run produces exactly one answer for req. Backend failures only degrade the answer;
// errors are returned for invalid requests and for text with nothing to process.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if isBlank(req.Text) {
		return nil, ErrEmptyInput
	}

	start := time.Now()
	segments := Split(req.Text, p.opts.MaxSegmentSize)
	p.logger.Info("[PIPELINE] document split",
		"document", req.DocumentName,
		"task", string(req.Task),
		"transcript", req.IsTranscript,
		"chars", len([]rune(req.Text)),
		"segments", len(segments))

	if len(segments) == 1 && p.opts.DirectSingleSegment {
		return p.runDirect(ctx, req), nil
	}

	outcomes := p.processSegments(ctx, req, segments)
	failed := 0
	for _, o := range outcomes {
		if o.Failed() {
			failed++
		}
	}

	text, unified := p.recombine(ctx, req, outcomes)
	p.logger.Info("[PIPELINE] done",
		"document", req.DocumentName,
		"segments", len(segments),
		"failed", failed,
		"unified", unified,
		"took", time.Since(start))

	return &Result{
		Text:     text,
		Segments: len(segments),
		Failed:   failed,
		Unified:  unified,
	}, nil
}

func (p *Pipeline) runDirect(ctx context.Context, req Request) *Result {
	user := userMessage(req, req.Text, wholeInstruction(req))
	text, took, err := p.generate(ctx, systemInstruction(req), user)
	if err == nil && isBlank(text) {
		err = errEmptyReply
	}
	if err != nil {
		p.logger.Warn("[PIPELINE] direct call failed", "document", req.DocumentName, "took", took, "error", err)
		return &Result{
			Text:     singleCallFailureText(req),
			Segments: 1,
			Failed:   1,
		}
	}
	p.logger.Info("[PIPELINE] done", "document", req.DocumentName, "segments", 1, "direct", true, "took", took)
	return &Result{Text: text, Segments: 1, Unified: true}
}
