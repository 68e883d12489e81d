package agent

import (
	"context"
	"fmt"
	"time"

	"docchat/model"
)

// SegmentOutcome is the tagged result of one segment: the backend text on success,
// or a failure marker plus the cause.
type SegmentOutcome struct {
	Index int
	Text  string
	Err   error
}

func (o SegmentOutcome) Failed() bool { return o.Err != nil }

func failureMarker(index int) string {
	return fmt.Sprintf("[Error processing part %d]", index+1)
}

// processSegments runs the segments one at a time, in order. A failed segment
// becomes a marker and the loop moves on.
func (p *Pipeline) processSegments(ctx context.Context, req Request, segments []Segment) []SegmentOutcome {
	outcomes := make([]SegmentOutcome, 0, len(segments))
	for _, seg := range segments {
		outcomes = append(outcomes, p.processSegment(ctx, req, seg))
	}
	return outcomes
}

func (p *Pipeline) processSegment(ctx context.Context, req Request, seg Segment) SegmentOutcome {
	user := userMessage(req, seg.Text, segmentInstruction(req, seg.Index+1, seg.Total))

	text, took, err := p.generate(ctx, systemInstruction(req), user)
	attrs := []any{
		"document", req.DocumentName,
		"part", seg.Index + 1,
		"of", seg.Total,
		"chars", len([]rune(seg.Text)),
		"took", took,
	}
	if p.opts.Tokens != nil {
		attrs = append(attrs, "prompt_tokens", p.opts.Tokens.Count(user))
	}
	if err != nil {
		attrs = append(attrs, "kind", model.KindOf(err).String(), "error", err)
		p.logger.Warn("[PIPELINE] segment failed", attrs...)
		return SegmentOutcome{Index: seg.Index, Text: failureMarker(seg.Index), Err: err}
	}
	p.logger.Debug("[PIPELINE] segment processed", attrs...)
	return SegmentOutcome{Index: seg.Index, Text: text}
}

// generate issues one backend call bounded by the per-call timeout.
func (p *Pipeline) generate(ctx context.Context, system, user string) (string, time.Duration, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	out, err := p.gen.Generate(callCtx, system, user)
	return out, time.Since(start), err
}
