package agent

import (
	"context"
	"errors"
)

var errEmptyReply = errors.New("backend returned no text")

// recombine merges the ordered outcomes with one backend call. If that call fails the
// parts are concatenated instead, so the returned text is never empty.
func (p *Pipeline) recombine(ctx context.Context, req Request, outcomes []SegmentOutcome) (string, bool) {
	parts := make([]string, len(outcomes))
	for i, o := range outcomes {
		parts[i] = o.Text
	}

	text, took, err := p.generate(ctx, systemInstruction(req), recombineInstruction(req, parts))
	if err == nil && isBlank(text) {
		err = errEmptyReply
	}
	if err != nil {
		p.logger.Warn("[PIPELINE] recombination failed, concatenating parts",
			"document", req.DocumentName, "parts", len(parts), "took", took, "error", err)
		return fallbackText(req, parts), false
	}

	p.logger.Debug("[PIPELINE] parts recombined", "document", req.DocumentName, "parts", len(parts), "took", took)
	return text, true
}
