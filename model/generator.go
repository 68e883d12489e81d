package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docchat/types"
)

// Generator is a text-generation backend: one system instruction, one user message, one reply.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindRateLimited
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindMalformed:
		return "malformed"
	default:
		return "other"
	}
}

// BackendError classifies a failed Generate call.
type BackendError struct {
	Backend string
	Kind    ErrorKind
	Status  int
	Err     error
}

func (e *BackendError) Error() string {
	var b strings.Builder
	b.WriteString(e.Backend)
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *BackendError) Unwrap() error { return e.Err }

// KindOf reports the kind of a backend failure; errors that are not BackendErrors count as KindOther.
func KindOf(err error) ErrorKind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindOther
}

func IsRateLimited(err error) bool {
	return err != nil && KindOf(err) == KindRateLimited
}

// NewGenerator builds the backend named in cfg.Backend, wrapped in Retry when cfg.Retries > 0.
func NewGenerator(cfg types.LLMConfig, logger *slog.Logger) (Generator, error) {
	var gen Generator
	switch cfg.Backend {
	case "", "claude":
		c, err := NewClaude(cfg)
		if err != nil {
			return nil, err
		}
		gen = c
	case "ollama":
		gen = NewOllama(cfg.Url, cfg.Model)
	case "gemini":
		g, err := NewGemini(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		gen = g
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}
	if cfg.Retries > 0 {
		gen = Retry(gen, cfg.Retries+1, 300*time.Millisecond, logger)
	}
	return gen, nil
}

type retrying struct {
	next        Generator
	maxAttempts int
	delay       time.Duration
	sleep       func(context.Context, time.Duration) error
	logger      *slog.Logger
}

// Retry wraps gen so that rate-limited and transient failures are attempted again,
// waiting attempt*delay between tries. Malformed replies are returned at once.
func Retry(gen Generator, maxAttempts int, delay time.Duration, logger *slog.Logger) Generator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retrying{next: gen, maxAttempts: maxAttempts, delay: delay, sleep: sleepCtx, logger: logger}
}

func (r *retrying) Generate(ctx context.Context, system, user string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		out, err := r.next.Generate(ctx, system, user)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if KindOf(err) == KindMalformed || errors.Is(err, context.Canceled) {
			return "", err
		}
		if attempt == r.maxAttempts {
			break
		}
		r.logger.Warn("[LLM] generate failed, retrying", "attempt", attempt, "error", err)
		if err := r.sleep(ctx, time.Duration(attempt)*r.delay); err != nil {
			return "", lastErr
		}
	}
	return "", fmt.Errorf("generate failed after %d attempts: %w", r.maxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
