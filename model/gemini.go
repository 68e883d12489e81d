package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"docchat/types"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini generates through the Google Gemini API.
type Gemini struct {
	models    *genai.Models
	model     string
	maxTokens int32
}

func NewGemini(ctx context.Context, cfg types.LLMConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1500
	}

	return &Gemini{
		models:    client.Models,
		model:     model,
		maxTokens: int32(maxTokens),
	}, nil
}

func (g *Gemini) Generate(ctx context.Context, system, user string) (string, error) {
	conf := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.2),
		MaxOutputTokens: g.maxTokens,
	}
	if system != "" {
		conf.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(user), conf)
	if err != nil {
		return "", classifyGeminiError(err)
	}

	out := resp.Text()
	if strings.TrimSpace(out) == "" {
		return "", &BackendError{Backend: "gemini", Kind: KindMalformed, Err: errors.New("no text in response")}
	}
	return out, nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		kind := KindOther
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" {
			kind = KindRateLimited
		}
		return &BackendError{Backend: "gemini", Kind: kind, Status: apiErr.Code, Err: err}
	}
	return &BackendError{Backend: "gemini", Kind: KindOther, Err: err}
}
