package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docchat/types"
)

const (
	claudeDefaultURL   = "https://api.anthropic.com/v1/messages"
	claudeDefaultModel = "claude-3-haiku-20240307"
	claudeAPIVersion   = "2023-06-01"
)

// Claude calls the Anthropic Messages API.
type Claude struct {
	url         string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *claudeError `json:"error,omitempty"`
}

type claudeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewClaude(cfg types.LLMConfig) (*Claude, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("claude: api key not configured")
	}
	c := &Claude{
		url:         cfg.Url,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: 0.2,
		client:      &http.Client{Timeout: 5 * time.Minute},
	}
	if c.url == "" {
		c.url = claudeDefaultURL
	}
	if c.model == "" {
		c.model = claudeDefaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = 1500
	}
	return c, nil
}

func (c *Claude) Generate(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(claudeRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		System:      system,
		Messages:    []claudeMessage{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", &BackendError{Backend: "claude", Kind: KindOther, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", &BackendError{Backend: "claude", Kind: KindOther, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", claudeAPIVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &BackendError{Backend: "claude", Kind: KindOther, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &BackendError{Backend: "claude", Kind: KindOther, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var out claudeResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode/100 != 2 {
		kind := KindOther
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && out.Error != nil {
			msg = out.Error.Message
			if out.Error.Type == "rate_limit_error" {
				kind = KindRateLimited
			}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			kind = KindRateLimited
		}
		return "", &BackendError{Backend: "claude", Kind: kind, Status: resp.StatusCode, Err: errors.New(msg)}
	}

	if decodeErr != nil {
		return "", &BackendError{Backend: "claude", Kind: KindMalformed, Status: resp.StatusCode, Err: fmt.Errorf("failed to unmarshal response: %w", decodeErr)}
	}
	for _, block := range out.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", &BackendError{Backend: "claude", Kind: KindMalformed, Status: resp.StatusCode, Err: errors.New("no text content in response")}
}
