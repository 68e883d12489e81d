package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"docchat/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClaude(t *testing.T, h http.HandlerFunc) *Claude {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClaude(types.LLMConfig{Url: srv.URL, APIKey: "secret"})
	require.NoError(t, err)
	return c
}

func TestClaudeGenerate(t *testing.T) {
	c := newTestClaude(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, claudeAPIVersion, r.Header.Get("anthropic-version"))

		var req claudeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, claudeDefaultModel, req.Model)
		assert.Equal(t, 1500, req.MaxTokens)
		assert.Equal(t, "be brief", req.System)
		if assert.Len(t, req.Messages, 1) {
			assert.Equal(t, "user", req.Messages[0].Role)
			assert.Equal(t, "hello", req.Messages[0].Content)
		}

		w.Write([]byte(`{"content":[{"type":"text","text":"hi there"}]}`))
	})

	out, err := c.Generate(context.Background(), "be brief", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
}

func TestClaudeErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
	}{
		{"too many requests", http.StatusTooManyRequests, `{"error":{"type":"rate_limit_error","message":"slow down"}}`, KindRateLimited},
		{"rate limit type", 529, `{"error":{"type":"rate_limit_error","message":"slow down"}}`, KindRateLimited},
		{"server error", http.StatusInternalServerError, `oops`, KindOther},
		{"bad json", http.StatusOK, `{"content":`, KindMalformed},
		{"no text", http.StatusOK, `{"content":[]}`, KindMalformed},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClaude(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})
			_, err := c.Generate(context.Background(), "", "q")
			require.Error(t, err)
			assert.Equal(t, tc.kind, KindOf(err))
		})
	}
}

func TestNewClaudeRequiresKey(t *testing.T) {
	_, err := NewClaude(types.LLMConfig{APIKey: " "})
	assert.Error(t, err)
}
