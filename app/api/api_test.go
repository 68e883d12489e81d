package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"docchat/app/agent"
	"docchat/store"
	"docchat/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	docs    map[uuid.UUID]*types.Document
	recent  []types.DocumentRef
	results []types.Chunk
}

func (m *memStore) SaveDocument(context.Context, types.Document) error { return nil }

func (m *memStore) GetDocumentByID(_ context.Context, id uuid.UUID) (*types.Document, error) {
	doc, ok := m.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return doc, nil
}

func (m *memStore) ListRecentDocuments(_ context.Context, limit int) ([]types.DocumentRef, error) {
	if len(m.recent) > limit {
		return m.recent[:limit], nil
	}
	return m.recent, nil
}

func (m *memStore) DeleteChunksByDocID(context.Context, uuid.UUID) error { return nil }

func (m *memStore) Search(_ context.Context, _ []float32, limit int) ([]types.Chunk, error) {
	if len(m.results) > limit {
		return m.results[:limit], nil
	}
	return m.results, nil
}

type fakeRunner struct {
	mu     sync.Mutex
	reqs   []agent.Request
	result agent.Result
	err    error
}

func (f *fakeRunner) Run(_ context.Context, req agent.Request) (*agent.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	res := f.result
	return &res, nil
}

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, f.err
}

type fakeGen struct {
	reply string
	calls int
}

func (f *fakeGen) Generate(context.Context, string, string) (string, error) {
	f.calls++
	return f.reply, nil
}

type fixture struct {
	app    *fiber.App
	store  *memStore
	runner *fakeRunner
	repair *fakeGen
	doc    *types.Document
	dir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	doc := &types.Document{
		ID:        uuid.New(),
		Title:     "Biology 101",
		Content:   "Cells are the basic unit of life.",
		Version:   1,
		UpdatedAt: time.Now(),
	}
	f := &fixture{
		store: &memStore{
			docs: map[uuid.UUID]*types.Document{doc.ID: doc},
		},
		runner: &fakeRunner{result: agent.Result{Text: "## Cells\n\n- basic unit", Segments: 1, Unified: true}},
		repair: &fakeGen{},
		doc:    doc,
		dir:    t.TempDir(),
	}

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	chat := NewChatHandler(f.store, f.runner, f.repair, time.Second)
	search := NewSearchHandler(f.store, fakeEmbedder{})
	upload := NewDocumentHandler(f.dir)
	check := NewCheckHandler(types.Config{
		MaxSegmentSize: 8000,
		LLM:            types.LLMConfig{Backend: "claude", Model: "m", APIKey: "secret"},
	})
	app.Get("/check/healthy", check.HandleHealthy)
	app.Get("/check/config", check.HandleConfig)
	app.Post("/api/v1/documents", upload.HandleUpload)
	app.Post("/api/v1/documents/:id/chat", chat.HandleChat)
	app.Post("/api/v1/search", search.HandleSearch)
	f.app = app
	return f
}

func (f *fixture) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

func (f *fixture) chatPath() string {
	return "/api/v1/documents/" + f.doc.ID.String() + "/chat"
}

func TestHealthy(t *testing.T) {
	f := newFixture(t)
	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/check/healthy", nil))
	require.NoError(t, err)
	assert.Equal(t, "ok", decode(t, resp)["result"])
}

func TestConfigHidesSecrets(t *testing.T) {
	f := newFixture(t)
	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/check/config", nil))
	require.NoError(t, err)
	body := decode(t, resp)
	assert.Equal(t, true, body["apiKeySet"])
	assert.Equal(t, "claude", body["llmBackend"])
	assert.NotContains(t, body, "apiKey")
	for _, v := range body {
		assert.NotEqual(t, "secret", v)
	}
}

func TestChatAnswersQuestion(t *testing.T) {
	f := newFixture(t)
	resp, body := f.post(t, f.chatPath(), fiber.Map{"message": "What is a cell?"})

	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "Biology 101", body["documentName"])
	assert.Equal(t, true, body["unified"])
	assert.Contains(t, body["response"], "<h3>Cells</h3>")
	assert.Contains(t, body["response"], "<li>basic unit</li>")

	require.Len(t, f.runner.reqs, 1)
	req := f.runner.reqs[0]
	assert.Equal(t, agent.TaskAnswer, req.Task)
	assert.Equal(t, "What is a cell?", req.Question)
	assert.Equal(t, f.doc.Content, req.Text)
}

func TestChatRequestMapping(t *testing.T) {
	tests := []struct {
		chatType string
		task     agent.Task
		question string
	}{
		{types.ChatTypeSummary, agent.TaskSummarize, ""},
		{types.ChatTypeNotes, agent.TaskAnswer, "Generate comprehensive notes for this Biology 101."},
		{types.ChatTypeQuizzes, agent.TaskAnswer, "Create 5 multiple choice quiz questions"},
	}
	for _, tt := range tests {
		t.Run(tt.chatType, func(t *testing.T) {
			f := newFixture(t)
			resp, _ := f.post(t, f.chatPath(), fiber.Map{"type": tt.chatType})
			require.Equal(t, http.StatusOK, resp.StatusCode)

			require.Len(t, f.runner.reqs, 1)
			assert.Equal(t, tt.task, f.runner.reqs[0].Task)
			if tt.question == "" {
				assert.Empty(t, f.runner.reqs[0].Question)
			} else {
				assert.Contains(t, f.runner.reqs[0].Question, tt.question)
			}
		})
	}
}

func TestChatValidation(t *testing.T) {
	f := newFixture(t)

	resp, body := f.post(t, f.chatPath(), fiber.Map{"type": "chat"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body["errors"], "Message")

	resp, _ = f.post(t, f.chatPath(), fiber.Map{"type": "poem", "message": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, body = f.post(t, "/api/v1/documents/not-a-uuid/chat", fiber.Map{"message": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid id given", body["error"])

	assert.Empty(t, f.runner.reqs)
}

func TestChatDocumentNotFoundSuggestsRecent(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 7; i++ {
		f.store.recent = append(f.store.recent, types.DocumentRef{ID: uuid.New(), Title: "doc"})
	}

	resp, body := f.post(t, "/api/v1/documents/"+uuid.NewString()+"/chat", fiber.Map{"message": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Len(t, body["availableDocuments"], 5)
	assert.Empty(t, f.runner.reqs)
}

func TestChatEmptyDocument(t *testing.T) {
	f := newFixture(t)
	f.runner.err = agent.ErrEmptyInput

	resp, body := f.post(t, f.chatPath(), fiber.Map{"type": "summary"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "no content available for this document", body["error"])
}

func TestChatInternalErrorIsOpaque(t *testing.T) {
	f := newFixture(t)
	f.runner.err = errors.New("pq: password authentication failed")

	resp, body := f.post(t, f.chatPath(), fiber.Map{"message": "x"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal server error", body["error"])
}

func TestChatReportsFallback(t *testing.T) {
	f := newFixture(t)
	f.runner.result = agent.Result{Text: "a\n\n---\n\nb", Segments: 3, Failed: 1, Unified: false}

	_, body := f.post(t, f.chatPath(), fiber.Map{"type": "summary"})
	assert.Equal(t, false, body["unified"])
	assert.EqualValues(t, 3, body["segments"])
	assert.EqualValues(t, 1, body["failedSegments"])

	f.post(t, f.chatPath(), fiber.Map{"type": "summary"})
	assert.Len(t, f.runner.reqs, 2, "incomplete results are not cached")
}

func TestChatCachesPresetResults(t *testing.T) {
	f := newFixture(t)

	f.post(t, f.chatPath(), fiber.Map{"type": "summary"})
	f.post(t, f.chatPath(), fiber.Map{"type": "summary"})
	assert.Len(t, f.runner.reqs, 1)

	f.doc.Version = 2
	f.post(t, f.chatPath(), fiber.Map{"type": "summary"})
	assert.Len(t, f.runner.reqs, 2, "a new document version misses the cache")

	f.post(t, f.chatPath(), fiber.Map{"message": "q"})
	f.post(t, f.chatPath(), fiber.Map{"message": "q"})
	assert.Len(t, f.runner.reqs, 4, "free-form chat is never cached")
}

func TestChatQuizzesReturnJSON(t *testing.T) {
	f := newFixture(t)
	f.runner.result = agent.Result{
		Text:    "Here you go:\n```json\n[{\"question\":\"Q?\",\"options\":[\"a\",\"b\"],\"answer\":\"a\",}]\n```",
		Unified: true,
	}

	_, body := f.post(t, f.chatPath(), fiber.Map{"type": "quizzes"})
	var quizzes []Quiz
	require.NoError(t, json.Unmarshal([]byte(body["response"].(string)), &quizzes))
	require.Len(t, quizzes, 1)
	assert.Equal(t, "Q?", quizzes[0].Question)
	assert.Zero(t, f.repair.calls)
}

func TestChatQuizzesRepairedByModel(t *testing.T) {
	f := newFixture(t)
	f.runner.result = agent.Result{Text: "I could not format this properly.", Unified: true}
	f.repair.reply = `[{"question":"Q?","options":["a","b"],"answer":"b"}]`

	_, body := f.post(t, f.chatPath(), fiber.Map{"type": "quizzes"})
	assert.Equal(t, 1, f.repair.calls)
	assert.JSONEq(t, `[{"question":"Q?","options":["a","b"],"answer":"b"}]`, body["response"].(string))
}

func TestChatQuizzesUnrepairableReturnsRaw(t *testing.T) {
	f := newFixture(t)
	f.runner.result = agent.Result{Text: "no quiz here", Unified: true}
	f.repair.reply = "still nothing"

	_, body := f.post(t, f.chatPath(), fiber.Map{"type": "quizzes"})
	assert.Equal(t, "no quiz here", body["response"])
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	docID := uuid.New()
	f.store.results = []types.Chunk{
		{DocID: docID, DocTitle: "A", Content: "weak", Distance: 0.3},
		{DocID: docID, DocTitle: "A", Content: "good", Distance: 0.7, Index: 2},
		{DocID: docID, DocTitle: "A", Content: "best", Distance: 0.9, Index: 1},
	}

	resp, body := f.post(t, "/api/v1/search", fiber.Map{"prompt": "cells"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sources := body["sources"].([]any)
	require.Len(t, sources, 2)
	assert.Equal(t, "best", sources[0].(map[string]any)["chunk_text"])
	assert.Equal(t, "A", sources[0].(map[string]any)["title"])

	resp, _ = f.post(t, "/api/v1/search", fiber.Map{"prompt": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func upload(t *testing.T, app *fiber.App, name, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = io.Copy(part, strings.NewReader(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestUpload(t *testing.T) {
	f := newFixture(t)

	resp := upload(t, f.app, "lecture.txt", "hello")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	data, err := os.ReadFile(filepath.Join(f.dir, "lecture.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	resp = upload(t, f.app, "../../escape.md", "x")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.FileExists(t, filepath.Join(f.dir, "escape.md"))

	resp = upload(t, f.app, "virus.exe", "x")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
