package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docchat/app/agent"
	"docchat/model"
	"docchat/store"
	"docchat/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	suggestedDocuments = 5
	resultCacheSize    = 128
	resultCacheTTL     = 30 * time.Minute
)

// Runner answers one request over a whole document.
type Runner interface {
	Run(ctx context.Context, req agent.Request) (*agent.Result, error)
}

type ChatHandler struct {
	store         store.DBStorer
	runner        Runner
	repair        model.Generator
	repairTimeout time.Duration
	cache         *expirable.LRU[string, types.ChatResponse]
	logger        *slog.Logger
}

// NewChatHandler builds the document chat endpoint. repair is used to fix quiz
// replies that are not valid JSON; it may be nil.
func NewChatHandler(st store.DBStorer, runner Runner, repair model.Generator, repairTimeout time.Duration) *ChatHandler {
	return &ChatHandler{
		store:         st,
		runner:        runner,
		repair:        repair,
		repairTimeout: repairTimeout,
		cache:         expirable.NewLRU[string, types.ChatResponse](resultCacheSize, nil, resultCacheTTL),
		logger:        slog.Default(),
	}
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	var params types.ChatParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errs := types.Validate(&params); len(errs) > 0 {
		return NewValidationError(errs)
	}

	ctx := c.UserContext()
	doc, err := h.store.GetDocumentByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return h.documentNotFound(c, id)
	}
	if err != nil {
		return err
	}

	key := cacheKey(doc, params.Type)
	if key != "" {
		if resp, ok := h.cache.Get(key); ok {
			h.logger.Info("[CHAT] served from cache", "doc_id", doc.ID, "type", params.Type)
			return c.JSON(resp)
		}
	}

	h.logger.Info("[CHAT] request", "doc_id", doc.ID, "type", params.Type, "chars", len(doc.Content), "transcript", doc.IsTranscript)
	res, err := h.runner.Run(ctx, buildRequest(doc, params))
	if err != nil {
		return err
	}

	resp := types.ChatResponse{
		Response:       h.postProcess(ctx, params.Type, res.Text),
		DocumentName:   doc.Title,
		Segments:       res.Segments,
		FailedSegments: res.Failed,
		Unified:        res.Unified,
		Status:         "completed",
		Timestamp:      time.Now(),
	}
	if key != "" && res.Unified && res.Failed == 0 {
		h.cache.Add(key, resp)
	}
	return c.JSON(resp)
}

func (h *ChatHandler) documentNotFound(c *fiber.Ctx, id uuid.UUID) error {
	recent, err := h.store.ListRecentDocuments(c.UserContext(), suggestedDocuments)
	if err != nil {
		h.logger.Warn("[CHAT] cannot list recent documents", "error", err)
	}
	if recent == nil {
		recent = []types.DocumentRef{}
	}
	notFound := ErrNotFound(id, "document")
	return c.Status(notFound.Code).JSON(fiber.Map{
		"code":               notFound.Code,
		"error":              notFound.Message,
		"availableDocuments": recent,
	})
}

// cacheKey is empty for free-form chat; preset requests are cached per document version.
func cacheKey(doc *types.Document, chatType string) string {
	if chatType == types.ChatTypeChat {
		return ""
	}
	return fmt.Sprintf("%s/%d/%d/%s", doc.ID, doc.Version, doc.UpdatedAt.UnixNano(), chatType)
}

func buildRequest(doc *types.Document, params types.ChatParams) agent.Request {
	req := agent.Request{
		Text:         doc.Content,
		Task:         agent.TaskAnswer,
		DocumentName: doc.Title,
		IsTranscript: doc.IsTranscript,
	}
	switch params.Type {
	case types.ChatTypeSummary:
		req.Task = agent.TaskSummarize
	case types.ChatTypeNotes:
		req.Question = notesInstruction(doc.Title)
	case types.ChatTypeQuizzes:
		req.Question = quizInstruction(doc.Title)
	default:
		req.Question = params.Message
	}
	return req
}

func (h *ChatHandler) postProcess(ctx context.Context, chatType, reply string) string {
	if chatType != types.ChatTypeQuizzes {
		return MarkdownToHTML(reply)
	}

	quizzes, err := ParseQuizzes(reply)
	if err != nil && h.repair != nil {
		h.logger.Warn("[CHAT] quiz reply is not valid JSON, asking for a repair")
		quizzes, err = h.repairQuizzes(ctx, reply)
	}
	if err != nil {
		h.logger.Warn("[CHAT] returning raw quiz reply", "error", err)
		return reply
	}

	out, err := json.Marshal(quizzes)
	if err != nil {
		return reply
	}
	return string(out)
}

func (h *ChatHandler) repairQuizzes(ctx context.Context, reply string) ([]Quiz, error) {
	if h.repairTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.repairTimeout)
		defer cancel()
	}
	fixed, err := h.repair.Generate(ctx, "", buildRepairPrompt(reply))
	if err != nil {
		return nil, err
	}
	return ParseQuizzes(fixed)
}
