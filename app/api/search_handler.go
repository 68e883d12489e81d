package api

import (
	"log/slog"
	"sort"
	"time"

	"docchat/model"
	"docchat/store"
	"docchat/types"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultSearchLimit = 5
	// minimum cosine similarity for a chunk to count as relevant
	minSimilarity = 0.55
)

type SearchHandler struct {
	store    store.DBStorer
	embedder model.EmbedderInterface
	logger   *slog.Logger
}

func NewSearchHandler(st store.DBStorer, embedder model.EmbedderInterface) *SearchHandler {
	return &SearchHandler{
		store:    st,
		embedder: embedder,
		logger:   slog.Default(),
	}
}

func (h *SearchHandler) HandleSearch(c *fiber.Ctx) error {
	var params types.SearchParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errs := types.Validate(&params); len(errs) > 0 {
		return NewValidationError(errs)
	}
	limit := params.Limit
	if limit == 0 {
		limit = defaultSearchLimit
	}

	ctx := c.UserContext()
	vec, err := h.embedder.Embed(ctx, params.Prompt)
	if err != nil {
		return err
	}

	chunks, err := h.store.Search(ctx, vec, limit)
	if err != nil {
		return err
	}

	relevant := h.filterChunks(chunks)
	sources := make([]types.Source, len(relevant))
	for i, chunk := range relevant {
		sources[i] = types.Source{
			DocID:     chunk.DocID.String(),
			Title:     chunk.DocTitle,
			ChunkText: chunk.Content,
			Index:     chunk.Index,
			Distance:  chunk.Distance,
		}
	}

	return c.JSON(types.SearchResponse{
		Sources:   sources,
		Timestamp: time.Now(),
	})
}

// filterChunks drops weak matches and orders the rest by similarity.
func (h *SearchHandler) filterChunks(chunks []types.Chunk) []types.Chunk {
	result := make([]types.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Distance > minSimilarity {
			result = append(result, chunk)
		} else {
			h.logger.Debug("[SEARCH] chunk filtered", "doc_id", chunk.DocID, "index", chunk.Index, "similarity", chunk.Distance)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Distance > result[j].Distance
	})
	return result
}
