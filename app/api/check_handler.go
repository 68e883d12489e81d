package api

import (
	"docchat/types"

	"github.com/gofiber/fiber/v2"
)

type CheckHandler struct {
	cfg types.Config
}

func NewCheckHandler(cfg types.Config) *CheckHandler {
	return &CheckHandler{cfg: cfg}
}

func (h CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok"})
}

// HandleConfig reports the effective generation settings. Secrets are only
// reported as present or missing.
func (h CheckHandler) HandleConfig(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"llmBackend":          h.cfg.LLM.Backend,
		"llmModel":            h.cfg.LLM.Model,
		"llmRetries":          h.cfg.LLM.Retries,
		"apiKeySet":           h.cfg.LLM.APIKey != "",
		"maxSegmentSize":      h.cfg.MaxSegmentSize,
		"segmentCallTimeout":  h.cfg.SegmentCallTimeout.String(),
		"directSingleSegment": h.cfg.DirectSingleSegment,
		"embeddingModel":      h.cfg.EmbeddingModel,
	})
}
