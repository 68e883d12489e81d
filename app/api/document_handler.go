package api

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var uploadExtensions = map[string]bool{".pdf": true, ".txt": true, ".md": true}

type DocumentHandler struct {
	sourceDir string
	logger    *slog.Logger
}

// NewDocumentHandler accepts uploads into the loader's source directory; the
// loader indexes them on its next pass.
func NewDocumentHandler(sourceDir string) *DocumentHandler {
	return &DocumentHandler{
		sourceDir: sourceDir,
		logger:    slog.Default(),
	}
}

func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest()
	}

	name := filepath.Base(file.Filename)
	if name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, ".") {
		return NewError(fiber.StatusBadRequest, "invalid file name")
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !uploadExtensions[ext] {
		return ErrUnsupportedFile(ext)
	}

	path := filepath.Join(h.sourceDir, name)
	if err := c.SaveFile(file, path); err != nil {
		return err
	}
	h.logger.Info("[UPLOAD] file saved", "path", path, "size", file.Size)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"result": "queued",
		"file":   name,
	})
}
