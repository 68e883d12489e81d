package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"docchat/loader/internal"
	"docchat/model"
	"docchat/store"
	"docchat/types"

	"github.com/google/uuid"
)

type Service struct {
	logger *slog.Logger
	store  store.DBStorer
	loader *internal.FileLoader
}

func New(cfg types.Config, storer store.DBStorer, embedder model.EmbedderInterface) *Service {
	return &Service{
		logger: slog.Default(),
		store:  storer,
		loader: internal.NewFileLoader(cfg, embedder),
	}
}

// Run watches the source directory until ctx is cancelled, then waits for the
// workers to drain.
func (s *Service) Run(ctx context.Context) {
	fileChan := make(chan string, 10)
	docChan := make(chan *types.Document)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		s.loader.WatchFile(ctx, fileChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(docChan)
		s.loader.ProcessFile(ctx, fileChan, docChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.DocumentSave(ctx, docChan)
	}()

	<-ctx.Done()
	s.logger.Info("[LOADER] received shutdown signal, shutting down gracefully")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("[LOADER] all workers stopped")
	case <-time.After(5 * time.Second):
		s.logger.Warn("[LOADER] timeout waiting for workers to stop")
	}
	s.logger.Info("[LOADER] service stopped")
}

// DocumentSave persists every document from docChan and archives its source file.
// Files that did not change since the stored version are archived without saving.
func (s *Service) DocumentSave(ctx context.Context, docChan <-chan *types.Document) {
	for doc := range docChan {
		if !s.ShouldUpdateFile(ctx, doc.ID, doc.UpdatedAt) {
			s.logger.Info("[LOADER] document unchanged, skipping", "doc_id", doc.ID, "title", doc.Title)
			s.loader.MoveToArchive(doc.SourcePath, internal.StateArchived)
			continue
		}

		if err := s.store.SaveDocument(ctx, *doc); err != nil {
			s.logger.Error("[LOADER] error saving document", "doc_id", doc.ID, "error", err)
			if ctx.Err() == nil {
				s.loader.MoveToArchive(doc.SourcePath, internal.StateBad)
			}
			continue
		}

		s.logger.Info("[LOADER] document saved", "doc_id", doc.ID, "title", doc.Title, "chunks", len(doc.Chunks))
		s.loader.MoveToArchive(doc.SourcePath, internal.StateArchived)
	}
}

// ShouldUpdateFile compares at microsecond precision, the resolution Postgres stores.
func (s *Service) ShouldUpdateFile(ctx context.Context, docID uuid.UUID, modTime time.Time) bool {
	doc, err := s.store.GetDocumentByID(ctx, docID)
	if err != nil {
		return true
	}
	return modTime.Truncate(time.Microsecond).After(doc.UpdatedAt)
}
