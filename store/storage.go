package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"docchat/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var ErrNotFound = errors.New("document not found")

type DBStorer interface {
	SaveDocument(context.Context, types.Document) error
	GetDocumentByID(context.Context, uuid.UUID) (*types.Document, error)
	ListRecentDocuments(context.Context, int) ([]types.DocumentRef, error)
	DeleteChunksByDocID(context.Context, uuid.UUID) error
	Search(context.Context, []float32, int) ([]types.Chunk, error)
}

type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool:   pool,
		logger: slog.Default(),
	}, nil
}

func (p *PostgresStore) GetDocumentByID(ctx context.Context, docID uuid.UUID) (*types.Document, error) {
	query := `SELECT id, title, content, is_transcript, source, source_path, created_at, updated_at, version
		FROM documents WHERE id = $1`

	doc := &types.Document{}
	err := p.pool.QueryRow(ctx, query, docID).Scan(
		&doc.ID,
		&doc.Title,
		&doc.Content,
		&doc.IsTranscript,
		&doc.Source,
		&doc.SourcePath,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&doc.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", docID, err)
	}
	return doc, nil
}

func (p *PostgresStore) ListRecentDocuments(ctx context.Context, limit int) ([]types.DocumentRef, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, title, created_at FROM documents ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.DocumentRef, error) {
		var ref types.DocumentRef
		err := row.Scan(&ref.ID, &ref.Title, &ref.CreatedAt)
		return ref, err
	})
}

func (p *PostgresStore) DeleteChunksByDocID(ctx context.Context, docID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM chunks WHERE doc_id = $1", docID)
	return err
}

// SaveDocument upserts the document and replaces its chunks in one transaction.
func (p *PostgresStore) SaveDocument(ctx context.Context, doc types.Document) error {
	query := `INSERT INTO documents (id, title, content, is_transcript, source, source_path, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			is_transcript = EXCLUDED.is_transcript,
			source = EXCLUDED.source,
			source_path = EXCLUDED.source_path,
			updated_at = EXCLUDED.updated_at,
			version = documents.version + 1
			`

	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query,
			doc.ID,
			doc.Title,
			doc.Content,
			doc.IsTranscript,
			doc.Source,
			doc.SourcePath,
			doc.CreatedAt,
			doc.UpdatedAt,
			doc.Version,
		); err != nil {
			return fmt.Errorf("save document: %w", err)
		}

		if _, err := tx.Exec(ctx, "DELETE FROM chunks WHERE doc_id = $1", doc.ID); err != nil {
			return fmt.Errorf("delete old chunks: %w", err)
		}

		batch := &pgx.Batch{}
		for _, c := range doc.Chunks {
			batch.Queue(`INSERT INTO chunks (id, doc_id, position, type, content, embedding)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				c.ID, doc.ID, c.Index, c.Type, c.Content, toPgVector(c.Embedding))
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save chunks: %w", err)
		}
		return nil
	})
}

// toPgVector keeps chunks without an embedding as NULL.
func toPgVector(v []float32) *pgvector.Vector {
	if len(v) == 0 {
		return nil
	}
	vec := pgvector.NewVector(v)
	return &vec
}

func (p *PostgresStore) Search(ctx context.Context, queryVec []float32, limit int) ([]types.Chunk, error) {
	if len(queryVec) == 0 {
		return nil, errors.New("empty query vector")
	}

	query := `
		SELECT pc.id, pc.doc_id, doc.title, pc.position, pc.type, pc.content,
		       1-(pc.embedding <=> $1) as distance
		FROM chunks pc
		JOIN documents doc ON pc.doc_id = doc.id
		WHERE pc.embedding IS NOT NULL
		ORDER BY pc.embedding <=> $1
		LIMIT $2
	`
	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		var chunk types.Chunk
		if err := rows.Scan(
			&chunk.ID,
			&chunk.DocID,
			&chunk.DocTitle,
			&chunk.Index,
			&chunk.Type,
			&chunk.Content,
			&chunk.Distance); err != nil {
			return nil, err
		}
		p.logger.Debug("[STORE] chunk found", "doc_id", chunk.DocID, "index", chunk.Index, "distance", chunk.Distance)
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (p *PostgresStore) createTables(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		is_transcript BOOLEAN NOT NULL DEFAULT FALSE,
		source TEXT,
		source_path TEXT,
		created_at TIMESTAMP WITH TIME ZONE,
		updated_at TIMESTAMP WITH TIME ZONE,
		version INTEGER DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);

	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		doc_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		position INT NOT NULL,
		type TEXT CHECK (type IN ('text')),
		content TEXT NOT NULL,
		embedding vector(768) -- nomic-embed-text
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);
	`
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createTables(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("[STORE] Postgres connection pool is closed")
	}
	return nil
}
