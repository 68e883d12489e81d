package store

import (
	"context"
	"os"
	"testing"
	"time"

	"docchat/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToPgVector(t *testing.T) {
	assert.Nil(t, toPgVector(nil))

	vec := toPgVector([]float32{0.5, 1})
	require.NotNil(t, vec)
	assert.Equal(t, []float32{0.5, 1}, vec.Slice())
}

// Runs against a real database when PG_TEST_DSN is set, e.g.
// host=localhost port=5432 user=postgres password=postgres dbname=docchat_test sslmode=disable
func TestPostgresStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN not set")
	}

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Init(ctx))

	now := time.Now().UTC().Truncate(time.Second)
	vec := make([]float32, 768)
	vec[0] = 1
	doc := types.Document{
		ID:           uuid.New(),
		Title:        "lecture transcription",
		Content:      "first paragraph\n\nsecond paragraph",
		IsTranscript: true,
		Source:       "transcript",
		SourcePath:   "/tmp/lecture.txt",
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
		Chunks: []types.Chunk{
			{ID: uuid.New(), Index: 0, Type: string(types.ChunkText), Content: "first paragraph", Embedding: vec},
		},
	}
	require.NoError(t, s.SaveDocument(ctx, doc))

	got, err := s.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.Content, got.Content)
	assert.True(t, got.IsTranscript)

	refs, err := s.ListRecentDocuments(ctx, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, refs)

	found, err := s.Search(ctx, vec, 3)
	require.NoError(t, err)
	require.NotEmpty(t, found)
	assert.Equal(t, doc.Title, found[0].DocTitle)
	assert.InDelta(t, 1.0, found[0].Distance, 1e-6)

	_, err = s.GetDocumentByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.DeleteChunksByDocID(ctx, doc.ID))
}
