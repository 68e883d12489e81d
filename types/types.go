package types

import (
	"time"

	"github.com/google/uuid"
)

type ChunkType string

const (
	ChunkText ChunkType = "text"
)

type Chunk struct {
	ID        uuid.UUID
	DocID     uuid.UUID
	DocTitle  string // filled by search only
	Index     int
	Type      string
	Content   string
	Embedding []float32
	Distance  float64
}

type Document struct {
	ID           uuid.UUID // document id, derived from the source path
	Title        string    // display name shown to the user
	Content      string    // extracted plain text
	IsTranscript bool      // true for audio transcriptions
	Chunks       []Chunk
	Source       string // pdf, text, transcript
	SourcePath   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int
}

// DocumentRef is the short form used when suggesting documents to the caller.
type DocumentRef struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"original_name"`
	CreatedAt time.Time `json:"created_at"`
}

type LLMConfig struct {
	Backend   string // claude, ollama or gemini
	Url       string
	Model     string
	APIKey    string
	Retries   int
	MaxTokens int
}

type DoclingResponse struct {
	Document struct {
		MdContent string `json:"md_content"`
	} `json:"document"`
}
