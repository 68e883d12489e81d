package types

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerAddr string

	PGHost   string
	PGPort   int
	PGUser   string
	PGPass   string
	PGDBName string

	MonitoringTime time.Duration
	SourceDir      string
	ArchiveDir     string
	BadDir         string
	ChunkSize      int
	ChunkOverlap   int
	DoclingURL     string

	EmbeddingURL   string
	EmbeddingModel string

	MaxSegmentSize      int
	SegmentCallTimeout  time.Duration
	DirectSingleSegment bool

	LLM LLMConfig
}

// ConfigFromEnv reads the process environment. Missing values fall back to defaults.
func ConfigFromEnv() Config {
	backend := strings.ToLower(envString("LLM_BACKEND", "claude"))
	llm := LLMConfig{
		Backend:   backend,
		Retries:   envInt("LLM_RETRIES", 1),
		MaxTokens: envInt("LLM_MAX_TOKENS", 1500),
	}
	switch backend {
	case "ollama":
		llm.Url = envString("LLM_URL", "http://localhost:11434/api/generate")
		llm.Model = envString("LLM_MODEL", "llama3.1")
	case "gemini":
		llm.Model = envString("GEMINI_MODEL", "gemini-2.0-flash")
		llm.APIKey = os.Getenv("GEMINI_API_KEY")
	default:
		llm.Url = envString("CLAUDE_URL", "https://api.anthropic.com/v1/messages")
		llm.Model = envString("CLAUDE_MODEL", "claude-3-haiku-20240307")
		llm.APIKey = os.Getenv("CLAUDE_API_KEY")
	}

	return Config{
		ServerAddr: envString("SERVER_ADDR", ":3000"),

		PGHost:   envString("PG_HOST", "localhost"),
		PGPort:   envInt("PG_PORT", 5432),
		PGUser:   envString("PG_USER", "postgres"),
		PGPass:   os.Getenv("PG_PASS"),
		PGDBName: envString("PG_DB_NAME", "docchat"),

		MonitoringTime: envDuration("LOADER_MONITORING_TIME", 5*time.Second),
		SourceDir:      envString("LOADER_SOURCE_DIR", "./data/source"),
		ArchiveDir:     envString("LOADER_ARCHIVE_DIR", "./data/archive"),
		BadDir:         envString("LOADER_BAD_DIR", "./data/bad"),
		ChunkSize:      envInt("CHUNK_SIZE", 200),
		ChunkOverlap:   envInt("CHUNK_OVERLAP", 40),
		DoclingURL:     envString("DOCLING_URL", "http://localhost:5001/v1/convert/file"),

		EmbeddingURL:   envString("OLLAMA_EMBEDDING_URL", "http://localhost:11434/api/embeddings"),
		EmbeddingModel: envString("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),

		MaxSegmentSize:      envInt("SEGMENT_MAX_SIZE", 8000),
		SegmentCallTimeout:  envDuration("SEGMENT_CALL_TIMEOUT", 2*time.Minute),
		DirectSingleSegment: envBool("PIPELINE_DIRECT_SINGLE", false),

		LLM: llm,
	}
}

// PostgresDSN builds the keyword/value connection string pgx expects.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.PGHost, c.PGPort, c.PGUser, c.PGPass, c.PGDBName)
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

// envDuration accepts Go durations ("90s") and bare seconds ("90").
func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
