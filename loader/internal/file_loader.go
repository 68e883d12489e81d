package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"docchat/model"
	"docchat/types"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

var ErrUnsupportedFile = errors.New("unsupported file type")

type FileLoader struct {
	cfg      types.Config
	embedder model.EmbedderInterface
	client   *http.Client
	logger   *slog.Logger

	FileMutex       sync.Mutex
	FileFirstSeen   map[string]time.Time
	FilesProcessing map[string]bool
}

func NewFileLoader(cfg types.Config, embedder model.EmbedderInterface) *FileLoader {
	logger := slog.Default()
	if err := CreateDirectories(cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir); err != nil {
		logger.Error("[LOADER] failed to create directories", "error", err)
	}
	return &FileLoader{
		cfg:             cfg,
		embedder:        embedder,
		client:          &http.Client{Timeout: 10 * time.Minute},
		logger:          logger,
		FileFirstSeen:   make(map[string]time.Time),
		FilesProcessing: make(map[string]bool),
	}
}

// WatchFile sends files from the source directory to fileChan once they stayed
// untouched for cfg.MonitoringTime. Writes reported by fsnotify restart that wait;
// the directory is also rescanned every second, so files that existed before the
// watcher started are picked up too.
func (l *FileLoader) WatchFile(ctx context.Context, fileChan chan<- string) {
	l.logger.Info("[LOADER] start monitoring folder", "dir", l.cfg.SourceDir)

	var events <-chan fsnotify.Event
	var errs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.logger.Warn("[LOADER] fsnotify unavailable, polling only", "error", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(l.cfg.SourceDir); err != nil {
			l.logger.Warn("[LOADER] cannot watch source directory, polling only", "error", err)
		} else {
			events, errs = watcher.Events, watcher.Errors
		}
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	defer l.logger.Info("[LOADER] file watcher stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				l.touch(event.Name)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			l.logger.Error("[LOADER] watcher error", "error", err)
		case <-ticker.C:
			for _, filePath := range l.scan() {
				select {
				case fileChan <- filePath:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// touch restarts the stability wait for a file that is still being written.
func (l *FileLoader) touch(filePath string) {
	if strings.HasPrefix(filepath.Base(filePath), ".") {
		return
	}
	l.FileMutex.Lock()
	defer l.FileMutex.Unlock()
	if !l.FilesProcessing[filePath] {
		l.FileFirstSeen[filePath] = time.Now()
	}
}

// scan returns the files that are ready for processing and marks them as in progress.
func (l *FileLoader) scan() []string {
	files, err := os.ReadDir(l.cfg.SourceDir)
	if err != nil {
		l.logger.Error("[LOADER] error while reading source directory", "error", err)
		return nil
	}

	l.FileMutex.Lock()
	defer l.FileMutex.Unlock()

	var ready []string
	currentFiles := make(map[string]bool)
	for _, file := range files {
		if file.IsDir() || strings.HasPrefix(file.Name(), ".") {
			continue
		}

		filePath := filepath.Join(l.cfg.SourceDir, file.Name())
		currentFiles[filePath] = true

		if l.FilesProcessing[filePath] {
			continue
		}

		firstSeen, exists := l.FileFirstSeen[filePath]
		if !exists {
			l.FileFirstSeen[filePath] = time.Now()
			l.logger.Info("[LOADER] new file detected", "file", filePath)
			continue
		}

		if time.Since(firstSeen) > l.cfg.MonitoringTime {
			l.FilesProcessing[filePath] = true
			ready = append(ready, filePath)
		}
	}

	for filePath := range l.FileFirstSeen {
		if !currentFiles[filePath] {
			delete(l.FileFirstSeen, filePath)
			delete(l.FilesProcessing, filePath)
		}
	}
	return ready
}

// ProcessFile turns every file from fileChan into a document. Files that fail are
// moved to the bad directory.
func (l *FileLoader) ProcessFile(ctx context.Context, fileChan <-chan string, docChan chan<- *types.Document) {
	defer l.logger.Info("[LOADER] file processor stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case filePath, ok := <-fileChan:
			if !ok {
				return
			}

			l.logger.Info("[LOADER] processing file", "file", filePath)
			doc, err := l.FetchFile(ctx, filePath)
			if err != nil {
				if ctx.Err() != nil {
					l.forget(filePath, false)
					return
				}
				l.logger.Error("[LOADER] error processing file", "file", filePath, "error", err)
				l.MoveToArchive(filePath, StateBad)
				l.forget(filePath, true)
				continue
			}

			select {
			case docChan <- doc:
			case <-ctx.Done():
				l.forget(filePath, false)
				return
			}
			l.forget(filePath, true)
		}
	}
}

// forget clears the tracking state; a file that was not finished keeps its
// first-seen time and is picked up again on the next run.
func (l *FileLoader) forget(filePath string, done bool) {
	l.FileMutex.Lock()
	defer l.FileMutex.Unlock()
	delete(l.FilesProcessing, filePath)
	if done {
		delete(l.FileFirstSeen, filePath)
	}
}

// FetchFile extracts the text of filePath and builds its document with embedded chunks.
func (l *FileLoader) FetchFile(ctx context.Context, filePath string) (*types.Document, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("file does not exist: %s: %w", filePath, err)
	}

	content, source, err := l.extractText(ctx, filePath)
	if err != nil {
		return nil, err
	}

	transcript := IsTranscriptName(filePath)
	if transcript {
		source = "transcript"
	}

	// timestamptz keeps microseconds
	modTime := fileInfo.ModTime().Truncate(time.Microsecond)
	id := generateDocumentID(filePath)
	chunks := l.embedChunks(ctx, id, content)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return &types.Document{
		ID:           id,
		Title:        generateTitle(filePath),
		Content:      content,
		IsTranscript: transcript,
		Chunks:       chunks,
		Source:       source,
		SourcePath:   filePath,
		CreatedAt:    modTime,
		UpdatedAt:    modTime,
		Version:      1,
	}, nil
}

func (l *FileLoader) extractText(ctx context.Context, filePath string) (string, string, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf":
		src := filePath
		if cropped, err := croppedCopy(filePath); err != nil {
			l.logger.Warn("[LOADER] could not crop headers, converting original", "file", filePath, "error", err)
		} else {
			defer os.Remove(cropped)
			src = cropped
		}
		md, err := l.convertPDFToMD(ctx, src, filepath.Base(filePath))
		if err != nil {
			return "", "", err
		}
		return stripImages(md), "pdf", nil
	case ".txt", ".md":
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", "", err
		}
		text := string(data)
		if !utf8.ValidString(text) {
			l.logger.Warn("[LOADER] file is not valid UTF-8, replacing invalid bytes", "file", filePath)
			text = strings.ToValidUTF8(text, "\uFFFD")
		}
		return strings.ReplaceAll(text, "\r\n", "\n"), "text", nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(filePath))
	}
}

func (l *FileLoader) convertPDFToMD(ctx context.Context, filePath, name string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("files", name)
	if err != nil {
		return "", err
	}
	if _, err = io.Copy(part, file); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.DoclingURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("docling error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var d types.DoclingResponse
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return "", fmt.Errorf("decode docling response: %w", err)
	}
	return d.Document.MdContent, nil
}

// embedChunks splits content into overlapping word windows and embeds each one.
// A window whose embedding fails is kept without a vector.
func (l *FileLoader) embedChunks(ctx context.Context, docID uuid.UUID, content string) []types.Chunk {
	windows := ChunkWords(content, l.cfg.ChunkSize, l.cfg.ChunkOverlap)
	chunks := make([]types.Chunk, 0, len(windows))
	for i, text := range windows {
		if ctx.Err() != nil {
			return chunks
		}

		var embedding []float32
		if l.embedder != nil {
			var err error
			embedding, err = l.embedder.Embed(ctx, text)
			if err != nil {
				l.logger.Warn("[LOADER] embedding error", "doc_id", docID, "chunk", i, "error", err)
			}
		}

		chunks = append(chunks, types.Chunk{
			ID:        uuid.New(),
			DocID:     docID,
			Index:     i,
			Type:      string(types.ChunkText),
			Content:   text,
			Embedding: embedding,
		})
	}
	return chunks
}

// ChunkWords returns windows of chunkSize words, each sharing overlap words with the previous one.
func ChunkWords(text string, chunkSize, overlap int) []string {
	words := strings.Fields(text)
	if chunkSize <= 0 || len(words) == 0 {
		return nil
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	var out []string
	for i := 0; i < len(words); i += chunkSize - overlap {
		end := min(i+chunkSize, len(words))
		out = append(out, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	return out
}

var transcriptMarkers = []string{"transcription", "transcript", "audio"}
var audioExtensions = []string{".mp3", ".wav", ".m4a"}

// IsTranscriptName reports whether a file name looks like an audio transcription.
func IsTranscriptName(filePath string) bool {
	name := strings.ToLower(filepath.Base(filePath))
	for _, m := range transcriptMarkers {
		if strings.Contains(name, m) {
			return true
		}
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	for _, ext := range audioExtensions {
		if strings.HasSuffix(base, ext) {
			return true
		}
	}
	return false
}

func generateTitle(filePath string) string {
	fileName := filepath.Base(filePath)
	fileName = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	fileName = strings.ReplaceAll(fileName, "_", " ")
	fileName = strings.ReplaceAll(fileName, "-", " ")
	return fileName
}

// generateDocumentID is stable per source file name, so a re-uploaded file updates
// the same document.
func generateDocumentID(filePath string) uuid.UUID {
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(filepath.Base(filePath)))
}

var imgRegex = regexp.MustCompile(`!\[[^\]]*\]\(data:image\/[a-zA-Z]+;base64,[^)]+\)`)

// stripImages drops inline base64 images emitted by the converter.
func stripImages(md string) string {
	md = imgRegex.ReplaceAllString(md, "")
	return strings.TrimSpace(regexp.MustCompile(`\n{3,}`).ReplaceAllString(md, "\n\n"))
}

const (
	StateArchived = iota
	StateBad
)

// MoveToArchive moves filePath into a dated folder of the archive (or bad) directory.
func (l *FileLoader) MoveToArchive(filePath string, fileState int) {
	dir := l.cfg.ArchiveDir
	if fileState == StateBad {
		dir = l.cfg.BadDir
	}

	destDir := filepath.Join(dir, time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		l.logger.Error("[LOADER] error creating directory", "dir", destDir, "error", err)
		return
	}

	destPath := filepath.Join(destDir, filepath.Base(filePath))
	ext := filepath.Ext(destPath)
	baseName := strings.TrimSuffix(filepath.Base(destPath), ext)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			break
		}
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", baseName, counter, ext))
	}

	if err := moveFile(filePath, destPath); err != nil {
		l.logger.Error("[LOADER] error moving file to archive", "file", filePath, "error", err)
		return
	}
	l.logger.Info("[LOADER] file moved", "to", destPath)
}

// moveFile renames and falls back to copy+remove across filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	in.Close()
	return os.Remove(src)
}

func CreateDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
