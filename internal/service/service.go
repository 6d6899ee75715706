package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docchat/internal/domain"
	"docchat/internal/manifest"
)

var (
	// ErrDuplicate means the uploaded content was already ingested. Callers
	// treat it as a successful no-op.
	ErrDuplicate = errors.New("file already processed")

	// ErrNoText means no text could be extracted from the upload.
	ErrNoText = errors.New("no extractable text")

	// ErrEmptyMessage rejects blank chat messages before any retrieval work.
	ErrEmptyMessage = errors.New("message cannot be empty")
)

// Options wires the service's collaborators and storage locations.
type Options struct {
	Chunker    domain.Chunker
	Embedder   domain.Embedder
	Store      domain.VectorStore
	Summarizer domain.Summarizer
	Extractor  domain.Extractor
	Manifest   *manifest.Manifest

	UploadDir    string
	ProcessedDir string
	TopK         int

	Logger *log.Logger
}

// Service orchestrates ingestion (hash -> dedup -> extract -> chunk -> embed
// -> index -> move -> record) and query-time retrieval.
type Service struct {
	opts Options

	// Serializes the whole ingestion mutation path. Manifest and vector
	// snapshot writes are not safe under concurrent uploads otherwise.
	ingestMu sync.Mutex
}

func New(opts Options) (*Service, error) {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	for _, dir := range []string{opts.UploadDir, opts.ProcessedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	return &Service{opts: opts}, nil
}

// IngestUpload stores the uploaded stream, deduplicates it by content hash
// and indexes its text. On success the file is moved into the processed dir
// and the returned record has been appended to the manifest.
func (s *Service) IngestUpload(ctx context.Context, filename string, r io.Reader) (*manifest.Record, error) {
	name := sanitizeFilename(filename)
	if name == "" {
		return nil, fmt.Errorf("unusable filename %q", filename)
	}

	tempPath := filepath.Join(s.opts.UploadDir, uuid.NewString()+"_"+name)
	if err := saveStream(tempPath, r); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	cleanup := true
	defer func() {
		if cleanup {
			if err := os.Remove(tempPath); err != nil {
				s.opts.Logger.Printf("remove temp upload %s: %v", tempPath, err)
			}
		}
	}()

	hash, err := hashFile(tempPath)
	if err != nil {
		return nil, fmt.Errorf("hash upload: %w", err)
	}

	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	if s.opts.Manifest.HasHash(hash) {
		s.opts.Logger.Printf("duplicate upload %s (hash %.12s), skipping", name, hash)
		return nil, ErrDuplicate
	}

	text, err := s.opts.Extractor.Extract(tempPath)
	if err != nil {
		s.opts.Logger.Printf("extraction error for %s: %v", name, err)
		return nil, fmt.Errorf("%w: %v", ErrNoText, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoText
	}

	chunks, err := s.opts.Chunker.Chunk(name, text)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", name, err)
	}
	if len(chunks) == 0 {
		return nil, ErrNoText
	}

	vectors := make([][]float32, len(chunks))
	for i := range chunks {
		vec, err := s.opts.Embedder.Embed(ctx, chunks[i].Text)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d of %s: %w", i, name, err)
		}
		vectors[i] = vec
	}

	if err := s.opts.Store.Add(ctx, chunks, vectors); err != nil {
		return nil, fmt.Errorf("index %s: %w", name, err)
	}

	destName, destPath := s.destination(name)
	if err := os.Rename(tempPath, destPath); err != nil {
		return nil, fmt.Errorf("move %s to processed storage: %w", name, err)
	}

	rec := manifest.Record{
		Filename:    destName,
		Hash:        hash,
		ProcessedAt: time.Now().UTC(),
		Path:        destPath,
	}
	if err := s.opts.Manifest.Append(rec); err != nil {
		// Undo the move so the deferred cleanup reclaims the file.
		if mvErr := os.Rename(destPath, tempPath); mvErr != nil {
			s.opts.Logger.Printf("restore %s after failed manifest append: %v", destPath, mvErr)
			cleanup = false
		}
		return nil, fmt.Errorf("record %s: %w", name, err)
	}
	cleanup = false

	if err := s.opts.Store.Save(); err != nil {
		return nil, fmt.Errorf("persist index: %w", err)
	}
	s.opts.Logger.Printf("ingested %s: %d chunks, hash %.12s", destName, len(chunks), hash)
	return &rec, nil
}

// Query answers a chat message by retrieving the nearest chunks and
// summarizing them. The query is embedded with the same model as the
// documents.
func (s *Service) Query(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyMessage
	}
	if s.opts.Store.Len() == 0 {
		return "No documents have been uploaded yet. Upload a PDF first.", nil
	}
	vec, err := s.opts.Embedder.Embed(ctx, message)
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}
	results, err := s.opts.Store.Search(ctx, vec, s.opts.TopK)
	if err != nil {
		return "", fmt.Errorf("search: %w", err)
	}
	contexts := make([]string, 0, len(results))
	for _, r := range results {
		contexts = append(contexts, r.Chunk.Text)
	}
	answer, err := s.opts.Summarizer.Summarize(ctx, message, contexts)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return answer, nil
}

// Processed lists manifest records, newest first.
func (s *Service) Processed() []manifest.Record {
	return s.opts.Manifest.List()
}

// ChunkCount reports how many chunks the vector store holds.
func (s *Service) ChunkCount() int {
	return s.opts.Store.Len()
}

// Close flushes and releases the vector store.
func (s *Service) Close() error {
	if err := s.opts.Store.Save(); err != nil {
		return err
	}
	return s.opts.Store.Close()
}

// destination picks the final path under the processed dir, appending a UTC
// timestamp suffix when a different file already claimed the name.
func (s *Service) destination(name string) (string, string) {
	destName := name
	destPath := filepath.Join(s.opts.ProcessedDir, destName)
	if _, err := os.Stat(destPath); err == nil {
		ext := filepath.Ext(destName)
		base := strings.TrimSuffix(destName, ext)
		destName = base + "_" + time.Now().UTC().Format("20060102150405") + ext
		destPath = filepath.Join(s.opts.ProcessedDir, destName)
	}
	return destName, destPath
}

func saveStream(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// hashFile computes the SHA-256 of a file in fixed 8 KiB reads so large
// uploads never sit in memory whole.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	buf := make([]byte, 8192)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

var unsafeFilenameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeFilename strips any path components and characters that are not
// safe to use in a storage path.
func sanitizeFilename(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = unsafeFilenameRe.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._-")
	if name == "" || name == "." || name == ".." {
		return ""
	}
	return name
}
