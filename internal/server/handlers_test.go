package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/chunker"
	"docchat/internal/config"
	"docchat/internal/domain"
	"docchat/internal/embedding"
	"docchat/internal/manifest"
	"docchat/internal/service"
	"docchat/internal/summarizer"
	"docchat/internal/vectorstore"
)

// fileExtractor treats the uploaded bytes as the document text.
type fileExtractor struct{}

func (fileExtractor) Extract(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}

// countingEmbedder records how often the retrieval pipeline is reached.
type countingEmbedder struct {
	domain.Embedder
	calls int
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return e.Embedder.Embed(ctx, text)
}

func newTestServer(t *testing.T) (*Server, *countingEmbedder) {
	t.Helper()
	dir := t.TempDir()

	mf, err := manifest.Open(filepath.Join(dir, "processed_index.json"))
	require.NoError(t, err)
	hashing, err := embedding.NewHashingEmbedder(64)
	require.NoError(t, err)
	emb := &countingEmbedder{Embedder: hashing}

	svc, err := service.New(service.Options{
		Chunker:      chunker.NewSentenceChunker(2, 0),
		Embedder:     emb,
		Store:        vectorstore.NewMemoryStore(),
		Summarizer:   summarizer.NewFrequencySummarizer(3),
		Extractor:    fileExtractor{},
		Manifest:     mf,
		UploadDir:    filepath.Join(dir, "data"),
		ProcessedDir: filepath.Join(dir, "processed_data"),
		TopK:         3,
	})
	require.NoError(t, err)
	return New(config.ServerConfig{}, svc), emb
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestUploadMissingFilePart(t *testing.T) {
	s, _ := newTestServer(t)
	body, contentType := multipartBody(t, "wrong_field", "a.pdf", "text")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)

	rec := doRequest(s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "No file part", resp["error"])
}

func TestUploadAndDuplicate(t *testing.T) {
	s, _ := newTestServer(t)
	content := "Wheat needs water. Rice grows in paddies."

	body, contentType := multipartBody(t, "file", "crops.pdf", content)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := doRequest(s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Message string          `json:"message"`
		File    manifest.Record `json:"file"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "crops.pdf", resp.File.Filename)
	assert.Len(t, resp.File.Hash, 64)

	// Same content under a new name reports already-processed.
	body, contentType = multipartBody(t, "file", "other.pdf", content)
	req = httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec = doRequest(s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "already processed")
}

func TestUploadWithoutExtractableText(t *testing.T) {
	s, _ := newTestServer(t)
	body, contentType := multipartBody(t, "file", "blank.pdf", "   ")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)

	rec := doRequest(s, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to extract text from PDF")

	// The failed upload must not be listed as processed.
	req = httptest.NewRequest(http.MethodGet, "/processed", nil)
	rec = doRequest(s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Processed []manifest.Record `json:"processed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Empty(t, listing.Processed)
}

func TestProcessedListing(t *testing.T) {
	s, _ := newTestServer(t)

	for _, doc := range []string{"One about wheat.", "Two about rice."} {
		body, contentType := multipartBody(t, "file", "doc.pdf", doc)
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		require.Equal(t, http.StatusOK, doRequest(s, req).Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/processed", nil)
	rec := doRequest(s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var listing struct {
		Processed []manifest.Record `json:"processed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Processed, 2)
	for i := 1; i < len(listing.Processed); i++ {
		assert.False(t, listing.Processed[i-1].ProcessedAt.Before(listing.Processed[i].ProcessedAt))
	}
}

func TestChatEmptyMessageSkipsRetrieval(t *testing.T) {
	s, emb := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message": ""}`))
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := doRequest(s, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Message cannot be empty")
	assert.Zero(t, emb.calls)
}

func TestChatAnswersFromUploadedDocument(t *testing.T) {
	s, _ := newTestServer(t)

	body, contentType := multipartBody(t, "file", "crops.pdf", "Wheat needs regular water. Rice grows in flooded paddies.")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	require.Equal(t, http.StatusOK, doRequest(s, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message": "what does wheat need"}`))
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := doRequest(s, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["response"])
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
