package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/hupe1980/vecgo"
	"github.com/hupe1980/vecgo/index/hnsw"

	"docchat/internal/domain"
)

// VecgoStore is a persistent vector store backed by an embedded vecgo HNSW
// index. Vectors must be L2-normalized. The index is snapshotted to a single
// file via Save, with a sidecar meta file holding the vector count, which the
// snapshot format does not expose.
type VecgoStore struct {
	mu    sync.Mutex
	path  string
	db    *vecgo.Vecgo[domain.Chunk]
	count int
}

type snapshotMeta struct {
	Count int `json:"count"`
}

// OpenVecgo loads the snapshot at path if one exists. With no snapshot the
// store starts empty.
func OpenVecgo(path string) (*VecgoStore, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &VecgoStore{path: path, db: vecgo.New[domain.Chunk](hnsw.New())}, nil
		}
		return nil, err
	}
	db, err := vecgo.NewFromFilename[domain.Chunk](path)
	if err != nil {
		return nil, fmt.Errorf("load vector snapshot %s: %w", path, err)
	}
	count, err := readSnapshotMeta(metaPath(path))
	if err != nil {
		return nil, fmt.Errorf("load snapshot meta for %s: %w", path, err)
	}
	return &VecgoStore{path: path, db: db, count: count}, nil
}

func (s *VecgoStore) Add(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range chunks {
		_, err := s.db.Insert(&vecgo.VectorWithData[domain.Chunk]{
			Vector: vectors[i],
			Data:   chunks[i],
		})
		if err != nil {
			return fmt.Errorf("insert chunk %d of %s: %w", chunks[i].Index, chunks[i].Source, err)
		}
		s.count++
	}
	return nil
}

func (s *VecgoStore) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.Lock()
	db, count := s.db, s.count
	s.mu.Unlock()
	if count == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}
	if topK > count {
		topK = count
	}
	found, err := db.KNNSearch(vector, topK)
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}
	results := make([]domain.SearchResult, 0, len(found))
	for _, r := range found {
		results = append(results, domain.SearchResult{
			Chunk: r.Data,
			// Squared L2 between unit vectors is 2*(1-cos), so this
			// recovers the cosine similarity.
			Score: 1 - r.Distance/2,
		})
	}
	return results, nil
}

// Save writes the index snapshot and its meta file to disk.
func (s *VecgoStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return nil
	}
	if err := s.db.SaveToFile(s.path); err != nil {
		return fmt.Errorf("save vector snapshot %s: %w", s.path, err)
	}
	return writeSnapshotMeta(metaPath(s.path), s.count)
}

func (s *VecgoStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *VecgoStore) Close() error {
	return nil
}

func metaPath(path string) string {
	return path + ".meta"
}

func readSnapshotMeta(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var meta snapshotMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return 0, err
	}
	return meta.Count, nil
}

func writeSnapshotMeta(path string, count int) error {
	data, err := json.Marshal(snapshotMeta{Count: count})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
