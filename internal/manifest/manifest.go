package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Record describes one ingested file. Records are created on successful
// ingestion and never mutated or deleted.
type Record struct {
	Filename    string    `json:"filename"`
	Hash        string    `json:"hash"`
	ProcessedAt time.Time `json:"processed_at"`
	Path        string    `json:"path"`
}

// ErrDuplicateHash is returned by Append when the content hash is already
// present in the manifest.
var ErrDuplicateHash = errors.New("hash already present in manifest")

// Manifest is a JSON-backed list of processed-file records keyed by content
// hash. The whole file is rewritten on every append, which is acceptable at
// the scale this service targets.
type Manifest struct {
	mu      sync.Mutex
	path    string
	records []Record
}

// Open loads the manifest at path. A missing or unparsable file yields an
// empty manifest rather than an error.
func Open(path string) (*Manifest, error) {
	m := &Manifest{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m.records); err != nil {
		m.records = nil
	}
	return m, nil
}

// HasHash reports whether a record with the given content hash exists.
func (m *Manifest) HasHash(hash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexOf(hash) >= 0
}

// Append adds a record and rewrites the manifest file. The content hash must
// be unique across the manifest.
func (m *Manifest) Append(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexOf(rec.Hash) >= 0 {
		return ErrDuplicateHash
	}
	m.records = append(m.records, rec)
	if err := m.persist(); err != nil {
		m.records = m.records[:len(m.records)-1]
		return err
	}
	return nil
}

// List returns a copy of all records sorted by ProcessedAt descending.
func (m *Manifest) List() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProcessedAt.After(out[j].ProcessedAt)
	})
	return out
}

// Len returns the number of records.
func (m *Manifest) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *Manifest) indexOf(hash string) int {
	for i, rec := range m.records {
		if rec.Hash == hash {
			return i
		}
	}
	return -1
}

// persist rewrites the whole manifest through a temp file and rename so a
// crash mid-write cannot leave a truncated manifest behind.
func (m *Manifest) persist() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.records, "", "  ")
	if err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}
