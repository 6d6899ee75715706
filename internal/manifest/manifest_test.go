package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(name, hash string, at time.Time) Record {
	return Record{Filename: name, Hash: hash, ProcessedAt: at, Path: "processed_data/" + name}
}

func TestOpenMissingFile(t *testing.T) {
	m, err := Open(filepath.Join(t.TempDir(), "processed_index.json"))
	require.NoError(t, err)
	assert.Zero(t, m.Len())
}

func TestOpenCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_index.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	m, err := Open(path)
	require.NoError(t, err)
	assert.Zero(t, m.Len())
}

func TestAppendRejectsDuplicateHash(t *testing.T) {
	m, err := Open(filepath.Join(t.TempDir(), "processed_index.json"))
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, m.Append(record("a.pdf", "aaaa", now)))
	err = m.Append(record("b.pdf", "aaaa", now))
	assert.ErrorIs(t, err, ErrDuplicateHash)
	assert.True(t, m.HasHash("aaaa"))
	assert.Equal(t, 1, m.Len())
}

func TestListSortedNewestFirst(t *testing.T) {
	m, err := Open(filepath.Join(t.TempDir(), "processed_index.json"))
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.Append(record("old.pdf", "h1", base)))
	require.NoError(t, m.Append(record("newest.pdf", "h2", base.Add(2*time.Hour))))
	require.NoError(t, m.Append(record("middle.pdf", "h3", base.Add(time.Hour))))

	got := m.List()
	require.Len(t, got, 3)
	assert.Equal(t, "newest.pdf", got[0].Filename)
	assert.Equal(t, "middle.pdf", got[1].Filename)
	assert.Equal(t, "old.pdf", got[2].Filename)
}

func TestReloadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_index.json")
	m, err := Open(path)
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.Append(record("a.pdf", "h1", at)))

	reloaded, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Len())
	got := reloaded.List()[0]
	assert.Equal(t, "a.pdf", got.Filename)
	assert.Equal(t, "h1", got.Hash)
	assert.True(t, got.ProcessedAt.Equal(at))
	assert.True(t, reloaded.HasHash("h1"))
}

func TestPersistLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processed_index.json")
	m, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, m.Append(record("a.pdf", "h1", time.Now().UTC())))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
