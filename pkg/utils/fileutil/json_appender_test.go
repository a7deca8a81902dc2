package fileutil

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/oarkflow/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID   string `json:"id"`
	Seen int    `json:"seen"`
}

func readRows(t *testing.T, path string) []row {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rows []row
	require.NoError(t, json.Unmarshal(data, &rows))
	return rows
}

func TestJSONAppenderKeepsValidArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	ja, err := NewJSONAppender[row](path)
	require.NoError(t, err)
	assert.Equal(t, path, ja.Path())
	assert.Empty(t, readRows(t, path))

	require.NoError(t, ja.Append(row{ID: "a", Seen: 1}))
	require.NoError(t, ja.AppendBatch([]row{{ID: "b"}, {ID: "c", Seen: 3}}))
	require.NoError(t, ja.AppendBatch(nil))
	assert.Equal(t, 3, ja.Count())
	require.NoError(t, ja.Close())

	assert.Equal(t, []row{{"a", 1}, {"b", 0}, {"c", 3}}, readRows(t, path))
}

func TestJSONAppenderReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	ja, err := NewJSONAppender[row](path)
	require.NoError(t, err)
	require.NoError(t, ja.Append(row{ID: "a"}))
	require.NoError(t, ja.Close())

	ja, err = NewJSONAppender[row](path, WithoutSync[row]())
	require.NoError(t, err)
	require.NoError(t, ja.Append(row{ID: "b"}))
	require.NoError(t, ja.Close())
	assert.Len(t, readRows(t, path), 2)

	ja, err = NewJSONAppender[row](path, WithTruncate[row]())
	require.NoError(t, err)
	require.NoError(t, ja.Append(row{ID: "c"}))
	require.NoError(t, ja.Close())
	assert.Equal(t, []row{{ID: "c"}}, readRows(t, path))
}

func TestJSONAppenderRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"a"}`), 0o644))
	_, err := NewJSONAppender[row](path)
	assert.ErrorIs(t, err, ErrMissingOpenBracket)

	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"a"}`), 0o644))
	_, err = NewJSONAppender[row](path)
	assert.ErrorIs(t, err, ErrMissingCloseBracket)
}

func TestJSONAppenderConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	ja, err := NewJSONAppender[row](path, WithoutSync[row]())
	require.NoError(t, err)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, ja.Append(row{ID: "w", Seen: i}))
		}(i)
	}
	wg.Wait()
	require.NoError(t, ja.Close())
	assert.Len(t, readRows(t, path), 8)
}

func TestJSONAppenderCustomMarshaler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	ja, err := NewJSONAppender[row](path, WithMarshaler(func(r row) ([]byte, error) {
		return json.Marshal(map[string]string{"id": r.ID + "!"})
	}))
	require.NoError(t, err)
	require.NoError(t, ja.Append(row{ID: "x"}))
	require.NoError(t, ja.Close())
	assert.Equal(t, []row{{ID: "x!"}}, readRows(t, path))
}
