package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFileArray(t *testing.T) {
	path := writeFile(t, t.TempDir(), "experts.json", `[
		{"id": "e1", "name": "Jane Doe", "skills": ["Immunology"]},
		{"id": "e2", "name": "John Roe"}
	]`)

	records, err := New(nil).LoadFile(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Jane Doe", records[0].Name)
	assert.Equal(t, []string{"Immunology"}, records[0].Skills)
}

func TestLoadFileSingleObject(t *testing.T) {
	path := writeFile(t, t.TempDir(), "expert.json", `{
		"id": "e1",
		"name": "Jane Doe",
		"works": [{"id": "w1", "title": "Vaccine response", "authors": [{"name": "Sam Lee"}]}]
	}`)

	records, err := New(nil).LoadFile(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, records[0].Works, 1)
	assert.Equal(t, "Sam Lee", records[0].Works[0].Authors[0].Name)
}

func TestLoadFileSkipsInvalidRecords(t *testing.T) {
	path := writeFile(t, t.TempDir(), "mixed.json", `[
		{"id": "e1", "name": "Jane Doe"},
		{"id": "", "name": "No ID"},
		{"id": "e3"},
		{"id": "e4", "name": "Kept"}
	]`)

	records, err := New(nil).LoadFile(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "e1", records[0].ID)
	assert.Equal(t, "e4", records[1].ID)
}

func TestLoadFileRejectsNonJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.json", `not json at all`)
	_, err := New(nil).LoadFile(path)
	assert.Error(t, err)
}

func TestLoadDirLexicalOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.json", `[{"id": "e2", "name": "Second"}]`)
	writeFile(t, dir, "a.json", `[{"id": "e1", "name": "First"}]`)
	writeFile(t, dir, "notes.txt", `ignored`)

	records, err := New(nil).LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "e1", records[0].ID)
	assert.Equal(t, "e2", records[1].ID)
}

func TestLoadDirEmptyFails(t *testing.T) {
	_, err := New(nil).LoadDir(t.TempDir())
	assert.Error(t, err)
}
