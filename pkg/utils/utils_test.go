package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
}

func TestCosineSimilarityDegenerateInputs(t *testing.T) {
	assert.Zero(t, CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Zero(t, CosineSimilarity(nil, nil))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 1.0, Magnitude(v), 1e-6)
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)

	assert.Nil(t, Normalize(nil))
	assert.Nil(t, Normalize([]float32{0, 0, 0}))
}

func TestContentHashStable(t *testing.T) {
	a := ContentHash("vaccine immunology researcher")
	b := ContentHash("vaccine immunology researcher")
	c := ContentHash("vaccine immunology researchers")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestChunkTextShortInput(t *testing.T) {
	chunks := ChunkText("short text", 100, 20)
	assert.Equal(t, []string{"short text"}, chunks)
}

func TestChunkTextOverlap(t *testing.T) {
	text := strings.Repeat("abcdefghij", 10)
	chunks := ChunkText(text, 40, 10)
	assert.Greater(t, len(chunks), 2)
	for i := 1; i < len(chunks); i++ {
		// Each chunk starts 30 runes after the previous one.
		assert.Equal(t, chunks[i-1][30:40], chunks[i][:10])
	}
}

func TestChunkTextWhitespaceDropped(t *testing.T) {
	assert.Empty(t, ChunkText("     ", 3, 0))
}

func TestChunkTextBadParams(t *testing.T) {
	chunks := ChunkText("hello world", 0, 0)
	assert.Equal(t, []string{"hello world"}, chunks)

	chunks = ChunkText("hello world", 5, 10)
	assert.Equal(t, []string{"hello", "worl", "d"}, chunks)
}
