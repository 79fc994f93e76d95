package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strings"
	"sync/atomic"

	"github.com/soundprediction/expertgraph/pkg/utils"
)

// MockClient is a deterministic embedder for tests: each text maps to a
// stable unit vector via hashed bag-of-words, so identical texts embed
// identically and texts sharing terms land near each other. Calls and Texts
// count model invocations for cache-correctness assertions.
type MockClient struct {
	Dims  int
	Calls atomic.Int64
	Texts atomic.Int64

	// Fail, when set, is returned from Embed instead of vectors.
	Fail error
}

// NewMockClient creates a mock embedder with the given dimensionality.
func NewMockClient(dims int) *MockClient {
	if dims <= 0 {
		dims = 16
	}
	return &MockClient{Dims: dims}
}

// Embed deterministically derives one vector per text.
func (m *MockClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.Calls.Add(1)
	m.Texts.Add(int64(len(texts)))
	if m.Fail != nil {
		return nil, m.Fail
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = m.vector(text)
	}
	return vectors, nil
}

func (m *MockClient) vector(text string) []float32 {
	v := make([]float32, m.Dims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,;:!?()\"'")
		if token == "" {
			continue
		}
		sum := sha256.Sum256([]byte(token))
		bucket := int(binary.BigEndian.Uint32(sum[:4])) % m.Dims
		if bucket < 0 {
			bucket += m.Dims
		}
		v[bucket]++
	}
	if norm := utils.Normalize(v); norm != nil {
		return norm
	}
	return v
}

// Dimensions returns the mock dimensionality.
func (m *MockClient) Dimensions() int { return m.Dims }

// Close is a no-op.
func (m *MockClient) Close() error { return nil }
