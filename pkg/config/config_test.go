package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "neo4j", cfg.Database.Driver)
	assert.Equal(t, 1024, cfg.Embedding.Dimensions)
	assert.Equal(t, 10, cfg.Search.TopK)
	assert.Equal(t, 2, cfg.Search.MaxDepth)
	assert.Equal(t, 0.5, cfg.Search.VectorWeight)
	assert.Equal(t, 0.5, cfg.Search.GraphWeight)
	assert.Equal(t, 100, cfg.Build.BatchSize)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("NEO4J_URI", "bolt://graph.internal:7687")
	t.Setenv("NEO4J_USER", "svc")
	t.Setenv("NEO4J_PASSWORD", "secret")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "bolt://graph.internal:7687", cfg.Database.URI)
	assert.Equal(t, "svc", cfg.Database.Username)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, "sk-test", cfg.NLP.APIKey)
}
