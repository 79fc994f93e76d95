package expertgraph

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/expertgraph/pkg/checkpoint"
	"github.com/soundprediction/expertgraph/pkg/config"
	"github.com/soundprediction/expertgraph/pkg/driver"
	"github.com/soundprediction/expertgraph/pkg/embedder"
	"github.com/soundprediction/expertgraph/pkg/nlp"
	"github.com/soundprediction/expertgraph/pkg/types"
	"github.com/soundprediction/expertgraph/pkg/vectorstore"
)

func testConfig() *config.Config {
	return &config.Config{
		Embedding: config.EmbeddingConfig{BatchSize: 8, Dimensions: 32},
		Build: config.BuildConfig{
			BatchSize:   10,
			Workers:     2,
			Concurrency: 2,
		},
		Search: config.SearchConfig{
			TopK:          5,
			MaxDepth:      2,
			VectorWeight:  0.5,
			GraphWeight:   0.5,
			Limit:         10,
			BatchParallel: 3,
		},
		Retry: config.RetryConfig{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			MaxDelay:    10 * time.Millisecond,
			Multiplier:  2.0,
		},
	}
}

func testClient(t *testing.T) *Client {
	t.Helper()

	vectors, err := vectorstore.NewBadgerStore("")
	require.NoError(t, err)

	cp, err := checkpoint.Open(filepath.Join(t.TempDir(), "build.json"))
	require.NoError(t, err)

	c := New(
		driver.NewMemoryStore(),
		vectors,
		embedder.NewMockClient(32),
		nlp.NewMockClient(),
		cp,
		testConfig(),
		nil,
	)
	t.Cleanup(func() { c.Close(context.Background()) })
	return c
}

func sampleRecords() []types.SourceRecord {
	return []types.SourceRecord{
		{
			ID:           "e1",
			Name:         "Jane Doe",
			Title:        "Principal Scientist",
			Organization: "Oncology Research",
			Skills:       []string{"Immunology", "Patient Outcomes"},
			Topics:       []string{"Vaccines"},
			Works: []types.WorkRecord{{
				ID:       "w1",
				Title:    "Vaccine response in adult cohorts",
				Abstract: "Measuring immune response to vaccines in adults.",
				Authors: []types.Author{
					{ID: "e1", Name: "Jane Doe"},
					{Name: "Sam Lee"},
				},
			}},
		},
		{
			ID:     "e2",
			Name:   "John Roe",
			Skills: []string{"Statistics"},
		},
	}
}

func TestBuildAndQuery(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	result, err := c.BuildRecords(ctx, sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, 2, result.RecordsLoaded)
	assert.Zero(t, result.RecordsFailed)
	assert.Greater(t, result.NodesUpserted, 0)
	assert.Greater(t, result.EdgesUpserted, 0)
	assert.Greater(t, result.ChunksEmbedded, 0)

	resp, err := c.Query(ctx, `Who has the "Immunology" skill?`)
	require.NoError(t, err)
	require.False(t, resp.NoEvidence)
	assert.Contains(t, resp.Answer, "Jane Doe")
}

func TestRebuildIsIdempotent(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	first, err := c.BuildRecords(ctx, sampleRecords())
	require.NoError(t, err)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)

	// Same data again: batches skip via the checkpoint, embeddings hit
	// the cache, graph size is unchanged.
	second, err := c.BuildRecords(ctx, sampleRecords())
	require.NoError(t, err)
	assert.Zero(t, second.BatchesCommitted)
	assert.Equal(t, first.BatchesCommitted, second.BatchesSkipped)
	assert.Zero(t, second.ChunksEmbedded)

	statsAfter, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.NodeCount, statsAfter.NodeCount)
	assert.Equal(t, stats.EdgeCount, statsAfter.EdgeCount)
}

func TestRebuildAfterResetReembedsNothing(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	_, err := c.BuildRecords(ctx, sampleRecords())
	require.NoError(t, err)
	require.NoError(t, c.ResetCheckpoint())

	result, err := c.BuildRecords(ctx, sampleRecords())
	require.NoError(t, err)
	assert.Greater(t, result.BatchesCommitted, 0, "reset checkpoint replays graph batches")
	assert.Zero(t, result.ChunksEmbedded, "unchanged text stays cached across resets")
}

func TestBatchQueryPreservesOrderAndIsolatesFailures(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	_, err := c.BuildRecords(ctx, sampleRecords())
	require.NoError(t, err)

	queries := []string{
		"Immunology",
		"   ", // invalid: fails validation without touching its siblings
		"Statistics",
	}
	results := c.BatchQuery(ctx, queries)
	require.Len(t, results, 3)

	require.NotNil(t, results[0].Response)
	assert.Equal(t, "Immunology", results[0].Response.Query)

	require.Nil(t, results[1].Response)
	assert.ErrorIs(t, results[1].Err, types.ErrEmptyQuery)

	require.NotNil(t, results[2].Response)
	assert.Equal(t, "Statistics", results[2].Response.Query)
}

func TestBatchQueryEmptyInput(t *testing.T) {
	c := testClient(t)
	results := c.BatchQuery(context.Background(), nil)
	assert.Empty(t, results)
}

func TestCoauthorPlaceholderSurvivesBuild(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	_, err := c.BuildRecords(ctx, sampleRecords())
	require.NoError(t, err)

	// Sam Lee exists only as a coauthor, so the build leaves a
	// placeholder expert behind.
	node, err := c.graph.GetNode(ctx, types.NodeID(types.ExpertNodeType, "Sam Lee"))
	require.NoError(t, err)
	assert.True(t, node.Placeholder)
}
