package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/expertgraph/pkg/driver"
	"github.com/soundprediction/expertgraph/pkg/embedder"
	"github.com/soundprediction/expertgraph/pkg/nlp"
	"github.com/soundprediction/expertgraph/pkg/retry"
	"github.com/soundprediction/expertgraph/pkg/types"
	"github.com/soundprediction/expertgraph/pkg/vectorstore"
)

func testOptions() Options {
	return Options{
		TopK:         5,
		MaxDepth:     2,
		VectorWeight: 0.5,
		GraphWeight:  0.5,
		Limit:        10,
		Policy: retry.Policy{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			MaxDelay:    10 * time.Millisecond,
			Multiplier:  2.0,
		},
	}
}

// fixture builds a small graph and matching vector index:
//
//	Jane Doe -HAS_SKILL-> Immunology
//	Jane Doe -AUTHORED->  "Vaccine response in adults"
//	John Roe -HAS_SKILL-> Statistics
func fixture(t *testing.T) (*embedder.MockClient, vectorstore.Store, *driver.MemoryStore) {
	t.Helper()
	ctx := context.Background()

	emb := embedder.NewMockClient(32)
	vectors, err := vectorstore.NewBadgerStore("")
	require.NoError(t, err)
	t.Cleanup(func() { vectors.Close() })

	graph := driver.NewMemoryStore()

	jane := &types.Node{
		NodeID:      types.NodeID(types.ExpertNodeType, "Jane Doe"),
		Type:        types.ExpertNodeType,
		Name:        "Jane Doe",
		Description: "Senior researcher",
	}
	immunology := &types.Node{
		NodeID: types.NodeID(types.SkillNodeType, "Immunology"),
		Type:   types.SkillNodeType,
		Name:   "Immunology",
	}
	paper := &types.Node{
		NodeID:      types.NodeID(types.WorkNodeType, "w1"),
		Type:        types.WorkNodeType,
		Name:        "Vaccine response in adults",
		Description: "Measuring vaccine immune response in adult cohorts",
	}
	john := &types.Node{
		NodeID: types.NodeID(types.ExpertNodeType, "John Roe"),
		Type:   types.ExpertNodeType,
		Name:   "John Roe",
	}
	statistics := &types.Node{
		NodeID: types.NodeID(types.SkillNodeType, "Statistics"),
		Type:   types.SkillNodeType,
		Name:   "Statistics",
	}
	require.NoError(t, graph.UpsertNodes(ctx, []*types.Node{jane, immunology, paper, john, statistics}))
	require.NoError(t, graph.UpsertEdges(ctx, []*types.Edge{
		{SourceID: jane.NodeID, Type: types.HasSkillEdgeType, TargetID: immunology.NodeID},
		{SourceID: jane.NodeID, Type: types.AuthoredEdgeType, TargetID: paper.NodeID},
		{SourceID: john.NodeID, Type: types.HasSkillEdgeType, TargetID: statistics.NodeID},
	}))

	for _, node := range []*types.Node{jane, immunology, paper, john, statistics} {
		text := node.EmbeddingText()
		vecs, err := emb.Embed(ctx, []string{text})
		require.NoError(t, err)
		require.NoError(t, vectors.Upsert(ctx, []*vectorstore.Record{{
			NodeID:  node.NodeID,
			ChunkID: "0",
			Vector:  vecs[0],
			Text:    text,
		}}))
	}
	return emb, vectors, graph
}

func TestQueryFindsExpertThroughSkill(t *testing.T) {
	emb, vectors, graph := fixture(t)
	r := New(emb, vectors, graph, nlp.NewMockClient(), testOptions(), nil)

	resp, err := r.Query(context.Background(), `Who has the "Immunology" skill?`)
	require.NoError(t, err)
	require.False(t, resp.NoEvidence)
	require.NotEmpty(t, resp.Evidence)
	assert.NotEmpty(t, resp.Answer)

	// The skill node is the strongest vector match; Jane reaches the
	// evidence list through graph expansion from it.
	assert.Equal(t, types.NodeID(types.SkillNodeType, "Immunology"), resp.Evidence[0].NodeID)

	var jane *types.Evidence
	for i := range resp.Evidence {
		if resp.Evidence[i].Name == "Jane Doe" {
			jane = &resp.Evidence[i]
		}
	}
	require.NotNil(t, jane, "expert connected to the matched skill must appear as evidence")
	assert.Greater(t, jane.GraphScore, 0.0)
	assert.Contains(t, jane.Path, types.HasSkillEdgeType)
	assert.Contains(t, resp.Answer, "Jane Doe")
}

func TestQueryIsDeterministic(t *testing.T) {
	emb, vectors, graph := fixture(t)
	r := New(emb, vectors, graph, nlp.NewMockClient(), testOptions(), nil)

	first, err := r.Query(context.Background(), "vaccine immune response")
	require.NoError(t, err)
	second, err := r.Query(context.Background(), "vaccine immune response")
	require.NoError(t, err)

	require.Equal(t, len(first.Evidence), len(second.Evidence))
	for i := range first.Evidence {
		assert.Equal(t, first.Evidence[i].NodeID, second.Evidence[i].NodeID)
		assert.Equal(t, first.Evidence[i].FusedScore, second.Evidence[i].FusedScore)
	}
}

func TestQueryEvidenceOrderedByFusedScore(t *testing.T) {
	emb, vectors, graph := fixture(t)
	r := New(emb, vectors, graph, nlp.NewMockClient(), testOptions(), nil)

	resp, err := r.Query(context.Background(), "Immunology vaccine research")
	require.NoError(t, err)
	for i := 1; i < len(resp.Evidence); i++ {
		prev, cur := resp.Evidence[i-1], resp.Evidence[i]
		if prev.FusedScore == cur.FusedScore {
			assert.Less(t, prev.NodeID, cur.NodeID)
		} else {
			assert.Greater(t, prev.FusedScore, cur.FusedScore)
		}
	}
}

func TestQueryRejectsEmptyQuery(t *testing.T) {
	emb, vectors, graph := fixture(t)
	r := New(emb, vectors, graph, nlp.NewMockClient(), testOptions(), nil)

	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := r.Query(context.Background(), q)
		assert.ErrorIs(t, err, types.ErrEmptyQuery)
	}
}

func TestQueryNoEvidence(t *testing.T) {
	emb := embedder.NewMockClient(32)
	vectors, err := vectorstore.NewBadgerStore("")
	require.NoError(t, err)
	t.Cleanup(func() { vectors.Close() })

	r := New(emb, vectors, driver.NewMemoryStore(), nlp.NewMockClient(), testOptions(), nil)
	resp, err := r.Query(context.Background(), "anything at all")
	require.NoError(t, err)
	assert.True(t, resp.NoEvidence)
	assert.Empty(t, resp.Evidence)
	assert.Empty(t, resp.Answer)
}

func TestQuerySynthesisFailureSurfaces(t *testing.T) {
	emb, vectors, graph := fixture(t)
	synth := nlp.NewMockClient()
	synth.Fail = errors.New("model offline")
	r := New(emb, vectors, graph, synth, testOptions(), nil)

	_, err := r.Query(context.Background(), "Immunology")
	require.Error(t, err)
	assert.ErrorContains(t, err, "model offline")
}

func TestVectorOnlyWhenDepthZero(t *testing.T) {
	emb, vectors, graph := fixture(t)
	opts := testOptions()
	opts.MaxDepth = 0
	r := New(emb, vectors, graph, nlp.NewMockClient(), opts, nil)

	resp, err := r.Query(context.Background(), "Immunology")
	require.NoError(t, err)
	for _, ev := range resp.Evidence {
		assert.Equal(t, types.VectorSignal, ev.Signal)
		assert.Zero(t, ev.GraphScore)
	}
}
