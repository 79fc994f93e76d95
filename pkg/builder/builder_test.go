package builder

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/expertgraph/pkg/checkpoint"
	"github.com/soundprediction/expertgraph/pkg/driver"
	"github.com/soundprediction/expertgraph/pkg/normalizer"
	"github.com/soundprediction/expertgraph/pkg/retry"
	"github.com/soundprediction/expertgraph/pkg/types"
)

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func newManager(t *testing.T) *checkpoint.Manager {
	t.Helper()
	mgr, err := checkpoint.Open(filepath.Join(t.TempDir(), "build.json"))
	require.NoError(t, err)
	return mgr
}

func expertNode(name string) *types.Node {
	return &types.Node{
		NodeID: types.NodeID(types.ExpertNodeType, name),
		Type:   types.ExpertNodeType,
		Name:   name,
	}
}

func skillEdge(expert, skill *types.Node) *types.Edge {
	return &types.Edge{
		SourceID: expert.NodeID,
		Type:     types.HasSkillEdgeType,
		TargetID: skill.NodeID,
	}
}

func TestBuilderCommitsAllBatches(t *testing.T) {
	store := driver.NewMemoryStore()
	mgr := newManager(t)

	expert := expertNode("Jane Doe")
	skill := &types.Node{
		NodeID: types.NodeID(types.SkillNodeType, "Immunology"),
		Type:   types.SkillNodeType,
		Name:   "Immunology",
	}

	batches := []*Batch{
		{Seq: 0, Nodes: []*types.Node{expert, skill}, Edges: []*types.Edge{skillEdge(expert, skill)}},
		{Seq: 1, Nodes: []*types.Node{expertNode("John Roe")}},
	}

	b := New(store, mgr, Options{Workers: 2, Policy: testPolicy()}, nil)
	result, err := b.Run(context.Background(), batches)
	require.NoError(t, err)
	assert.Equal(t, 2, result.BatchesCommitted)
	assert.Equal(t, 3, result.NodesUpserted)
	assert.Equal(t, 1, result.EdgesUpserted)
	assert.Equal(t, int64(1), mgr.LastCommitted(checkpoint.StageGraph))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.NodeCount)
	assert.Equal(t, int64(1), stats.EdgeCount)
}

func TestBuilderSkipsCommittedBatches(t *testing.T) {
	store := driver.NewMemoryStore()
	mgr := newManager(t)
	require.NoError(t, mgr.Advance(checkpoint.StageGraph, 0))

	batches := []*Batch{
		{Seq: 0, Nodes: []*types.Node{expertNode("Already Applied")}},
		{Seq: 1, Nodes: []*types.Node{expertNode("Fresh")}},
	}

	b := New(store, mgr, Options{Workers: 1, Policy: testPolicy()}, nil)
	result, err := b.Run(context.Background(), batches)
	require.NoError(t, err)
	assert.Equal(t, 1, result.BatchesSkipped)
	assert.Equal(t, 1, result.BatchesCommitted)

	_, err = store.GetNode(context.Background(), types.NodeID(types.ExpertNodeType, "Already Applied"))
	assert.ErrorIs(t, err, driver.ErrNodeNotFound)
	_, err = store.GetNode(context.Background(), types.NodeID(types.ExpertNodeType, "Fresh"))
	assert.NoError(t, err)
}

func TestBuilderRerunIsIdempotent(t *testing.T) {
	store := driver.NewMemoryStore()

	expert := expertNode("Jane Doe")
	skill := &types.Node{
		NodeID: types.NodeID(types.SkillNodeType, "Immunology"),
		Type:   types.SkillNodeType,
		Name:   "Immunology",
	}
	batches := []*Batch{
		{Seq: 0, Nodes: []*types.Node{expert, skill}, Edges: []*types.Edge{skillEdge(expert, skill)}},
	}

	for i := 0; i < 2; i++ {
		mgr := newManager(t)
		b := New(store, mgr, Options{Workers: 1, Policy: testPolicy()}, nil)
		_, err := b.Run(context.Background(), batches)
		require.NoError(t, err)
	}

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.NodeCount)
	assert.Equal(t, int64(1), stats.EdgeCount)
}

// flakyStore fails a configured number of UpsertNodes calls before
// succeeding, to exercise the retry path.
type flakyStore struct {
	driver.GraphStore

	mu        sync.Mutex
	failures  int
	permanent bool
}

func (s *flakyStore) UpsertNodes(ctx context.Context, nodes []*types.Node) error {
	s.mu.Lock()
	remaining := s.failures
	if remaining > 0 {
		s.failures--
	}
	s.mu.Unlock()

	if remaining > 0 {
		if s.permanent {
			return errors.New("constraint violation")
		}
		return retry.Transient(errors.New("connection reset"))
	}
	return s.GraphStore.UpsertNodes(ctx, nodes)
}

func TestBuilderRetriesTransientFailures(t *testing.T) {
	store := &flakyStore{GraphStore: driver.NewMemoryStore(), failures: 2}
	mgr := newManager(t)

	batches := []*Batch{{Seq: 0, Nodes: []*types.Node{expertNode("Jane Doe")}}}
	b := New(store, mgr, Options{Workers: 1, Policy: testPolicy()}, nil)
	result, err := b.Run(context.Background(), batches)
	require.NoError(t, err)
	assert.Equal(t, 1, result.BatchesCommitted)
}

func TestBuilderHaltsOnExhaustion(t *testing.T) {
	store := &flakyStore{GraphStore: driver.NewMemoryStore(), failures: 10}
	mgr := newManager(t)

	batches := []*Batch{{Seq: 0, Nodes: []*types.Node{expertNode("Jane Doe")}}}
	b := New(store, mgr, Options{Workers: 1, Policy: testPolicy()}, nil)
	_, err := b.Run(context.Background(), batches)
	require.Error(t, err)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, checkpoint.StageGraph, batchErr.Stage)
	assert.Equal(t, int64(0), batchErr.Seq)
	assert.Equal(t, checkpoint.NoBatch, mgr.LastCommitted(checkpoint.StageGraph))
}

func TestBuilderDoesNotRetryPermanentFailures(t *testing.T) {
	store := &flakyStore{GraphStore: driver.NewMemoryStore(), failures: 1, permanent: true}
	mgr := newManager(t)

	batches := []*Batch{{Seq: 0, Nodes: []*types.Node{expertNode("Jane Doe")}}}
	b := New(store, mgr, Options{Workers: 1, Policy: testPolicy()}, nil)
	_, err := b.Run(context.Background(), batches)
	require.Error(t, err)
	assert.Equal(t, 0, store.failures, "permanent failure consumed exactly one attempt")
}

func TestBuilderCheckpointAdvancesInOrder(t *testing.T) {
	store := driver.NewMemoryStore()
	mgr := newManager(t)

	var batches []*Batch
	for i := int64(0); i < 20; i++ {
		batches = append(batches, &Batch{
			Seq:   i,
			Nodes: []*types.Node{expertNode("Expert " + string(rune('A'+i)))},
		})
	}

	b := New(store, mgr, Options{Workers: 8, Policy: testPolicy()}, nil)
	result, err := b.Run(context.Background(), batches)
	require.NoError(t, err)
	assert.Equal(t, 20, result.BatchesCommitted)
	assert.Equal(t, int64(19), mgr.LastCommitted(checkpoint.StageGraph))
}

func TestPartitionAssignsContiguousSequences(t *testing.T) {
	var candidates []*normalizer.Candidates
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		candidates = append(candidates, &normalizer.Candidates{
			SourceID: name,
			Nodes:    []*types.Node{expertNode(name)},
		})
	}

	batches := Partition(candidates, 2)
	require.Len(t, batches, 3)
	for i, batch := range batches {
		assert.Equal(t, int64(i), batch.Seq)
	}
	assert.Len(t, batches[0].Nodes, 2)
	assert.Len(t, batches[2].Nodes, 1)
}

func TestPartitionPrefersFullNodeOverPlaceholder(t *testing.T) {
	placeholder := expertNode("Jane Doe")
	placeholder.Placeholder = true
	full := expertNode("Jane Doe")
	full.Description = "Immunology researcher"

	batches := Partition([]*normalizer.Candidates{
		{SourceID: "w1", Nodes: []*types.Node{placeholder}},
		{SourceID: "e1", Nodes: []*types.Node{full}},
	}, 10)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Nodes, 1)
	assert.False(t, batches[0].Nodes[0].Placeholder)
	assert.Equal(t, "Immunology researcher", batches[0].Nodes[0].Description)
}
