package driver

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soundprediction/expertgraph/pkg/types"
)

// MemoryStore is an in-memory GraphStore used by tests and local
// experiments. It mirrors the Neo4j merge semantics: nodes merge by node_id,
// edges by (source, type, target), and placeholders never overwrite full
// nodes.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]*types.Node
	edges map[string]*types.Edge

	// adjacency: node_id -> outgoing and incoming edge identities.
	adjacency map[string][]string
}

// NewMemoryStore creates an empty in-memory graph store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:     make(map[string]*types.Node),
		edges:     make(map[string]*types.Edge),
		adjacency: make(map[string][]string),
	}
}

// UpsertNodes merges nodes by ID.
func (s *MemoryStore) UpsertNodes(ctx context.Context, nodes []*types.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, node := range nodes {
		if err := node.Validate(); err != nil {
			return err
		}

		existing, ok := s.nodes[node.NodeID]
		if !ok {
			clone := *node
			clone.UpdatedAt = time.Now()
			s.nodes[node.NodeID] = &clone
			continue
		}

		if node.Placeholder {
			// Placeholder data never clobbers an existing node,
			// only its provenance accumulates.
			existing.SourceIDs = unionStrings(existing.SourceIDs, node.SourceIDs)
			existing.UpdatedAt = time.Now()
			continue
		}

		sourceIDs := unionStrings(existing.SourceIDs, node.SourceIDs)
		clone := *node
		clone.SourceIDs = sourceIDs
		clone.Placeholder = false
		clone.CreatedAt = existing.CreatedAt
		clone.UpdatedAt = time.Now()
		s.nodes[node.NodeID] = &clone
	}
	return nil
}

// UpsertEdges merges edges by identity tuple.
func (s *MemoryStore) UpsertEdges(ctx context.Context, edges []*types.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, edge := range edges {
		if err := edge.Validate(); err != nil {
			return err
		}

		key := edge.Identity()
		if existing, ok := s.edges[key]; ok {
			existing.Weight = edge.Weight
			existing.UpdatedAt = time.Now()
			continue
		}

		clone := *edge
		clone.UpdatedAt = time.Now()
		s.edges[key] = &clone
		s.adjacency[edge.SourceID] = append(s.adjacency[edge.SourceID], key)
		s.adjacency[edge.TargetID] = append(s.adjacency[edge.TargetID], key)
	}
	return nil
}

// GetNode retrieves a node by ID.
func (s *MemoryStore) GetNode(ctx context.Context, nodeID string) (*types.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return nil, ErrNodeNotFound
	}
	clone := *node
	return &clone, nil
}

// Neighborhood performs a breadth-first expansion over edges in both
// directions, reporting each reached node once at its minimum depth.
func (s *MemoryStore) Neighborhood(ctx context.Context, seedIDs []string, opts *TraversalOptions) ([]*NeighborHit, error) {
	if len(seedIDs) == 0 || opts == nil || opts.MaxDepth < 1 {
		return []*NeighborHit{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := make(map[types.EdgeType]bool, len(opts.EdgeTypes))
	for _, t := range opts.EdgeTypes {
		allowed[t] = true
	}

	type frontierEntry struct {
		nodeID string
		seedID string
		path   []types.EdgeType
	}

	visited := make(map[string]bool, len(seedIDs))
	for _, id := range seedIDs {
		visited[id] = true
	}

	frontier := make([]frontierEntry, 0, len(seedIDs))
	// Deterministic expansion order regardless of seed map iteration.
	sortedSeeds := append([]string(nil), seedIDs...)
	sort.Strings(sortedSeeds)
	for _, id := range sortedSeeds {
		if _, ok := s.nodes[id]; ok {
			frontier = append(frontier, frontierEntry{nodeID: id, seedID: id})
		}
	}

	var hits []*NeighborHit
	for depth := 1; depth <= opts.MaxDepth && len(frontier) > 0; depth++ {
		var next []frontierEntry
		for _, entry := range frontier {
			edgeKeys := append([]string(nil), s.adjacency[entry.nodeID]...)
			sort.Strings(edgeKeys)
			for _, key := range edgeKeys {
				edge := s.edges[key]
				if len(allowed) > 0 && !allowed[edge.Type] {
					continue
				}

				other := edge.TargetID
				if other == entry.nodeID {
					other = edge.SourceID
				}
				if visited[other] {
					continue
				}
				visited[other] = true

				node, ok := s.nodes[other]
				if !ok {
					continue
				}

				path := append(append([]types.EdgeType(nil), entry.path...), edge.Type)
				clone := *node
				hits = append(hits, &NeighborHit{
					Node:   &clone,
					SeedID: entry.seedID,
					Depth:  depth,
					Path:   path,
				})
				if opts.Limit > 0 && len(hits) >= opts.Limit {
					return hits, nil
				}
				next = append(next, frontierEntry{nodeID: other, seedID: entry.seedID, path: path})
			}
		}
		frontier = next
	}
	return hits, nil
}

// CreateIndices is a no-op for the in-memory store.
func (s *MemoryStore) CreateIndices(ctx context.Context) error { return nil }

// Stats reports counts by type.
func (s *MemoryStore) Stats(ctx context.Context) (*GraphStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &GraphStats{
		NodesByType: make(map[string]int64),
		EdgesByType: make(map[string]int64),
	}
	for _, node := range s.nodes {
		stats.NodeCount++
		stats.NodesByType[string(node.Type)]++
	}
	for _, edge := range s.edges {
		stats.EdgeCount++
		stats.EdgesByType[string(edge.Type)]++
	}
	return stats, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close(ctx context.Context) error { return nil }

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
