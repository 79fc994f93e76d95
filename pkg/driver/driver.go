// Package driver provides graph store implementations for the expertgraph
// pipeline. The GraphStore interface covers idempotent node/edge upserts and
// bounded-depth traversal; Neo4j is the production backend and MemoryStore
// backs tests.
package driver

import (
	"context"
	"errors"

	"github.com/soundprediction/expertgraph/pkg/types"
)

// ErrNodeNotFound is returned when a node lookup finds nothing.
var ErrNodeNotFound = errors.New("node not found")

// NeighborHit is one node reached by graph expansion, with the traversal
// depth at which it was first encountered and the edge-type path from the
// seed.
type NeighborHit struct {
	Node *types.Node
	// SeedID is the traversal origin that reached this node first.
	SeedID string
	// Depth is the minimum number of hops from the seed.
	Depth int
	// Path is the chain of edge types along the shortest discovered path.
	Path []types.EdgeType
}

// TraversalOptions bounds a Neighborhood call.
type TraversalOptions struct {
	// MaxDepth limits traversal; values below 1 disable expansion.
	MaxDepth int
	// EdgeTypes restricts which relationships are followed. Empty follows
	// all edge types.
	EdgeTypes []types.EdgeType
	// Limit caps the number of returned hits. Zero means no cap.
	Limit int
}

// GraphStore is the protocol the pipeline requires from a graph database:
// create-or-merge upserts keyed by node ID and by (source, type, target), and
// traversal from a seed set. Implementations must make repeated upserts of
// the same identity converge to a single element.
type GraphStore interface {
	// UpsertNodes merges nodes by NodeID. A placeholder node never
	// overwrites a previously stored full node.
	UpsertNodes(ctx context.Context, nodes []*types.Node) error

	// UpsertEdges merges edges by (source, type, target).
	UpsertEdges(ctx context.Context, edges []*types.Edge) error

	// GetNode retrieves one node by ID.
	GetNode(ctx context.Context, nodeID string) (*types.Node, error)

	// Neighborhood expands from the seed nodes up to the bounded depth,
	// following edges in both directions, and reports each distinct
	// reached node once at its minimum depth. Seeds themselves are not
	// reported.
	Neighborhood(ctx context.Context, seedIDs []string, opts *TraversalOptions) ([]*NeighborHit, error)

	// CreateIndices creates database indices and constraints for the
	// node and edge identity keys.
	CreateIndices(ctx context.Context) error

	// Stats reports node and edge counts, mainly for CLI inspection.
	Stats(ctx context.Context) (*GraphStats, error)

	// Close releases the underlying connections.
	Close(ctx context.Context) error
}

// GraphStats holds aggregate counts of the stored graph.
type GraphStats struct {
	NodeCount   int64            `json:"node_count"`
	EdgeCount   int64            `json:"edge_count"`
	NodesByType map[string]int64 `json:"nodes_by_type"`
	EdgesByType map[string]int64 `json:"edges_by_type"`
}
