package builder

import (
	"github.com/soundprediction/expertgraph/pkg/normalizer"
	"github.com/soundprediction/expertgraph/pkg/types"
)

// Partition groups normalized candidates into batches of at most size
// records each, assigning contiguous sequence numbers from zero. The same
// input always yields the same batch boundaries and sequences, which is what
// makes checkpointed resumption line up across runs.
//
// Nodes and edges are deduplicated within a batch by identity. A full node
// always wins over a placeholder for the same node ID.
func Partition(candidates []*normalizer.Candidates, size int) []*Batch {
	if size <= 0 {
		size = 100
	}

	var batches []*Batch
	for start := 0; start < len(candidates); start += size {
		end := start + size
		if end > len(candidates) {
			end = len(candidates)
		}

		nodes := make(map[string]*types.Node)
		edges := make(map[string]*types.Edge)
		var nodeOrder, edgeOrder []string
		for _, cand := range candidates[start:end] {
			for _, n := range cand.Nodes {
				existing, ok := nodes[n.NodeID]
				if !ok {
					nodes[n.NodeID] = n
					nodeOrder = append(nodeOrder, n.NodeID)
					continue
				}
				if existing.Placeholder && !n.Placeholder {
					nodes[n.NodeID] = n
				}
			}
			for _, e := range cand.Edges {
				id := e.Identity()
				if _, ok := edges[id]; !ok {
					edges[id] = e
					edgeOrder = append(edgeOrder, id)
				}
			}
		}

		batch := &Batch{Seq: int64(len(batches))}
		for _, id := range nodeOrder {
			batch.Nodes = append(batch.Nodes, nodes[id])
		}
		for _, id := range edgeOrder {
			batch.Edges = append(batch.Edges, edges[id])
		}
		batches = append(batches, batch)
	}
	return batches
}
