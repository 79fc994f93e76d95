// Package search implements hybrid retrieval: vector similarity over indexed
// node text seeds a bounded graph expansion, the two signals are fused into
// one ranking, and the top evidence is handed to the synthesis model.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/soundprediction/expertgraph/pkg/driver"
	"github.com/soundprediction/expertgraph/pkg/embedder"
	"github.com/soundprediction/expertgraph/pkg/nlp"
	"github.com/soundprediction/expertgraph/pkg/retry"
	"github.com/soundprediction/expertgraph/pkg/types"
	"github.com/soundprediction/expertgraph/pkg/vectorstore"
)

// StoreUnavailableError wraps a backend failure during retrieval, after
// retries were exhausted.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// Options configures a Retriever.
type Options struct {
	// TopK is how many vector hits seed the graph expansion.
	TopK int
	// MaxDepth bounds graph expansion from the seeds.
	MaxDepth int
	// VectorWeight and GraphWeight combine the two signals. They need not
	// sum to one; ranking only depends on their ratio.
	VectorWeight float64
	GraphWeight  float64
	// Limit caps the evidence list handed to synthesis.
	Limit int
	// RequestTimeout bounds one embedding request attempt.
	RequestTimeout time.Duration
	// Policy is the retry policy for transient backend errors.
	Policy retry.Policy
}

func (o *Options) defaults() {
	if o.TopK <= 0 {
		o.TopK = 10
	}
	if o.MaxDepth < 0 {
		o.MaxDepth = 0
	}
	if o.VectorWeight == 0 && o.GraphWeight == 0 {
		o.VectorWeight = 0.5
		o.GraphWeight = 0.5
	}
	if o.Limit <= 0 {
		o.Limit = 20
	}
}

// Retriever answers natural-language queries against the built graph.
type Retriever struct {
	embedder embedder.Client
	vectors  vectorstore.Store
	graph    driver.GraphStore
	synth    nlp.Client
	opts     Options
	logger   *slog.Logger
}

// New creates a Retriever.
func New(emb embedder.Client, vectors vectorstore.Store, graph driver.GraphStore, synth nlp.Client, opts Options, logger *slog.Logger) *Retriever {
	opts.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: emb,
		vectors:  vectors,
		graph:    graph,
		synth:    synth,
		opts:     opts,
		logger:   logger,
	}
}

// candidate accumulates both retrieval signals for one node.
type candidate struct {
	nodeID      string
	snippet     string
	path        []types.EdgeType
	vectorScore float64
	graphScore  float64
}

// Query runs the full retrieval pipeline for one query. Identical queries
// against an unchanged index produce identical evidence lists: every ranking
// stage breaks score ties by node ID.
func (r *Retriever) Query(ctx context.Context, query string) (*types.RetrievalResponse, error) {
	if types.CanonicalKey(query) == "" {
		return nil, types.ErrEmptyQuery
	}

	queryVector, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := r.vectors.Search(ctx, queryVector, r.opts.TopK)
	if err != nil {
		return nil, &StoreUnavailableError{Op: "vector search", Err: err}
	}

	candidates := r.seedCandidates(hits)
	if len(candidates) > 0 && r.opts.MaxDepth > 0 {
		if err := r.expand(ctx, candidates); err != nil {
			return nil, err
		}
	}

	if len(candidates) == 0 {
		r.logger.Info("no evidence found", "query", query)
		return &types.RetrievalResponse{Query: query, NoEvidence: true}, nil
	}

	evidence, err := r.rank(ctx, candidates)
	if err != nil {
		return nil, err
	}

	answer, err := r.synth.Synthesize(ctx, query, evidence)
	if err != nil {
		return nil, fmt.Errorf("answer synthesis: %w", err)
	}

	r.logger.Debug("query answered",
		"query", query,
		"evidence", len(evidence),
		"top", evidence[0].NodeID)
	return &types.RetrievalResponse{
		Query:    query,
		Answer:   answer.Text,
		Evidence: evidence,
	}, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	var vectors [][]float32
	err := r.opts.Policy.Do(ctx, "embed query", func(ctx context.Context) error {
		if r.opts.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.opts.RequestTimeout)
			defer cancel()
		}
		var embedErr error
		vectors, embedErr = r.embedder.Embed(ctx, []string{query})
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("query embedding: got %d vectors", len(vectors))
	}
	return vectors[0], nil
}

// seedCandidates folds per-chunk vector hits into per-node candidates,
// keeping each node's best chunk score and snippet. Hits with no positive
// similarity are not evidence and make useless expansion seeds, so they are
// dropped here.
func (r *Retriever) seedCandidates(hits []vectorstore.Hit) map[string]*candidate {
	candidates := make(map[string]*candidate)
	for _, hit := range hits {
		if hit.Score <= 0 {
			continue
		}
		existing, ok := candidates[hit.NodeID]
		if !ok {
			candidates[hit.NodeID] = &candidate{
				nodeID:      hit.NodeID,
				snippet:     hit.Text,
				vectorScore: hit.Score,
			}
			continue
		}
		if hit.Score > existing.vectorScore {
			existing.vectorScore = hit.Score
			existing.snippet = hit.Text
		}
	}
	return candidates
}

// expand walks the graph outward from the vector seeds. Each reached node
// scores as its seed's vector score decayed by traversal depth, so a node two
// hops from a strong seed can outrank a node one hop from a weak one.
func (r *Retriever) expand(ctx context.Context, candidates map[string]*candidate) error {
	seedIDs := make([]string, 0, len(candidates))
	seedScores := make(map[string]float64, len(candidates))
	for id, c := range candidates {
		seedIDs = append(seedIDs, id)
		seedScores[id] = c.vectorScore
	}
	sort.Strings(seedIDs)

	var hits []*driver.NeighborHit
	err := r.opts.Policy.Do(ctx, "graph expansion", func(ctx context.Context) error {
		var travErr error
		hits, travErr = r.graph.Neighborhood(ctx, seedIDs, &driver.TraversalOptions{
			MaxDepth: r.opts.MaxDepth,
		})
		return travErr
	})
	if err != nil {
		return &StoreUnavailableError{Op: "graph expansion", Err: err}
	}

	for _, hit := range hits {
		score := seedScores[hit.SeedID] / float64(1+hit.Depth)
		c, ok := candidates[hit.Node.NodeID]
		if !ok {
			candidates[hit.Node.NodeID] = &candidate{
				nodeID:     hit.Node.NodeID,
				path:       hit.Path,
				graphScore: score,
			}
			continue
		}
		if score > c.graphScore {
			c.graphScore = score
			c.path = hit.Path
		}
	}
	return nil
}

// rank fuses the signals, orders the candidates, and materializes evidence
// for the top of the list.
func (r *Retriever) rank(ctx context.Context, candidates map[string]*candidate) ([]types.Evidence, error) {
	ordered := make([]*candidate, 0, len(candidates))
	for _, c := range candidates {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool {
		si := r.fused(ordered[i])
		sj := r.fused(ordered[j])
		if si != sj {
			return si > sj
		}
		return ordered[i].nodeID < ordered[j].nodeID
	})
	if len(ordered) > r.opts.Limit {
		ordered = ordered[:r.opts.Limit]
	}

	evidence := make([]types.Evidence, 0, len(ordered))
	for _, c := range ordered {
		node, err := r.graph.GetNode(ctx, c.nodeID)
		if err == driver.ErrNodeNotFound {
			// Indexed but not in the graph; vector evidence still
			// stands on its snippet alone.
			node = nil
		} else if err != nil {
			return nil, &StoreUnavailableError{Op: "node lookup", Err: err}
		}

		ev := types.Evidence{
			NodeID:      c.nodeID,
			Snippet:     c.snippet,
			Path:        c.path,
			Signal:      signalFor(c),
			VectorScore: c.vectorScore,
			GraphScore:  c.graphScore,
			FusedScore:  r.fused(c),
		}
		if node != nil {
			ev.Type = node.Type
			ev.Name = node.Name
			ev.SourceIDs = node.SourceIDs
			if ev.Snippet == "" {
				ev.Snippet = node.EmbeddingText()
			}
		}
		evidence = append(evidence, ev)
	}
	return evidence, nil
}

func (r *Retriever) fused(c *candidate) float64 {
	return r.opts.VectorWeight*c.vectorScore + r.opts.GraphWeight*c.graphScore
}

func signalFor(c *candidate) types.EvidenceSignal {
	switch {
	case c.vectorScore > 0 && c.graphScore > 0:
		return types.FusedSignal
	case c.graphScore > 0:
		return types.GraphSignal
	default:
		return types.VectorSignal
	}
}
