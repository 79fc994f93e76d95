package types

// EvidenceSignal names the retrieval signal that produced a piece of
// evidence.
type EvidenceSignal string

const (
	VectorSignal EvidenceSignal = "vector"
	GraphSignal  EvidenceSignal = "graph"
	FusedSignal  EvidenceSignal = "fused"
)

// Evidence is one scored, typed unit supporting a retrieval answer: a node
// reached by vector similarity, graph traversal, or both.
type Evidence struct {
	NodeID  string   `json:"node_id"`
	Type    NodeType `json:"type"`
	Name    string   `json:"name"`
	Snippet string   `json:"snippet,omitempty"`

	// Path is the chain of edge types from the vector-matched seed node to
	// this node. Empty for nodes found directly by vector search.
	Path []EdgeType `json:"path,omitempty"`

	// Signal indicates which retrieval signals contributed.
	Signal EvidenceSignal `json:"signal"`

	VectorScore float64 `json:"vector_score"`
	GraphScore  float64 `json:"graph_score"`
	FusedScore  float64 `json:"fused_score"`

	// SourceIDs carries provenance from the underlying node.
	SourceIDs []string `json:"source_ids,omitempty"`
}

// RetrievalResponse is the result of a single hybrid query: the synthesized
// answer plus the ordered evidence that supports it.
type RetrievalResponse struct {
	Query    string     `json:"query"`
	Answer   string     `json:"answer"`
	Evidence []Evidence `json:"evidence"`

	// NoEvidence is set when neither vector search nor graph expansion
	// produced any candidates. No answer is fabricated in that case.
	NoEvidence bool `json:"no_evidence"`
}

// QueryResult is one slot of a batch query. Exactly one of Response or Err is
// set; a failing query never aborts its siblings.
type QueryResult struct {
	Response *RetrievalResponse `json:"response,omitempty"`
	Err      error              `json:"-"`
}
