// Package dto defines the request and response shapes of the HTTP API.
package dto

import "github.com/soundprediction/expertgraph/pkg/types"

// QueryRequest is the body of POST /api/v1/query.
type QueryRequest struct {
	Query string `json:"query" binding:"required"`
}

// QueryResponse is the body returned for a single query.
type QueryResponse struct {
	Query      string           `json:"query"`
	Answer     string           `json:"answer"`
	Evidence   []types.Evidence `json:"evidence"`
	NoEvidence bool             `json:"no_evidence"`
}

// BatchQueryRequest is the body of POST /api/v1/query/batch.
type BatchQueryRequest struct {
	Queries []string `json:"queries" binding:"required"`
}

// BatchQuerySlot is one positional result of a batch query. Exactly one of
// Response or Error is set.
type BatchQuerySlot struct {
	Response *QueryResponse `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// BatchQueryResponse preserves the order of the submitted queries.
type BatchQueryResponse struct {
	Results []BatchQuerySlot `json:"results"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FromRetrieval converts an internal retrieval response to the API shape.
func FromRetrieval(resp *types.RetrievalResponse) *QueryResponse {
	return &QueryResponse{
		Query:      resp.Query,
		Answer:     resp.Answer,
		Evidence:   resp.Evidence,
		NoEvidence: resp.NoEvidence,
	}
}
