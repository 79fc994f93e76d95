// Package nlp provides the answer-synthesis client: given a query and the
// ranked evidence assembled by retrieval, it composes a natural-language
// answer citing experts by name. The model is an opaque external
// collaborator; only the input/output contract matters here.
package nlp

import (
	"context"
	"errors"

	"github.com/soundprediction/expertgraph/pkg/types"
)

// Common client errors.
var (
	// ErrRateLimit indicates the rate limit has been exceeded.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrEmptyResponse indicates the model returned an empty response.
	ErrEmptyResponse = errors.New("the model returned an empty response")
)

// Answer is a parsed synthesis result.
type Answer struct {
	Text         string   `json:"answer"`
	CitedNodeIDs []string `json:"cited_node_ids,omitempty"`
}

// Client synthesizes answers from structured evidence. Raw fusion scores are
// not part of the contract; the model sees names, types, snippets and
// relation paths.
type Client interface {
	Synthesize(ctx context.Context, query string, evidence []types.Evidence) (*Answer, error)
	Close() error
}
