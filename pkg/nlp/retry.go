package nlp

import (
	"context"

	"github.com/soundprediction/expertgraph/pkg/retry"
	"github.com/soundprediction/expertgraph/pkg/types"
)

// RetryClient wraps a synthesis client with the shared retry policy.
type RetryClient struct {
	client Client
	policy retry.Policy
}

// NewRetryClient wraps client so transient synthesis failures are retried
// with bounded exponential backoff.
func NewRetryClient(client Client, policy retry.Policy) *RetryClient {
	return &RetryClient{client: client, policy: policy}
}

// Synthesize implements Client with retry.
func (r *RetryClient) Synthesize(ctx context.Context, query string, evidence []types.Evidence) (*Answer, error) {
	var answer *Answer
	err := r.policy.Do(ctx, "synthesize", func(ctx context.Context) error {
		var err error
		answer, err = r.client.Synthesize(ctx, query, evidence)
		return err
	})
	if err != nil {
		return nil, err
	}
	return answer, nil
}

// Close implements Client.
func (r *RetryClient) Close() error {
	return r.client.Close()
}
