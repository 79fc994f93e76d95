package nlp

import (
	"context"
	"fmt"
	"strings"

	"github.com/soundprediction/expertgraph/pkg/types"
)

// MockClient is a deterministic synthesis client for tests: it names the
// expert evidence it was given, in order, without calling any model.
type MockClient struct {
	// Fail, when set, is returned from Synthesize.
	Fail error
}

// NewMockClient creates a mock synthesis client.
func NewMockClient() *MockClient { return &MockClient{} }

// Synthesize composes a canned answer citing expert evidence by name.
func (m *MockClient) Synthesize(ctx context.Context, query string, evidence []types.Evidence) (*Answer, error) {
	if m.Fail != nil {
		return nil, m.Fail
	}

	var experts []string
	var cited []string
	for _, ev := range evidence {
		if ev.Type == types.ExpertNodeType {
			experts = append(experts, ev.Name)
			cited = append(cited, ev.NodeID)
		}
	}
	if len(experts) == 0 {
		return &Answer{Text: "The evidence does not identify a specific expert."}, nil
	}
	return &Answer{
		Text:         fmt.Sprintf("Based on the evidence: %s.", strings.Join(experts, ", ")),
		CitedNodeIDs: cited,
	}, nil
}

// Close is a no-op.
func (m *MockClient) Close() error { return nil }
