package types

import (
	"errors"
	"fmt"
	"time"
)

// Edge and node validation errors.
var (
	ErrEmptyNodeID   = errors.New("node_id cannot be empty")
	ErrEmptyNodeType = errors.New("node type cannot be empty")
	ErrEmptyEdgeType = errors.New("edge type cannot be empty")
	ErrEmptyEndpoint = errors.New("edge endpoints cannot be empty")
)

// EdgeType tags the directed relationship variants of the graph.
type EdgeType string

const (
	HasSkillEdgeType  EdgeType = "HAS_SKILL"
	WorksInEdgeType   EdgeType = "WORKS_IN"
	AuthoredEdgeType  EdgeType = "AUTHORED"
	CoauthorEdgeType  EdgeType = "COAUTHOR_WITH"
	MemberOfEdgeType  EdgeType = "MEMBER_OF"
)

// Edge is a directed, typed relationship between two node IDs. Its identity
// is the (source, type, target) tuple: upserting the same tuple twice must
// not create a duplicate.
type Edge struct {
	SourceID string   `json:"source_id"`
	Type     EdgeType `json:"type"`
	TargetID string   `json:"target_id"`

	// Weight is an optional relationship strength; zero means unweighted.
	Weight float64 `json:"weight,omitempty"`

	// SourceRecordID is the provenance of this edge: the source record
	// whose normalization emitted it.
	SourceRecordID string `json:"source_record_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity returns the deduplication key for the edge.
func (e *Edge) Identity() string {
	return fmt.Sprintf("%s|%s|%s", e.SourceID, e.Type, e.TargetID)
}

// Validate checks the fields every edge must carry before upsert.
func (e *Edge) Validate() error {
	if e.SourceID == "" || e.TargetID == "" {
		return ErrEmptyEndpoint
	}
	if e.Type == "" {
		return ErrEmptyEdgeType
	}
	return nil
}
