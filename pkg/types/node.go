package types

import (
	"fmt"
	"strings"
	"time"
)

// NodeType tags the canonical entity variants of the graph.
type NodeType string

const (
	ExpertNodeType       NodeType = "Expert"
	SkillNodeType        NodeType = "Skill"
	TopicNodeType        NodeType = "Topic"
	OrganizationNodeType NodeType = "Organization"
	WorkNodeType         NodeType = "Work"
)

// CanonicalKey lower-cases and whitespace-normalizes a natural key so that
// "Patient Outcomes" and "patient outcomes " resolve to the same identity.
func CanonicalKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NodeID derives the stable node identifier for a (type, natural key) pair.
// It is a pure function: the same inputs always yield the same ID, regardless
// of insertion order.
func NodeID(t NodeType, naturalKey string) string {
	return fmt.Sprintf("%s:%s", strings.ToLower(string(t)), CanonicalKey(naturalKey))
}

// Node is a canonical graph vertex. Two records yielding the same natural key
// resolve to the same NodeID and are merged on upsert.
type Node struct {
	NodeID      string    `json:"node_id"`
	Type        NodeType  `json:"type"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Placeholder marks a node created to satisfy an edge endpoint whose
	// own source record has not been processed yet. A later full upsert
	// enriches it; a placeholder upsert never overwrites a full node.
	Placeholder bool `json:"placeholder,omitempty"`

	// Provenance: the source record IDs that contributed to this node.
	SourceIDs []string `json:"source_ids,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks the fields every node must carry before upsert.
func (n *Node) Validate() error {
	if n.NodeID == "" {
		return ErrEmptyNodeID
	}
	if n.Name == "" {
		return ErrEmptyName
	}
	if n.Type == "" {
		return ErrEmptyNodeType
	}
	return nil
}

// EmbeddingText returns the text the Embedding Indexer embeds for this node.
// Every entity variant is polymorphic over this one capability.
func (n *Node) EmbeddingText() string {
	switch n.Type {
	case ExpertNodeType, WorkNodeType:
		if n.Description != "" {
			return fmt.Sprintf("%s: %s", n.Name, n.Description)
		}
		return n.Name
	default:
		// Skills, topics and organizations embed as short labels so a
		// query like "Immunology" lands near the Skill node itself.
		if n.Description != "" {
			return fmt.Sprintf("%s (%s): %s", n.Name, strings.ToLower(string(n.Type)), n.Description)
		}
		return fmt.Sprintf("%s (%s)", n.Name, strings.ToLower(string(n.Type)))
	}
}
