package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalKey(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "Machine Learning", "machine learning"},
		{"collapses inner whitespace", "machine    learning", "machine learning"},
		{"trims edges", "  ML \t", "ml"},
		{"mixed whitespace", "Machine\tLearning\nSystems", "machine learning systems"},
		{"already canonical", "immunology", "immunology"},
		{"empty", "", ""},
		{"whitespace only", "   \t\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalKey(tt.input))
		})
	}
}

func TestNodeIDDeterministic(t *testing.T) {
	// Spelling variants of the same natural key converge on one ID.
	variants := []string{"Machine Learning", "machine learning", "  machine   LEARNING "}
	want := NodeID(SkillNodeType, variants[0])
	for _, v := range variants {
		assert.Equal(t, want, NodeID(SkillNodeType, v))
	}

	// Same key under a different type is a different node.
	assert.NotEqual(t, NodeID(SkillNodeType, "Immunology"), NodeID(TopicNodeType, "Immunology"))
}

func TestNodeValidate(t *testing.T) {
	node := &Node{
		NodeID: NodeID(ExpertNodeType, "Jane Doe"),
		Type:   ExpertNodeType,
		Name:   "Jane Doe",
	}
	require.NoError(t, node.Validate())

	missingID := *node
	missingID.NodeID = ""
	assert.ErrorIs(t, missingID.Validate(), ErrEmptyNodeID)

	missingType := *node
	missingType.Type = ""
	assert.ErrorIs(t, missingType.Validate(), ErrEmptyNodeType)
}

func TestEmbeddingText(t *testing.T) {
	skill := &Node{Type: SkillNodeType, Name: "Immunology"}
	assert.Equal(t, "Immunology (skill)", skill.EmbeddingText())

	expert := &Node{Type: ExpertNodeType, Name: "Jane Doe", Description: "Vaccine researcher"}
	assert.Equal(t, "Jane Doe: Vaccine researcher", expert.EmbeddingText())

	bare := &Node{Type: ExpertNodeType, Name: "Jane Doe"}
	assert.Equal(t, "Jane Doe", bare.EmbeddingText())
}

func TestEdgeIdentity(t *testing.T) {
	a := &Edge{SourceID: "expert:jane doe", Type: HasSkillEdgeType, TargetID: "skill:immunology"}
	b := &Edge{SourceID: "expert:jane doe", Type: HasSkillEdgeType, TargetID: "skill:immunology", Weight: 2}
	assert.Equal(t, a.Identity(), b.Identity(), "weight does not participate in identity")

	c := &Edge{SourceID: "expert:jane doe", Type: WorksInEdgeType, TargetID: "skill:immunology"}
	assert.NotEqual(t, a.Identity(), c.Identity())
}

func TestSourceRecordValidate(t *testing.T) {
	rec := &SourceRecord{ID: "e1", Name: "Jane Doe"}
	require.NoError(t, rec.Validate())

	noID := &SourceRecord{Name: "x"}
	assert.ErrorIs(t, noID.Validate(), ErrEmptyRecordID)
	noName := &SourceRecord{ID: "e1"}
	assert.ErrorIs(t, noName.Validate(), ErrEmptyName)
}
