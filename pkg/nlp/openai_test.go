package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnswerCleanJSON(t *testing.T) {
	answer, err := ParseAnswer(`{"answer": "Jane Doe is the expert.", "cited_node_ids": ["expert:e1"]}`)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe is the expert.", answer.Text)
	assert.Equal(t, []string{"expert:e1"}, answer.CitedNodeIDs)
}

func TestParseAnswerFencedJSON(t *testing.T) {
	content := "```json\n{\"answer\": \"Jane Doe.\", \"cited_node_ids\": []}\n```"
	answer, err := ParseAnswer(content)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe.", answer.Text)
}

func TestParseAnswerRepairsTruncatedJSON(t *testing.T) {
	// Models under a token limit often cut the closing brace.
	answer, err := ParseAnswer(`{"answer": "Jane Doe knows immunology."`)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe knows immunology.", answer.Text)
}

func TestParseAnswerPlainTextFallback(t *testing.T) {
	answer, err := ParseAnswer("Jane Doe appears to be the strongest match.")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe appears to be the strongest match.", answer.Text)
	assert.Empty(t, answer.CitedNodeIDs)
}

func TestParseAnswerEmpty(t *testing.T) {
	_, err := ParseAnswer("   ")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
