package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	openai "github.com/sashabaranov/go-openai"

	"github.com/soundprediction/expertgraph/pkg/types"
)

const synthesisSystemPrompt = `You are an assistant that answers questions about organizational expertise.
You are given a question and a list of evidence items from a knowledge graph of experts, skills, topics and research works.
Answer the question using only the evidence. Cite experts by name. If the evidence does not answer the question, say so.
Respond with a JSON object: {"answer": "<natural language answer>", "cited_node_ids": ["<node_id>", ...]}`

// OpenAIConfig holds settings for the OpenAI-compatible synthesis client.
type OpenAIConfig struct {
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
}

// OpenAIClient implements Client against an OpenAI-compatible chat endpoint.
type OpenAIClient struct {
	client *openai.Client
	config *OpenAIConfig
}

// NewOpenAIClient creates an answer-synthesis client.
func NewOpenAIClient(config *OpenAIConfig) (*OpenAIClient, error) {
	if config == nil || config.APIKey == "" {
		return nil, fmt.Errorf("synthesis client requires an API key")
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Synthesize composes the final answer from the ranked evidence list.
func (c *OpenAIClient) Synthesize(ctx context.Context, query string, evidence []types.Evidence) (*Answer, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.config.Model,
		MaxTokens: c.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: synthesisSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildSynthesisPrompt(query, evidence)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyResponse
	}

	return ParseAnswer(resp.Choices[0].Message.Content)
}

// Close is a no-op; the HTTP client holds no persistent resources.
func (c *OpenAIClient) Close() error { return nil }

// buildSynthesisPrompt renders the evidence list for the model. Scores stay
// internal; the model only sees rank order and relationship context.
func buildSynthesisPrompt(query string, evidence []types.Evidence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nEvidence:\n", query)
	for i, ev := range evidence {
		fmt.Fprintf(&b, "%d. [%s] %s (node_id: %s)", i+1, ev.Type, ev.Name, ev.NodeID)
		if len(ev.Path) > 0 {
			names := make([]string, len(ev.Path))
			for j, t := range ev.Path {
				names[j] = string(t)
			}
			fmt.Fprintf(&b, " via %s", strings.Join(names, " -> "))
		}
		b.WriteString("\n")
		if ev.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", ev.Snippet)
		}
	}
	return b.String()
}

// ParseAnswer decodes the model output into an Answer. Model JSON is often
// slightly malformed (markdown fences, trailing commas), so a jsonrepair
// pass is applied before giving up; if the content cannot be interpreted as
// JSON at all, the raw text becomes the answer.
func ParseAnswer(content string) (*Answer, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var answer Answer
	if err := json.Unmarshal([]byte(trimmed), &answer); err == nil && answer.Text != "" {
		return &answer, nil
	}

	if repaired, err := jsonrepair.JSONRepair(trimmed); err == nil {
		if err := json.Unmarshal([]byte(repaired), &answer); err == nil && answer.Text != "" {
			return &answer, nil
		}
	}

	if trimmed == "" {
		return nil, ErrEmptyResponse
	}
	return &Answer{Text: trimmed}, nil
}
