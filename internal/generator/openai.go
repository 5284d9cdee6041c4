package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/caseforge/engine/internal/models"
)

// Result is a successful content generation.
type Result struct {
	Content    string
	TokensUsed int
	Cost       float64
}

// ContentGenerator produces test-case content for an issue. Each call may
// fail; the caller wraps it in a RetryPolicy.
type ContentGenerator interface {
	Generate(ctx context.Context, issue *Issue, mode models.GenerationMode) (*Result, error)
}

type openaiGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator builds a ContentGenerator backed by the OpenAI chat
// completion API.
func NewOpenAIGenerator(apiKey, model string) ContentGenerator {
	return &openaiGenerator{client: openai.NewClient(apiKey), model: model}
}

func (g *openaiGenerator) Generate(ctx context.Context, issue *Issue, mode models.GenerationMode) (*Result, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(issue, mode)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, fmt.Errorf("chat completion returned empty content")
	}

	return &Result{
		Content:    content,
		TokensUsed: resp.Usage.TotalTokens,
		Cost:       estimateCost(g.model, resp.Usage),
	}, nil
}

// estimateCost converts token usage to USD using a coarse per-model rate.
// Unknown models report zero rather than guessing.
func estimateCost(model string, usage openai.Usage) float64 {
	type rate struct{ in, out float64 } // USD per 1M tokens
	rates := map[string]rate{
		"gpt-4o":      {in: 2.50, out: 10.00},
		"gpt-4o-mini": {in: 0.15, out: 0.60},
	}
	r, ok := rates[model]
	if !ok {
		return 0
	}
	return (float64(usage.PromptTokens)*r.in + float64(usage.CompletionTokens)*r.out) / 1e6
}
