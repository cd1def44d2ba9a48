// Package gemini finds recurring patterns with the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"cadenza/internal/patterns"
)

const DefaultModelName = "gemini-2.5-flash"

// generator is the slice of *genai.Models used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Collaborator struct {
	models generator
	model  string
}

var _ patterns.Collaborator = (*Collaborator)(nil)

// New creates a Gemini-backed collaborator. An empty model selects
// DefaultModelName.
func New(ctx context.Context, apiKey, model string) (*Collaborator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newWithGenerator(client.Models, model), nil
}

func newWithGenerator(g generator, model string) *Collaborator {
	if model == "" {
		model = DefaultModelName
	}
	return &Collaborator{models: g, model: model}
}

func (c *Collaborator) DetectPatterns(ctx context.Context, batch []patterns.TransactionInput) ([]patterns.Pattern, error) {
	prompt, err := patterns.UserPrompt(batch)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: patterns.SystemPrompt}}},
		Temperature:       genai.Ptr[float32](0.1),
		ResponseMIMEType:  "application/json",
	}

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	found, err := patterns.DecodeResponse(resp.Text())
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "Gemini returned patterns", "model", c.model, "batch_size", len(batch), "patterns", len(found))
	return found, nil
}
