// Package llm wraps the Gemini SDK behind a small client interface so the
// moderation agents can be tested without network access.
package llm

import (
	"context"

	"google.golang.org/genai"
)

// Client is the surface of the Gemini SDK this module uses.
type Client interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenaiClient wraps the official SDK client to satisfy Client.
type GenaiClient struct {
	client *genai.Client
}

// NewGenaiClient creates a GenaiClient from an SDK client.
func NewGenaiClient(client *genai.Client) *GenaiClient {
	return &GenaiClient{client: client}
}

// GenerateContent calls the SDK's GenerateContent method.
func (c *GenaiClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return c.client.Models.GenerateContent(ctx, model, contents, config)
}
