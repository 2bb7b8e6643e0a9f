// Package gemini implements llm.Generator on top of the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-importer/internal/llm"
	"google.golang.org/genai"
)

// DefaultModel is used when a request does not name a model.
const DefaultModel = "gemini-2.5-flash"

// Config holds the credentials for the Gemini API.
type Config struct {
	APIKey string
	Model  string
}

// Client is the Gemini-backed generator.
type Client struct {
	client *genai.Client
	model  string
}

// New creates a Gemini client. An empty API key falls back to the SDK's
// environment-based configuration (GOOGLE_API_KEY / Vertex AI settings).
func New(ctx context.Context, cfg Config) (*Client, error) {
	cc := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}
	if cfg.APIKey != "" {
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini.New: create genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: client, model: model}, nil
}

// Generate implements llm.Generator.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	temperature := req.Temperature
	config := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), config)
	if err != nil {
		return "", fmt.Errorf("gemini.Generate: generate content: %w", translateError(err))
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini.Generate: empty response from model")
	}
	return text, nil
}

// translateError exposes the API status code so rate limiting can be detected.
func translateError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &llm.StatusError{Code: apiErr.Code, Message: apiErr.Message}
	}
	return err
}

var _ llm.Generator = (*Client)(nil)
