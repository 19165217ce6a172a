package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Default model names. text-embedding-004 emits 768-dimension vectors,
// which the database schema is sized for.
const (
	DefaultEmbeddingModel = "text-embedding-004"
	DefaultCaptionModel   = "gemini-1.5-flash"
)

// Dimensions is the vector width of the default embedding model.
const Dimensions = 768

// GeminiClient implements Client over the Gemini API.
type GeminiClient struct {
	client       *genai.Client
	embedModel   string
	captionModel string
}

// NewGeminiClient creates a Gemini-backed client. Empty model names fall
// back to the defaults.
func NewGeminiClient(ctx context.Context, apiKey, embedModel, captionModel string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if embedModel == "" {
		embedModel = DefaultEmbeddingModel
	}
	if captionModel == "" {
		captionModel = DefaultCaptionModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:       client,
		embedModel:   embedModel,
		captionModel: captionModel,
	}, nil
}

// EmbedBatch embeds all texts in one request, preserving order.
func (c *GeminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := c.client.EmbeddingModel(c.embedModel)

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to embed batch: %w", err)
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}

// Caption generates an image description. With image data the call goes to
// the vision-capable caption model; without it the prompt alone is sent.
func (c *GeminiClient) Caption(ctx context.Context, prompt string, image []byte, format string) (string, error) {
	model := c.client.GenerativeModel(c.captionModel)
	model.SetTemperature(0.1) // Low temperature for consistent output

	parts := []genai.Part{genai.Text(prompt)}
	if len(image) > 0 {
		if format == "" {
			format = "jpeg"
		}
		parts = append(parts, genai.ImageData(format, image))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate caption: %w", err)
	}

	return extractTextFromResponse(resp)
}

// ModelName returns the embedding model identifier.
func (c *GeminiClient) ModelName() string {
	return c.embedModel
}

// Close releases resources held by the client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// extractTextFromResponse extracts text from a Gemini API response.
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
