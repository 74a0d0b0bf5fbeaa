package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"

	"resumind/internal/inference"
	"resumind/internal/shared/telemetry"
)

const defaultModel = "gemini-2.5-flash"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client implements inference.Service with the Gemini API, sending the
// document inline next to the instructions.
type Client struct {
	models    contentGenerator
	modelName string
	docs      inference.DocumentReader
}

// NewClient creates a client configured for the Gemini API backend.
func NewClient(ctx context.Context, apiKey, model string, docs inference.DocumentReader) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if docs == nil {
		return nil, errors.New("document reader is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newClient(client.Models, model, docs), nil
}

func newClient(models contentGenerator, model string, docs inference.DocumentReader) *Client {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	return &Client{models: models, modelName: model, docs: docs}
}

// Feedback returns every non-empty text part of the first candidate as
// array-shaped content.
func (c *Client) Feedback(ctx context.Context, doc inference.DocumentRef, instructions string) (*inference.Response, error) {
	if c == nil || c.models == nil {
		return nil, errors.New("gemini client is not initialized")
	}

	ctx, span := otel.Tracer("resumind.inference.gemini").Start(ctx, "gemini.feedback")
	defer span.End()
	span.SetAttributes(attribute.String("model", c.modelName))

	data, err := inference.ReadDocument(ctx, c.docs, doc)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return nil, err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, doc.MediaType()),
			genai.NewPartFromText(instructions),
		}, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	resp, err := c.models.GenerateContent(ctx, c.modelName, contents, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return nil, fmt.Errorf("generate content: %w", err)
	}

	parts := collectParts(resp)
	if len(parts) == 0 {
		span.SetAttributes(attribute.Bool("success", false))
		return nil, inference.ErrEmptyResponse
	}
	span.SetAttributes(attribute.Bool("success", true), attribute.Int("parts", len(parts)))
	telemetry.Info("inference.gemini.response", map[string]any{
		"model": c.modelName,
		"parts": len(parts),
	})
	return &inference.Response{Message: inference.Message{Content: inference.PartsContent(parts...)}}, nil
}

// collectParts joins the text parts of the first candidate that has any.
// Parts are concatenated as-is since the model may split one JSON document
// mid-token.
func collectParts(resp *genai.GenerateContentResponse) []inference.Part {
	if resp == nil {
		return nil
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		var builder strings.Builder
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			builder.WriteString(part.Text)
		}
		if text := strings.TrimSpace(builder.String()); text != "" {
			return []inference.Part{{Text: text}}
		}
	}
	return nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.modelName
}

var _ inference.Service = (*Client)(nil)
