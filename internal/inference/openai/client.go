package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"resumind/internal/inference"
	"resumind/internal/shared/telemetry"
)

var apiURL = "https://api.openai.com/v1/chat/completions"

// Client implements inference.Service using OpenAI Chat Completions with
// the document attached as a file content part.
type Client struct {
	apiKey     string
	model      string
	docs       inference.DocumentReader
	httpClient *http.Client
}

// NewClient constructs a new OpenAI client reading documents from docs.
func NewClient(apiKey, model string, docs inference.DocumentReader) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if docs == nil {
		return nil, fmt.Errorf("document reader is required")
	}
	timeout := 120 * time.Second
	if raw := strings.TrimSpace(os.Getenv("OPENAI_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return &Client{
		apiKey: apiKey,
		model:  model,
		docs:   docs,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type string    `json:"type"`
	Text string    `json:"text,omitempty"`
	File *filePart `json:"file,omitempty"`
}

type filePart struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float32        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string            `json:"role"`
			Content inference.Content `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// errTemperatureUnsupported marks a rejection of temperature=0 by the model.
var errTemperatureUnsupported = errors.New("temperature unsupported")

// Feedback sends the document and instructions and returns the first choice.
// A model that rejects temperature=0 is retried once without it.
func (c *Client) Feedback(ctx context.Context, doc inference.DocumentRef, instructions string) (*inference.Response, error) {
	data, err := inference.ReadDocument(ctx, c.docs, doc)
	if err != nil {
		return nil, err
	}
	messages := []chatMessage{{
		Role: "user",
		Content: []contentPart{
			{
				Type: "file",
				File: &filePart{
					Filename: fileName(doc),
					FileData: "data:" + doc.MediaType() + ";base64," + base64.StdEncoding.EncodeToString(data),
				},
			},
			{Type: "text", Text: instructions},
		},
	}}

	withTemp := !isGPT5(c.model)
	resp, err := c.complete(ctx, messages, withTemp)
	if errors.Is(err, errTemperatureUnsupported) && withTemp {
		telemetry.Warn("inference.openai.temperature_retry", map[string]any{"model": c.model})
		resp, err = c.complete(ctx, messages, false)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) complete(ctx context.Context, messages []chatMessage, withTemp bool) (*inference.Response, error) {
	reqBody := chatRequest{
		Model:          c.model,
		Messages:       messages,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	if withTemp {
		temp := float32(0)
		reqBody.Temperature = &temp
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return nil, fmt.Errorf("openai request timeout: %w", err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("openai http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return nil, fmt.Errorf("openai response parse: %w", err)
	}
	if parsed.Error != nil {
		if strings.Contains(parsed.Error.Message, "temperature") {
			return nil, fmt.Errorf("%w: %s", errTemperatureUnsupported, parsed.Error.Message)
		}
		return nil, fmt.Errorf("openai http status %d: %s (%s)", resp.StatusCode, parsed.Error.Message, parsed.Error.Type)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("openai http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai response missing choices")
	}
	logUsage(c.model, parsed.Usage)

	out := &inference.Response{Message: inference.Message{Content: parsed.Choices[0].Message.Content}}
	if out.Text() == "" {
		return nil, inference.ErrEmptyResponse
	}
	return out, nil
}

func logUsage(model string, usage *struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}) {
	fields := map[string]any{"model": model}
	if usage != nil {
		fields["prompt_tokens"] = usage.PromptTokens
		fields["completion_tokens"] = usage.CompletionTokens
		fields["total_tokens"] = usage.TotalTokens
	}
	telemetry.Info("inference.openai.response", fields)
}

func fileName(doc inference.DocumentRef) string {
	if name := strings.TrimSpace(doc.Name); name != "" {
		return name
	}
	return "resume.pdf"
}

func isGPT5(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-5")
}

var _ inference.Service = (*Client)(nil)
