package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxDocumentBytes bounds how much of a stored document is sent to a provider.
const maxDocumentBytes = 20 << 20

var (
	// ErrNotConfigured is returned by the placeholder service.
	ErrNotConfigured = errors.New("inference provider not configured")
	// ErrEmptyResponse means the provider answered without usable content.
	ErrEmptyResponse = errors.New("inference response empty")
)

// DocumentRef points at an uploaded document in the object store.
type DocumentRef struct {
	Path        string
	Name        string
	ContentType string
}

// Service produces free-text feedback for a document and instructions.
type Service interface {
	Feedback(ctx context.Context, doc DocumentRef, instructions string) (*Response, error)
}

// DocumentReader opens stored documents by path.
type DocumentReader interface {
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}

// Response mirrors the {message:{content}} envelope.
type Response struct {
	Message Message `json:"message"`
}

type Message struct {
	Content Content `json:"content"`
}

// Part is one element of an array-shaped content.
type Part struct {
	Text string `json:"text"`
}

// Content is either a plain string or an ordered list of parts.
type Content struct {
	Text  string
	Parts []Part
}

// TextContent builds string-shaped content.
func TextContent(s string) Content { return Content{Text: s} }

// PartsContent builds array-shaped content.
func PartsContent(parts ...Part) Content { return Content{Parts: parts} }

// IsParts reports whether the content is array-shaped.
func (c Content) IsParts() bool { return c.Parts != nil }

// String returns the plain string, or the text of the first part.
func (c Content) String() string {
	if c.Parts == nil {
		return c.Text
	}
	if len(c.Parts) == 0 {
		return ""
	}
	return c.Parts[0].Text
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*c = Content{}
		return nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = Content{Text: s}
		return nil
	case trimmed[0] == '[':
		parts := []Part{}
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return err
		}
		*c = Content{Parts: parts}
		return nil
	default:
		return fmt.Errorf("content: unexpected json %s", truncate(string(trimmed), 32))
	}
}

// Text returns the response text or "" when resp is nil.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.Message.Content.String())
}

// Placeholder is used when no provider is configured.
type Placeholder struct{}

func (Placeholder) Feedback(context.Context, DocumentRef, string) (*Response, error) {
	return nil, ErrNotConfigured
}

// ReadDocument loads a stored document, refusing anything past the size ceiling.
func ReadDocument(ctx context.Context, r DocumentReader, doc DocumentRef) ([]byte, error) {
	if r == nil {
		return nil, errors.New("document reader is nil")
	}
	if strings.TrimSpace(doc.Path) == "" {
		return nil, errors.New("document path is required")
	}
	body, err := r.Open(ctx, doc.Path)
	if err != nil {
		return nil, fmt.Errorf("open document %s: %w", doc.Path, err)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", doc.Path, err)
	}
	if len(data) > maxDocumentBytes {
		return nil, fmt.Errorf("document %s exceeds %d bytes", doc.Path, maxDocumentBytes)
	}
	return data, nil
}

// MediaType returns the declared media type or application/pdf.
func (d DocumentRef) MediaType() string {
	if ct := strings.TrimSpace(d.ContentType); ct != "" {
		return ct
	}
	return "application/pdf"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
