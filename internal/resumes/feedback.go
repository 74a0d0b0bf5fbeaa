package resumes

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var errEmptyFeedback = errors.New("empty feedback")

const feedbackSchema = `{
  "type": "object",
  "required": ["ATS"],
  "properties": {
    "overallScore": {"type": "number"},
    "ATS": {"$ref": "#/definitions/section"},
    "toneAndStyle": {"$ref": "#/definitions/section"},
    "content": {"$ref": "#/definitions/section"},
    "structure": {"$ref": "#/definitions/section"},
    "skills": {"$ref": "#/definitions/section"}
  },
  "definitions": {
    "section": {
      "type": "object",
      "required": ["score", "tips"],
      "properties": {
        "score": {"type": "number"},
        "tips": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["type", "tip"],
            "properties": {
              "type": {"type": "string"},
              "tip": {"type": "string"},
              "explanation": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`

var feedbackSchemaLoader = gojsonschema.NewStringLoader(feedbackSchema)

// ParseFeedback decodes model output into a report. A surrounding markdown
// code fence is tolerated.
func ParseFeedback(text string) (*FeedbackReport, error) {
	body := stripCodeFence(text)
	if body == "" {
		return nil, errEmptyFeedback
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("feedback json: %w", err)
	}
	res, err := gojsonschema.Validate(feedbackSchemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("feedback schema: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("feedback schema validation failed: %s", strings.Join(msgs, "; "))
	}

	var report FeedbackReport
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return nil, fmt.Errorf("feedback decode: %w", err)
	}
	return &report, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
