package resumes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// KeyPrefix prefixes every record key in the KV store.
	KeyPrefix = "resume:"
	// ListPattern matches every record key.
	ListPattern = KeyPrefix + "*"
)

// Key returns the KV key for a record id.
func Key(id string) string { return KeyPrefix + id }

// ResumeRecord is the persisted unit of one submission.
type ResumeRecord struct {
	ID             string          `json:"id"`
	ResumePath     string          `json:"resumePath"`
	ImagePath      string          `json:"imagePath"`
	CompanyName    string          `json:"companyName"`
	JobTitle       string          `json:"jobTitle"`
	JobDescription string          `json:"jobDescription"`
	Feedback       *FeedbackReport `json:"feedback"`
}

// Key returns the KV key the record is stored under.
func (r ResumeRecord) Key() string { return Key(r.ID) }

// HasFeedback reports whether analysis has been attached.
func (r ResumeRecord) HasFeedback() bool { return r.Feedback != nil }

// recordJSON is the wire form. Feedback is written as "" until analysis
// completes and accepted as "", null or an object when read.
type recordJSON struct {
	ID             json.RawMessage `json:"id"`
	ResumePath     string          `json:"resumePath"`
	ImagePath      string          `json:"imagePath"`
	CompanyName    string          `json:"companyName"`
	JobTitle       string          `json:"jobTitle"`
	JobDescription string          `json:"jobDescription"`
	Feedback       json.RawMessage `json:"feedback"`
}

func (r ResumeRecord) MarshalJSON() ([]byte, error) {
	id, err := json.Marshal(r.ID)
	if err != nil {
		return nil, err
	}
	feedback := json.RawMessage(`""`)
	if r.Feedback != nil {
		if feedback, err = json.Marshal(r.Feedback); err != nil {
			return nil, err
		}
	}
	return json.Marshal(recordJSON{
		ID:             id,
		ResumePath:     r.ResumePath,
		ImagePath:      r.ImagePath,
		CompanyName:    r.CompanyName,
		JobTitle:       r.JobTitle,
		JobDescription: r.JobDescription,
		Feedback:       feedback,
	})
}

func (r *ResumeRecord) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := decodeID(raw.ID)
	if err != nil {
		return err
	}
	feedback, err := decodeFeedback(raw.Feedback)
	if err != nil {
		return err
	}
	*r = ResumeRecord{
		ID:             id,
		ResumePath:     raw.ResumePath,
		ImagePath:      raw.ImagePath,
		CompanyName:    raw.CompanyName,
		JobTitle:       raw.JobTitle,
		JobDescription: raw.JobDescription,
		Feedback:       feedback,
	}
	return nil
}

// decodeID accepts a string or a number; anything else is treated as absent.
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case 'f', 't', '[', '{':
		return "", nil
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("id: %w", err)
		}
		if f, err := n.Float64(); err == nil && f == 0 {
			return "", nil
		}
		return n.String(), nil
	}
}

func decodeFeedback(raw json.RawMessage) (*FeedbackReport, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		// Some writers store the report as a JSON string.
		return decodeFeedback(json.RawMessage(s))
	}
	var report FeedbackReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("feedback: %w", err)
	}
	return &report, nil
}

// FeedbackReport is the structured critique returned by the model.
type FeedbackReport struct {
	OverallScore float64 `json:"overallScore"`
	ATS          Section `json:"ATS"`
	ToneAndStyle Section `json:"toneAndStyle"`
	Content      Section `json:"content"`
	Structure    Section `json:"structure"`
	Skills       Section `json:"skills"`
}

// Section is one scored area of the report.
type Section struct {
	Score float64 `json:"score"`
	Tips  []Tip   `json:"tips"`
}

// Tip types.
const (
	TipGood    = "good"
	TipImprove = "improve"
)

// Tip is a single piece of advice within a section.
type Tip struct {
	Type        string `json:"type"`
	Tip         string `json:"tip"`
	Explanation string `json:"explanation,omitempty"`
}

// ListEntry is a record together with the key it was found under.
// StoreKey is empty when the listing did not reveal it.
type ListEntry struct {
	Record   ResumeRecord `json:"record"`
	StoreKey string       `json:"storeKey,omitempty"`
}

// parseRecord decodes a stored value; records without an id are rejected.
func parseRecord(value string) (ResumeRecord, error) {
	var rec ResumeRecord
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return ResumeRecord{}, fmt.Errorf("%w: %v", errMalformedRecord, err)
	}
	if strings.TrimSpace(rec.ID) == "" {
		return ResumeRecord{}, errMissingID
	}
	return rec, nil
}

// validID reports whether id can be embedded in a key without widening a pattern.
func validID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	return !strings.ContainsAny(id, "*?[]\\/ ")
}
