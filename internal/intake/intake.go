package intake

import (
	"errors"
	"fmt"
	"math"
	"mime"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

const (
	// MaxSize is the exclusive upper bound on an accepted file (20 MiB).
	MaxSize = 20 << 20

	PDFContentType = "application/pdf"
	pdfExtension   = ".pdf"
)

var (
	ErrNoFile          = errors.New("no file selected")
	ErrUnsupportedType = errors.New("only PDF files are accepted")
	ErrTooLarge        = errors.New("file must be smaller than 20 MB")
)

// File is a candidate document held in memory.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the length of the file contents in bytes.
func (f *File) Size() int64 {
	if f == nil {
		return 0
	}
	return int64(len(f.Data))
}

// RejectionError explains why a file was not accepted.
type RejectionError struct {
	Name   string
	Reason error
}

func (e *RejectionError) Error() string {
	if e.Name == "" {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Reason)
}

func (e *RejectionError) Unwrap() error { return e.Reason }

// Validate checks the type and size constraints. A file is a PDF when either
// its declared media type or its extension says so.
func Validate(f *File) error {
	if f == nil {
		return ErrNoFile
	}
	if !isPDF(f) {
		return &RejectionError{Name: f.Name, Reason: ErrUnsupportedType}
	}
	if f.Size() >= MaxSize {
		return &RejectionError{Name: f.Name, Reason: ErrTooLarge}
	}
	return nil
}

func isPDF(f *File) bool {
	if mediaType, _, err := mime.ParseMediaType(f.ContentType); err == nil && mediaType == PDFContentType {
		return true
	}
	return strings.EqualFold(filepath.Ext(f.Name), pdfExtension)
}

// Summary is what a caller shows for an accepted file.
type Summary struct {
	Name string `json:"name"`
	Size string `json:"size"`
}

// Describe returns the display name and human-readable size of f.
func Describe(f *File) Summary {
	if f == nil {
		return Summary{Size: FormatSize(0)}
	}
	return Summary{Name: f.Name, Size: FormatSize(float64(f.Size()))}
}

// Selection holds at most one accepted file.
type Selection struct {
	mu      sync.Mutex
	current *File
}

// Select validates f and, on acceptance, replaces the current selection.
// A rejected file leaves the previous selection in place.
func (s *Selection) Select(f *File) (Summary, error) {
	if err := Validate(f); err != nil {
		return Summary{}, err
	}
	s.mu.Lock()
	s.current = f
	s.mu.Unlock()
	return Describe(f), nil
}

// Clear drops the current selection.
func (s *Selection) Clear() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// Current returns the selected file or nil.
func (s *Selection) Current() *File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// FormatSize renders a byte count as KB below 1024 KB, then MB, then GB.
// Each tier prints 0 decimals at >=100, 1 at >=10 and 2 otherwise.
// Negative and non-finite sizes render as "0 KB".
func FormatSize(bytes float64) string {
	if math.IsNaN(bytes) || math.IsInf(bytes, 0) || bytes < 0 {
		return "0 KB"
	}

	kb := bytes / 1024
	if kb < 1024 {
		return formatTier(kb, "KB")
	}
	mb := kb / 1024
	if mb < 1024 {
		return formatTier(mb, "MB")
	}
	return formatTier(mb/1024, "GB")
}

func formatTier(v float64, unit string) string {
	decimals := 2
	switch {
	case v >= 100:
		decimals = 0
	case v >= 10:
		decimals = 1
	}
	return strconv.FormatFloat(v, 'f', decimals, 64) + " " + unit
}
