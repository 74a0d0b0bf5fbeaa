package resumes

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("resume not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrConfirmationRequired = errors.New("explicit confirmation required")

	errMalformedRecord = errors.New("malformed record")
	errMissingID       = errors.New("record has no id")
)

// Kind classifies a pipeline failure.
type Kind string

const (
	ValidationError   Kind = "validation_error"
	UploadError       Kind = "upload_error"
	ConversionError   Kind = "conversion_error"
	PersistenceError  Kind = "persistence_error"
	InferenceError    Kind = "inference_error"
	ListingParseError Kind = "listing_parse_error"
	PurgeError        Kind = "purge_error"
)

// Fatal reports whether a failure of this kind halts a submission.
func (k Kind) Fatal() bool {
	switch k {
	case PersistenceError, ListingParseError, PurgeError:
		return false
	default:
		return true
	}
}

// StageError is the typed outcome of a failed stage. Message is the
// user-facing status text.
type StageError struct {
	Kind    Kind
	Stage   Stage
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s at %s: %s", e.Kind, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s at %s: %s: %v", e.Kind, e.Stage, e.Message, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// KindOf returns the kind of err when it is a *StageError.
func KindOf(err error) (Kind, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}
