package object

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"resumind/internal/shared/util"
)

// ObjectStore holds uploaded resumes and their rendered previews.
// Open on a missing key returns an error matching fs.ErrNotExist; Delete on
// a missing key succeeds.
type ObjectStore interface {
	Save(ctx context.Context, userId string, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	Delete(ctx context.Context, storageKey string) error
}

// NewKey returns "<hashed user>/<random>_<sanitized name>" for a new object.
func NewKey(userID, fileName string) (string, error) {
	name, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", fmt.Errorf("sanitize file name: %w", err)
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return path.Join(util.HashUserKey(userID), id+"_"+name), nil
}
