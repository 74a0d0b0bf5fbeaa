package resumes

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"resumind/internal/raster"
	"resumind/internal/shared/telemetry"
)

// BlobKind selects which stored file of a record to stream.
type BlobKind string

const (
	BlobResume BlobKind = "resume"
	BlobImage  BlobKind = "image"
)

// maxPreviewBytes bounds how much of an image is copied into a preview URL.
const maxPreviewBytes = 32 << 20

// Detail is a record plus the URLs a client needs to display it.
type Detail struct {
	Record     ResumeRecord    `json:"record"`
	Feedback   *FeedbackReport `json:"feedback"`
	ResumeURL  string          `json:"resumeUrl"`
	ImageURL   string          `json:"imageUrl"`
	PreviewURL string          `json:"previewUrl,omitempty"`
}

// Get reads one record. Absent and unparseable records are ErrNotFound.
func (s *Service) Get(ctx context.Context, userID, id string) (ResumeRecord, error) {
	if !validID(id) {
		return ResumeRecord{}, ErrNotFound
	}
	value, found, err := safeGet(ctx, s.records(userID), Key(id))
	if err != nil {
		return ResumeRecord{}, err
	}
	if !found {
		return ResumeRecord{}, ErrNotFound
	}
	rec, err := parseRecord(value)
	if err != nil {
		telemetry.Warn("resume.detail.unparseable", map[string]any{"resume_id": id, "err": err})
		return ResumeRecord{}, ErrNotFound
	}
	return rec, nil
}

// Detail loads a record and, when a preview registry is configured,
// registers its image as a display URL that supersedes the previous one.
func (s *Service) Detail(ctx context.Context, userID, id string) (Detail, error) {
	rec, err := s.Get(ctx, userID, id)
	if err != nil {
		return Detail{}, err
	}
	base := DetailPath(rec.ID)
	d := Detail{
		Record:    rec,
		Feedback:  rec.Feedback,
		ResumeURL: base + "/resume",
		ImageURL:  base + "/image",
	}
	if s.Previews != nil && rec.ImagePath != "" {
		if preview, err := s.preview(ctx, userID, rec); err == nil {
			d.PreviewURL = preview
		} else {
			telemetry.Warn("resume.preview.failed", map[string]any{"resume_id": rec.ID, "err": err})
		}
	}
	return d, nil
}

func (s *Service) preview(ctx context.Context, userID string, rec ResumeRecord) (string, error) {
	body, err := s.Objects.Open(ctx, rec.ImagePath)
	if err != nil {
		return "", err
	}
	defer body.Close()
	data, err := io.ReadAll(io.LimitReader(body, maxPreviewBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxPreviewBytes {
		return "", fmt.Errorf("image %s too large for preview", rec.ImagePath)
	}
	return s.Previews.Create(userID, "detail", raster.PNGContentType, data), nil
}

// OpenBlob streams the stored PDF or image of a record.
func (s *Service) OpenBlob(ctx context.Context, userID, id string, kind BlobKind) (io.ReadCloser, string, error) {
	rec, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, "", err
	}
	path, contentType := rec.ResumePath, "application/pdf"
	if kind == BlobImage {
		path, contentType = rec.ImagePath, raster.PNGContentType
	}
	if path == "" {
		return nil, "", ErrNotFound
	}
	body, err := s.Objects.Open(ctx, path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s blob %s: %w", kind, url.PathEscape(id), err)
	}
	return body, contentType, nil
}
