package s3

import (
	"context"
	"errors"
	"strings"
	"testing"

	"resumind/internal/shared/util"
)

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "user/cv.pdf", want: "user/cv.pdf"},
		{name: "prefix", prefix: normalizePrefix(" /resumes/ "), key: "user/cv.png", want: "resumes/user/cv.png"},
		{name: "key slashes", prefix: "resumes", key: "/user/cv.pdf", want: "resumes/user/cv.pdf"},
		{name: "empty key", prefix: "resumes", key: "", want: "resumes"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

func TestSaveRejectsTraversalBeforeUpload(t *testing.T) {
	s := &Store{bucket: "b"}
	_, _, _, err := s.Save(context.Background(), "user", "../cv.pdf", strings.NewReader("x"))
	if !errors.Is(err, util.ErrInvalidFileName) {
		t.Fatalf("expected ErrInvalidFileName, got %v", err)
	}
}

func TestCancelledContextSkipsClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &Store{bucket: "b"}

	if _, err := s.Open(ctx, "user/cv.pdf"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Open: expected context.Canceled, got %v", err)
	}
	if err := s.Delete(ctx, "user/cv.pdf"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Delete: expected context.Canceled, got %v", err)
	}
}
