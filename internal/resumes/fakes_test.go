package resumes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"io/fs"
	"strings"
	"sync"

	"resumind/internal/inference"
	"resumind/internal/intake"
	"resumind/internal/raster"
	"resumind/internal/shared/storage/kv"
	"resumind/internal/shared/storage/kv/memory"
)

type fakeObjects struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	saveErr   map[string]error
	deleteErr map[string]error
	deleted   []string
	n         int
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{
		blobs:     map[string][]byte{},
		saveErr:   map[string]error{},
		deleteErr: map[string]error{},
	}
}

func (f *fakeObjects) Save(_ context.Context, userID, fileName string, r io.Reader) (string, int64, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.saveErr[fileName]; ok {
		return "", 0, "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, "", err
	}
	f.n++
	key := fmt.Sprintf("%s/%d_%s", userID, f.n, fileName)
	f.blobs[key] = data
	return key, int64(len(data)), "", nil
}

func (f *fakeObjects) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[key]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	if err, ok := f.deleteErr[key]; ok {
		return err
	}
	delete(f.blobs, key)
	return nil
}

type fakeInference struct {
	resp  *inference.Response
	err   error
	calls int
	doc   inference.DocumentRef
	instr string
}

func (f *fakeInference) Feedback(_ context.Context, doc inference.DocumentRef, instructions string) (*inference.Response, error) {
	f.calls++
	f.doc = doc
	f.instr = instructions
	return f.resp, f.err
}

type fakeDecoder struct{ err error }

func (d fakeDecoder) Decode([]byte) (raster.PageInfo, error) {
	if d.err != nil {
		return raster.PageInfo{}, d.err
	}
	return raster.PageInfo{Width: 2, Height: 3, Pages: 1}, nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(context.Context, []byte, raster.PageInfo, float64) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 12))
	img.Set(1, 1, color.Black)
	return img, nil
}

// singleNamespace serves one store for every user.
type singleNamespace struct{ store kv.Store }

func (s singleNamespace) Namespace(string) kv.Store { return s.store }

// scriptedStore returns a fixed listing and per-key values.
type scriptedStore struct {
	mu       sync.Mutex
	listing  kv.ListResult
	listErr  error
	values   map[string]string
	getErr   map[string]error
	flushErr error
	flushed  bool
	sets     map[string]string
}

func (s *scriptedStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.getErr[key]; ok {
		return "", false, err
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *scriptedStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sets == nil {
		s.sets = map[string]string{}
	}
	s.sets[key] = value
	return nil
}

func (s *scriptedStore) List(context.Context, string, bool) (kv.ListResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushed {
		return kv.KeysResult(nil), nil
	}
	return s.listing, s.listErr
}

func (s *scriptedStore) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushErr != nil {
		return s.flushErr
	}
	s.flushed = true
	return nil
}

// blockingStore holds every Set until release is closed.
type blockingStore struct {
	kv.Store
	release chan struct{}
	err     error
}

func (b *blockingStore) Set(ctx context.Context, key, value string) error {
	<-b.release
	if b.err != nil {
		return b.err
	}
	return b.Store.Set(ctx, key, value)
}

type failingSetStore struct{ kv.Store }

func (failingSetStore) Set(context.Context, string, string) error {
	return errors.New("kv unavailable")
}

const validFeedback = `{
  "overallScore": 72,
  "ATS": {"score": 80, "tips": [{"type": "good", "tip": "Clear headings"}]},
  "toneAndStyle": {"score": 70, "tips": [{"type": "improve", "tip": "Fewer adjectives", "explanation": "Keep it factual."}]},
  "content": {"score": 65, "tips": []},
  "structure": {"score": 75, "tips": []},
  "skills": {"score": 60, "tips": []}
}`

func pdf(name string) *intake.File {
	return &intake.File{Name: name, ContentType: intake.PDFContentType, Data: []byte("%PDF-1.4 test")}
}

type fixture struct {
	svc     *Service
	objects *fakeObjects
	kv      *memory.Backend
	ai      *fakeInference
}

func newFixture() *fixture {
	objects := newFakeObjects()
	backend := memory.New()
	ai := &fakeInference{resp: &inference.Response{Message: inference.Message{Content: inference.TextContent(validFeedback)}}}
	previews := raster.NewURLRegistry(0, nil)
	svc := &Service{
		Objects:   objects,
		KV:        backend,
		Inference: ai,
		Converter: &raster.Converter{Decoder: fakeDecoder{}, Renderer: fakeRenderer{}, URLs: previews},
		Records:   NewRecordStore(DefaultWriteDeadline),
		Previews:  previews,
		QuotaURL:  "https://quota.example",
	}
	return &fixture{svc: svc, objects: objects, kv: backend, ai: ai}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
