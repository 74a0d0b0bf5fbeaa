package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"resumind/internal/shared/storage/kv"
)

func TestClientAgainstFakeService(t *testing.T) {
	var flushed bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/ns/u1/keys/resume:a":
			_, _ = w.Write([]byte(`{"value":"{\"id\":\"a\"}"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/ns/u1/keys/resume:obj":
			_, _ = w.Write([]byte(`{"value":{"id":"obj"}}`))
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/ns/u1/keys/"):
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/ns/u1/keys/resume:a":
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["value"] == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && r.URL.Path == "/ns/u1/keys":
			if r.URL.Query().Get("pattern") != "resume:*" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if r.URL.Query().Get("expand") == "true" {
				_, _ = w.Write([]byte(`[null,{"key":"resume:a","value":"{}"}]`))
				return
			}
			_, _ = w.Write([]byte(`[null,"resume:a","resume:b"]`))
		case r.Method == http.MethodDelete && r.URL.Path == "/ns/u1":
			flushed = true
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	backend, err := New(srv.URL+"/", "tok", time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	store := backend.Namespace("u1")
	ctx := context.Background()

	v, found, err := store.Get(ctx, "resume:a")
	if err != nil || !found || v != `{"id":"a"}` {
		t.Fatalf("unexpected get %q %v %v", v, found, err)
	}
	v, found, err = store.Get(ctx, "resume:obj")
	if err != nil || !found || v != `{"id":"obj"}` {
		t.Fatalf("expected serialized object value, got %q %v %v", v, found, err)
	}
	if _, found, err := store.Get(ctx, "resume:none"); err != nil || found {
		t.Fatalf("expected miss, got %v %v", found, err)
	}
	if err := store.Set(ctx, "resume:a", `{"id":"a"}`); err != nil {
		t.Fatalf("Set: %v", err)
	}

	keys, err := store.List(ctx, "resume:*", false)
	if err != nil || keys.Shape != kv.ShapeKeys || len(keys.Keys) != 2 {
		t.Fatalf("unexpected keys listing %+v %v", keys, err)
	}
	objs, err := store.List(ctx, "resume:*", true)
	if err != nil || objs.Shape != kv.ShapeObjects || len(objs.Objects) != 1 {
		t.Fatalf("unexpected object listing %+v %v", objs, err)
	}

	if err := store.Flush(ctx); err != nil || !flushed {
		t.Fatalf("Flush: %v flushed=%v", err, flushed)
	}
}

func TestClientSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer srv.Close()

	backend, err := New(srv.URL, "", time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	store := backend.Namespace("u1")
	if _, err := store.List(context.Background(), "resume:*", true); err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected 502 error, got %v", err)
	}
	if err := store.Set(context.Background(), "k", "v"); err == nil {
		t.Fatalf("expected set error")
	}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New("  ", "", 0); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
