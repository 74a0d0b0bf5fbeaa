package auth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newAuthRouter(svc *GoogleService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	svc.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestStartCarriesPromptAndNext(t *testing.T) {
	svc := NewGoogleService("client", "secret", "http://localhost/cb", "http://ui.local/auth")
	r := newAuthRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/start?next=%2Fupload&prompt=select_account", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.Code)
	}
	loc, err := url.Parse(resp.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	q := loc.Query()
	if q.Get("prompt") != "select_account" {
		t.Fatalf("expected prompt=select_account, got %q", q.Get("prompt"))
	}
	state := q.Get("state")
	pending, ok := svc.stateStore.consume(state)
	if !ok || pending.next != "/upload" {
		t.Fatalf("expected pending next /upload, got %+v ok=%v", pending, ok)
	}
	if _, ok := svc.stateStore.consume(state); ok {
		t.Fatalf("state must be single use")
	}
}

func TestStartIgnoresUnknownPrompt(t *testing.T) {
	r := newAuthRouter(NewGoogleService("client", "secret", "http://localhost/cb", ""))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/start?prompt=none", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if strings.Contains(resp.Header().Get("Location"), "prompt=") {
		t.Fatalf("unexpected prompt in %s", resp.Header().Get("Location"))
	}
}

func TestStartRequiresConfiguration(t *testing.T) {
	r := newAuthRouter(NewGoogleService("", "", "", ""))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/start", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	r := newAuthRouter(NewGoogleService("client", "secret", "http://localhost/cb", "http://ui.local"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?state=nope&code=abc", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestLogoutReturnsRedirect(t *testing.T) {
	r := newAuthRouter(NewGoogleService("client", "secret", "http://localhost/cb", ""))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"redirect":"/?logout=1"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"/upload":              "/upload",
		" /resumes/abc ":       "/resumes/abc",
		"//evil.example":       "",
		"https://evil.example": "",
		"/\\evil":              "",
		"":                     "",
	}
	for in, want := range tests {
		if got := safeNext(in); got != want {
			t.Fatalf("safeNext(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAppendTokenAddsNext(t *testing.T) {
	got, err := appendToken("http://ui.local/auth?x=1", "tok", "/upload")
	if err != nil {
		t.Fatalf("appendToken: %v", err)
	}
	u, _ := url.Parse(got)
	if u.Query().Get("token") != "tok" || u.Query().Get("next") != "/upload" || u.Query().Get("x") != "1" {
		t.Fatalf("unexpected url %s", got)
	}
	if _, err := appendToken("", "tok", ""); err == nil {
		t.Fatalf("expected error for empty redirect")
	}
}
