package resumes

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(svc *Service) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userId", "user-1")
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func multipartBody(t *testing.T, fileName, contentType string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if fileName != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestSubmitHandlerCreatesRecord(t *testing.T) {
	fx := newFixture()
	r := newTestRouter(fx.svc)

	body, ct := multipartBody(t, "cv.pdf", "application/pdf", []byte("%PDF-1.4"), map[string]string{
		"companyName": "Acme",
		"jobTitle":    "SRE",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/resumes", body)
	req.Header.Set("Content-Type", ct)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var out struct {
		ID       string   `json:"id"`
		Status   string   `json:"status"`
		Statuses []string `json:"statuses"`
		Redirect string   `json:"redirect"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID == "" || out.Status != StatusComplete || len(out.Statuses) != 6 {
		t.Fatalf("unexpected response %+v", out)
	}

	req = httptest.NewRequest(http.MethodGet, out.Redirect, nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("detail expected 200, got %d", resp.Code)
	}
	if !containsAll(resp.Body.String(), `"resumeUrl"`, `"previewUrl":"/api/v1/previews/`, `"ATS"`) {
		t.Fatalf("unexpected detail body %s", resp.Body.String())
	}
}

func TestSubmitHandlerStreamsStatus(t *testing.T) {
	fx := newFixture()
	r := newTestRouter(fx.svc)

	body, ct := multipartBody(t, "cv.pdf", "application/pdf", []byte("%PDF-1.4"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/resumes", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Accept", "text/event-stream")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if got := resp.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}
	out := resp.Body.String()
	if strings.Count(out, "event: status\n") != 6 {
		t.Fatalf("expected 6 status events, got:\n%s", out)
	}
	if !strings.Contains(out, `data: {"status":"Uploading the file..."}`) {
		t.Fatalf("missing first status event:\n%s", out)
	}
	if !strings.Contains(out, "event: result\n") || !strings.Contains(out, `"ok":true`) {
		t.Fatalf("missing result event:\n%s", out)
	}
}

func TestSubmitHandlerErrors(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		ct       string
		setup    func(fx *fixture)
		want     int
		code     string
	}{
		{name: "no file", want: http.StatusBadRequest, code: "validation_error"},
		{name: "wrong type", fileName: "cv.txt", ct: "text/plain", want: http.StatusUnsupportedMediaType, code: "validation_error"},
		{name: "upload failure", fileName: "cv.pdf", ct: "application/pdf", setup: func(fx *fixture) {
			fx.objects.saveErr["cv.pdf"] = http.ErrHandlerTimeout
		}, want: http.StatusBadGateway, code: "upload_failed"},
		{name: "analysis failure", fileName: "cv.pdf", ct: "application/pdf", setup: func(fx *fixture) {
			fx.ai.resp = nil
		}, want: http.StatusBadGateway, code: "analysis_failed"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fx := newFixture()
			if tt.setup != nil {
				tt.setup(fx)
			}
			r := newTestRouter(fx.svc)
			body, ct := multipartBody(t, tt.fileName, tt.ct, []byte("%PDF"), nil)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/resumes", body)
			req.Header.Set("Content-Type", ct)
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)

			if resp.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, resp.Code, resp.Body.String())
			}
			if !strings.Contains(resp.Body.String(), `"code":"`+tt.code+`"`) {
				t.Fatalf("expected code %s, got %s", tt.code, resp.Body.String())
			}
		})
	}
}

func TestListAndWipeHandlers(t *testing.T) {
	fx := newFixture()
	r := newTestRouter(fx.svc)
	fx.ai.err = http.ErrAbortHandler
	out := fx.svc.Submit(t.Context(), "user-1", Submission{File: pdf("cv.pdf")}, nil)
	if out.ID == "" {
		t.Fatalf("expected a draft id")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/resumes", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("list expected 200, got %d", resp.Code)
	}
	var listing struct {
		Loaded  bool `json:"loaded"`
		Resumes []struct {
			Record struct {
				ID       string `json:"id"`
				Feedback any    `json:"feedback"`
			} `json:"record"`
			StoreKey string `json:"storeKey"`
		} `json:"resumes"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !listing.Loaded || len(listing.Resumes) != 1 || listing.Resumes[0].Record.ID != out.ID {
		t.Fatalf("unexpected listing %s", resp.Body.String())
	}
	if listing.Resumes[0].Record.Feedback != "" || listing.Resumes[0].StoreKey != "resume:"+out.ID {
		t.Fatalf("draft should list with empty feedback: %s", resp.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/wipe", strings.NewReader(`{"confirm":false}`))
	req.Header.Set("Content-Type", "application/json")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest || !strings.Contains(resp.Body.String(), "confirmation_required") {
		t.Fatalf("expected confirmation_required, got %d %s", resp.Code, resp.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/wipe", strings.NewReader(`{"confirm":true}`))
	req.Header.Set("Content-Type", "application/json")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"resumes":[]`) {
		t.Fatalf("expected empty listing after wipe, got %d %s", resp.Code, resp.Body.String())
	}
}

func TestDetailAndBlobNotFound(t *testing.T) {
	r := newTestRouter(newFixture().svc)
	for _, path := range []string{"/api/v1/resumes/missing", "/api/v1/resumes/missing/image", "/api/v1/previews/nope"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.Code)
		}
	}
}

func TestPreviewServeAndRelease(t *testing.T) {
	fx := newFixture()
	r := newTestRouter(fx.svc)
	url := fx.svc.Previews.Create("user-1", "", "image/png", []byte("png-bytes"))

	req := httptest.NewRequest(http.MethodGet, url, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || resp.Body.String() != "png-bytes" {
		t.Fatalf("expected preview body, got %d %q", resp.Code, resp.Body.String())
	}

	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodDelete, url, nil)
		resp = httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != http.StatusNoContent {
			t.Fatalf("release %d expected 204, got %d", i+1, resp.Code)
		}
	}
	if fx.svc.Previews.Len() != 0 {
		t.Fatalf("expected preview to be released")
	}
}
