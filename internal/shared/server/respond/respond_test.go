package respond

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"resumind/internal/shared/telemetry"
)

func TestErrorLevelFollowsStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, observed := observer.New(zapcore.DebugLevel)
	restore := telemetry.SetLogger(zap.New(core))
	defer restore()

	r := gin.New()
	r.GET("/bad", func(c *gin.Context) {
		c.Set("resumeId", "r1")
		Error(c, http.StatusBadRequest, "validation_error", "bad", nil)
	})
	r.GET("/boom", func(c *gin.Context) {
		Error(c, http.StatusBadGateway, "upload_failed", "boom", gin.H{"stage": "upload_source"})
	})

	for _, path := range []string{"/bad", "/boom"} {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := observed.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel || entries[0].ContextMap()["resumeId"] != "r1" {
		t.Fatalf("unexpected client error entry %+v", entries[0])
	}
	if entries[1].Level != zapcore.ErrorLevel {
		t.Fatalf("expected error level for 502, got %s", entries[1].Level)
	}
}

func TestEventFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resp := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(resp)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	StartStream(c)
	if err := Event(c.Writer, "status", gin.H{"status": "Analyzing..."}); err != nil {
		t.Fatalf("Event: %v", err)
	}

	if got := resp.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}
	want := "event: status\ndata: {\"status\":\"Analyzing...\"}\n\n"
	if resp.Body.String() != want {
		t.Fatalf("unexpected body %q", resp.Body.String())
	}
}
