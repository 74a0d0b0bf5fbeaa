package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(submissionsTotal.WithLabelValues("completed"))
	IncSubmission("completed")
	if got := testutil.ToFloat64(submissionsTotal.WithLabelValues("completed")); got != before+1 {
		t.Fatalf("expected %v, got %v", before+1, got)
	}

	beforeSkip := testutil.ToFloat64(listingSkippedTotal.WithLabelValues("parse"))
	IncListingSkipped("parse")
	IncListingSkipped("parse")
	if got := testutil.ToFloat64(listingSkippedTotal.WithLabelValues("parse")); got != beforeSkip+2 {
		t.Fatalf("expected %v, got %v", beforeSkip+2, got)
	}
}

func TestHandlerExposesPipelineMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	IncRecordWrite("detached")
	ObserveStage("rasterize", 120*time.Millisecond)

	r := gin.New()
	r.GET("/metrics", Handler())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	for _, name := range []string{"resume_record_writes_total", "resume_pipeline_stage_duration_seconds_bucket"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in output", name)
		}
	}
}
