package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.BlobWrite(WriteCreated)
	m.BlobFetch("ok")
	m.Analyze(AnalyzeHit)
	m.RendererCall("ok", time.Second)
	m.Request(http.MethodGet, "/health", 200, time.Millisecond)
}

func TestCountersAndHandler(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)

	m.BlobWrite(WriteCreated)
	m.BlobWrite(WriteDeduplicated)
	m.BlobWrite(WriteDeduplicated)
	m.Analyze(AnalyzeMiss)
	m.RendererCall("ok", 150*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `docpipe_blobs_writes_total{result="deduplicated"} 2`), body)
	assert.True(t, strings.Contains(body, `docpipe_blobs_writes_total{result="created"} 1`), body)
	assert.True(t, strings.Contains(body, `docpipe_analysis_requests_total{result="miss"} 1`), body)
	assert.True(t, strings.Contains(body, "docpipe_renderer_call_duration_seconds_count 1"), body)
}
