package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"docpipe/internal/analysis"
	"docpipe/internal/api"
	"docpipe/internal/blobs"
	"docpipe/internal/blobstore"
	"docpipe/internal/metrics"
	"docpipe/internal/renderer"
	"docpipe/internal/store"
)

const sampleText = "This is a test content for analysis"

func TestListenAddrRemoteGuard(t *testing.T) {
	t.Run("allows loopback", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		addr, err := ListenAddr("http://127.0.0.1:7480")
		if err != nil {
			t.Fatalf("expected loopback to be allowed, got error: %v", err)
		}
		if addr != "127.0.0.1:7480" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})

	t.Run("blocks non-loopback by default", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		_, err := ListenAddr("http://0.0.0.0:7480")
		if err == nil {
			t.Fatal("expected error for non-loopback listen host")
		}
	})

	t.Run("allows non-loopback when explicitly enabled", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "true")
		addr, err := ListenAddr("http://0.0.0.0:7480")
		if err != nil {
			t.Fatalf("expected allow-remote to permit host, got error: %v", err)
		}
		if addr != "0.0.0.0:7480" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})
}

type blobDaemon struct {
	url     string
	objects *blobstore.LocalFS
	svc     *blobs.Service
}

func startBlobDaemon(t *testing.T, maxUpload int64) blobDaemon {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "blobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	objects, err := blobstore.NewLocalFS(filepath.Join(dir, "storage"))
	if err != nil {
		t.Fatalf("open objects: %v", err)
	}
	reg := metrics.NewRegistry()
	m := metrics.New(reg)
	svc := blobs.NewService(st, objects, m, nil)
	srv := NewBlobServer("", svc, Options{Metrics: m, Gatherer: reg, MaxUploadBytes: maxUpload})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return blobDaemon{url: ts.URL, objects: objects, svc: svc}
}

func decodeErrorBody(t *testing.T, resp *http.Response) api.ErrorResponse {
	t.Helper()
	defer resp.Body.Close()
	var body api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestBlobUploadDeduplicatesAcrossFormats(t *testing.T) {
	d := startBlobDaemon(t, 0)
	client := api.NewClient(d.url)
	ctx := context.Background()

	first, err := client.Upload(ctx, "notes.txt", strings.NewReader(sampleText))
	if err != nil {
		t.Fatalf("multipart upload: %v", err)
	}
	if first.ContentHash != blobs.HashContent([]byte(sampleText)) {
		t.Fatalf("unexpected hash %q", first.ContentHash)
	}

	resp, err := http.Post(d.url+"/v1/files?name=other.md", "text/plain", strings.NewReader(sampleText))
	if err != nil {
		t.Fatalf("raw upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var second api.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if second.ID != first.ID || second.ContentHash != first.ContentHash {
		t.Fatalf("expected dedup to %#v, got %#v", first, second)
	}

	meta, err := client.GetMetadata(ctx, first.ID)
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.LogicalName != "notes.txt" || meta.SizeBytes != int64(len(sampleText)) {
		t.Fatalf("unexpected metadata %#v", meta)
	}

	var buf bytes.Buffer
	dl, err := client.Download(ctx, first.ID, &buf)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if buf.String() != sampleText {
		t.Fatalf("unexpected content %q", buf.String())
	}
	if dl.ContentType != "text/plain; charset=utf-8" || dl.Filename != "notes.txt" {
		t.Fatalf("unexpected download headers %#v", dl)
	}
}

func TestBlobErrorResponses(t *testing.T) {
	d := startBlobDaemon(t, 64)

	stored, err := d.svc.Store(context.Background(), []byte("doomed"), "doomed.txt")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := os.Remove(filepath.Join(d.objects.Root(), filepath.FromSlash(stored.StorageLocation))); err != nil {
		t.Fatalf("remove object: %v", err)
	}

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
		wantNum    int
	}{
		{name: "missing blob", method: http.MethodGet, path: "/v1/files/bl-00000000", wantStatus: 404, wantCode: "not_found", wantNum: ErrCodeBlobNotFound},
		{name: "missing metadata", method: http.MethodGet, path: "/v1/files/bl-00000000/metadata", wantStatus: 404, wantCode: "not_found", wantNum: ErrCodeBlobNotFound},
		{name: "malformed id", method: http.MethodGet, path: "/v1/files/nope", wantStatus: 400, wantCode: "invalid_input", wantNum: ErrCodeInvalidID},
		{name: "empty upload", method: http.MethodPost, path: "/v1/files?name=a.txt", body: "", wantStatus: 400, wantCode: "invalid_input", wantNum: ErrCodeInvalidArgument},
		{name: "oversized upload", method: http.MethodPost, path: "/v1/files?name=a.txt", body: strings.Repeat("x", 65), wantStatus: 413, wantCode: "invalid_input", wantNum: ErrCodeRequestTooLarge},
		{name: "corrupt blob", method: http.MethodGet, path: "/v1/files/" + stored.ID, wantStatus: 500, wantCode: "storage_corruption", wantNum: ErrCodeStorageCorruption},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, d.url+tt.path, strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("new request: %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("do: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			body := decodeErrorBody(t, resp)
			if body.Status != tt.wantStatus || body.Code != tt.wantCode || body.ErrorCode != tt.wantNum {
				t.Fatalf("unexpected error body %#v", body)
			}
			if body.Message == "" || body.Detail == "" {
				t.Fatalf("expected message and detail, got %#v", body)
			}
		})
	}
}

func TestServerErrorsHideCause(t *testing.T) {
	d := startBlobDaemon(t, 0)
	stored, err := d.svc.Store(context.Background(), []byte("vanishing"), "v.txt")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := os.Remove(filepath.Join(d.objects.Root(), filepath.FromSlash(stored.StorageLocation))); err != nil {
		t.Fatalf("remove object: %v", err)
	}

	resp, err := http.Get(d.url + "/v1/files/" + stored.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := decodeErrorBody(t, resp)
	if body.Detail != "stored content is missing" {
		t.Fatalf("expected fixed detail, got %q", body.Detail)
	}
	if strings.Contains(body.Detail, stored.StorageLocation) {
		t.Fatalf("detail leaks storage location: %q", body.Detail)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	d := startBlobDaemon(t, 0)
	if err := api.NewClient(d.url).Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := http.Get(d.url + "/v1/files/bl-00000000"); err != nil {
		t.Fatalf("get: %v", err)
	}

	resp, err := http.Get(d.url + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), `docpipe_http_requests_total{method="GET",route="GET /v1/files/{id}",status="404"} 1`) {
		t.Fatalf("expected request counter in metrics output:\n%s", data)
	}
}

type fakeRenderer struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (f *fakeRenderer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if f.fail.Load() {
			http.Error(w, "renderer down", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("\x89PNG\r\n\x1a\ncloud"))
	})
}

type pipeline struct {
	blobs    blobDaemon
	analysis string
	renderer *fakeRenderer
}

func startPipeline(t *testing.T) pipeline {
	t.Helper()
	bd := startBlobDaemon(t, 0)

	fr := &fakeRenderer{}
	rs := httptest.NewServer(fr.handler())
	t.Cleanup(rs.Close)

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "analysis.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	objects, err := blobstore.NewLocalFS(filepath.Join(dir, "storage"))
	if err != nil {
		t.Fatalf("open objects: %v", err)
	}
	svc, err := analysis.NewService(analysis.Config{
		Source:   api.NewSourceClient(bd.url, 5*time.Second),
		Results:  blobs.NewService(st, objects, nil, nil),
		Index:    st,
		Renderer: renderer.New(renderer.Options{URL: rs.URL, Timeout: 5 * time.Second}, nil, nil),
	})
	if err != nil {
		t.Fatalf("new analysis service: %v", err)
	}
	as := httptest.NewServer(NewAnalysisServer("", svc, Options{}).Handler())
	t.Cleanup(as.Close)
	return pipeline{blobs: bd, analysis: as.URL, renderer: fr}
}

func TestAnalysisPipelineEndToEnd(t *testing.T) {
	p := startPipeline(t)
	ctx := context.Background()
	blobClient := api.NewClient(p.blobs.url)
	client := api.NewClient(p.analysis)

	up, err := blobClient.Upload(ctx, "sample.txt", strings.NewReader(sampleText))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	rec, err := client.Analyze(ctx, up.ID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if rec.OriginalContentHash != up.ContentHash {
		t.Fatalf("expected hash %s, got %s", up.ContentHash, rec.OriginalContentHash)
	}
	if !strings.HasPrefix(rec.AnalysisText, "Word count: 7\nCharacter count: 35\nLines: 1\n") {
		t.Fatalf("unexpected analysis text %q", rec.AnalysisText)
	}

	var text bytes.Buffer
	dl, err := client.AnalyzeText(ctx, up.ID, &text)
	if err != nil {
		t.Fatalf("analyze text: %v", err)
	}
	if text.String() != rec.AnalysisText {
		t.Fatalf("expected text file to match record, got %q", text.String())
	}
	if !strings.HasPrefix(dl.ContentType, "text/plain") {
		t.Fatalf("unexpected content type %q", dl.ContentType)
	}

	// Identical bytes under a new name resolve to the same source blob and analysis.
	again, err := blobClient.Upload(ctx, "copy.txt", strings.NewReader(sampleText))
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	rec2, err := client.Analyze(ctx, again.ID)
	if err != nil {
		t.Fatalf("second analyze: %v", err)
	}
	if rec2.ID != rec.ID {
		t.Fatalf("expected cached analysis %s, got %s", rec.ID, rec2.ID)
	}
	if got := p.renderer.calls.Load(); got != 1 {
		t.Fatalf("expected one renderer call, got %d", got)
	}

	var cloud bytes.Buffer
	if _, err := client.SourceCloud(ctx, up.ID, &cloud); err != nil {
		t.Fatalf("source cloud: %v", err)
	}
	if !strings.HasPrefix(cloud.String(), "\x89PNG") {
		t.Fatalf("unexpected cloud bytes %q", cloud.String())
	}

	got, err := client.GetAnalysis(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get analysis: %v", err)
	}
	if got.CloudBlobID != rec.CloudBlobID {
		t.Fatalf("unexpected analysis %#v", got)
	}

	cloud.Reset()
	if _, err := client.AnalysisCloud(ctx, rec.ID, &cloud); err != nil {
		t.Fatalf("analysis cloud: %v", err)
	}
	text.Reset()
	if _, err := client.AnalysisResult(ctx, rec.ResultBlobID, &text); err != nil {
		t.Fatalf("analysis result by blob id: %v", err)
	}
	if text.String() != rec.AnalysisText {
		t.Fatalf("unexpected result text %q", text.String())
	}
}

func TestAnalysisErrorMapping(t *testing.T) {
	p := startPipeline(t)
	ctx := context.Background()
	blobClient := api.NewClient(p.blobs.url)
	client := api.NewClient(p.analysis)

	fresh, err := blobClient.Upload(ctx, "fresh.txt", strings.NewReader("never analyzed"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	assertAPIError := func(t *testing.T, err error, status int, code string) {
		t.Helper()
		var apiErr *api.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if apiErr.Status != status || apiErr.Code != code {
			t.Fatalf("expected %d %s, got %d %s (%v)", status, code, apiErr.Status, apiErr.Code, apiErr)
		}
	}

	_, err = client.Analyze(ctx, "bl-00000000")
	assertAPIError(t, err, http.StatusNotFound, "source_not_found")

	_, err = client.SourceCloud(ctx, fresh.ID, io.Discard)
	assertAPIError(t, err, http.StatusNotFound, "not_found")

	_, err = client.GetAnalysis(ctx, "an-00000000")
	assertAPIError(t, err, http.StatusNotFound, "not_found")

	p.renderer.fail.Store(true)
	_, err = client.Analyze(ctx, fresh.ID)
	assertAPIError(t, err, http.StatusBadGateway, "render_failed")

	// A failed render leaves nothing cached.
	_, err = client.SourceCloud(ctx, fresh.ID, io.Discard)
	assertAPIError(t, err, http.StatusNotFound, "not_found")

	p.renderer.fail.Store(false)
	if _, err := client.Analyze(ctx, fresh.ID); err != nil {
		t.Fatalf("analyze after renderer recovery: %v", err)
	}
}
