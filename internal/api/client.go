package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	httpTimeoutEnvKey  = "DOCPIPE_HTTP_TIMEOUT"
	uploadFormField    = "file"
)

// Client is an HTTP client for the blob and analysis daemons. One Client
// talks to one base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{Timeout: httpTimeoutFromEnv()})
}

// NewClientWithHTTP creates a client around hc.
func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: httpTimeoutFromEnv()}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// BaseURL returns the daemon base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping checks whether the daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// Upload stores r under name on the blob daemon.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (UploadResponse, error) {
	var resp UploadResponse

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile(uploadFormField, name)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/files", pr)
	if err != nil {
		pr.Close()
		return resp, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	httpResp, err := c.http.Do(req)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

func (c *Client) GetMetadata(ctx context.Context, id string) (BlobMetadataResponse, error) {
	var resp BlobMetadataResponse
	err := c.do(ctx, http.MethodGet, "/v1/files/"+url.PathEscape(id)+"/metadata", nil, nil, &resp)
	return resp, err
}

// Download copies the content of blob id to w.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (Download, error) {
	return c.stream(ctx, http.MethodGet, "/v1/files/"+url.PathEscape(id), w)
}

// Analyze computes or returns the cached analysis of a source blob.
func (c *Client) Analyze(ctx context.Context, sourceID string) (AnalysisResponse, error) {
	var resp AnalysisResponse
	err := c.do(ctx, http.MethodPost, "/v1/sources/"+url.PathEscape(sourceID)+"/analysis", nil, nil, &resp)
	return resp, err
}

// AnalyzeText analyzes a source blob and copies the analysis text to w.
func (c *Client) AnalyzeText(ctx context.Context, sourceID string, w io.Writer) (Download, error) {
	return c.stream(ctx, http.MethodGet, "/v1/sources/"+url.PathEscape(sourceID)+"/analysis/result", w)
}

// SourceCloud copies the word cloud of an analyzed source blob to w.
func (c *Client) SourceCloud(ctx context.Context, sourceID string, w io.Writer) (Download, error) {
	return c.stream(ctx, http.MethodGet, "/v1/sources/"+url.PathEscape(sourceID)+"/word-cloud", w)
}

func (c *Client) GetAnalysis(ctx context.Context, id string) (AnalysisResponse, error) {
	var resp AnalysisResponse
	err := c.do(ctx, http.MethodGet, "/v1/analyses/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

// AnalysisResult copies the analysis text file to w.
func (c *Client) AnalysisResult(ctx context.Context, id string, w io.Writer) (Download, error) {
	return c.stream(ctx, http.MethodGet, "/v1/analyses/"+url.PathEscape(id)+"/result", w)
}

// AnalysisCloud copies the word-cloud image to w.
func (c *Client) AnalysisCloud(ctx context.Context, id string, w io.Writer) (Download, error) {
	return c.stream(ctx, http.MethodGet, "/v1/analyses/"+url.PathEscape(id)+"/cloud", w)
}

func (c *Client) stream(ctx context.Context, method, path string, w io.Writer) (Download, error) {
	var out Download
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return out, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return out, decodeError(resp)
	}

	out.ContentType = resp.Header.Get("Content-Type")
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		out.Filename = params["filename"]
	}
	out.SizeBytes, err = io.Copy(w, resp.Body)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&errResp); err == nil && (errResp.Message != "" || errResp.Code != "") {
		status := errResp.Status
		if status == 0 {
			status = resp.StatusCode
		}
		return &APIError{
			Status:    status,
			Code:      errResp.Code,
			ErrorCode: errResp.ErrorCode,
			Message:   errResp.Message,
			Detail:    errResp.Detail,
		}
	}
	return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("api error: %s", resp.Status)}
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
