// Package renderer calls the external word-cloud image service.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"docpipe/internal/apperr"
	"docpipe/internal/metrics"
)

const (
	DefaultURL      = "https://quickchart.io/wordcloud"
	DefaultTimeout  = 30 * time.Second
	DefaultMaxWords = 1000
	DefaultWidth    = 1200
	DefaultHeight   = 800

	maxImageBytes = 32 << 20
	errorSnippet  = 256
)

// Renderer turns analysis text into an image.
type Renderer interface {
	Render(ctx context.Context, text string) ([]byte, error)
}

// Options configures Client. Zero values fall back to the defaults above.
type Options struct {
	URL        string
	Timeout    time.Duration
	MaxWords   int
	Width      int
	Height     int
	HTTPClient *http.Client
}

// Client renders word clouds over HTTP.
type Client struct {
	url      string
	timeout  time.Duration
	maxWords int
	width    int
	height   int
	http     *http.Client
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type renderRequest struct {
	Format   string `json:"format"`
	Text     string `json:"text"`
	MaxWords int    `json:"maxWords"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// New constructs a Client. m and logger may be nil.
func New(opts Options, m *metrics.Metrics, logger *slog.Logger) *Client {
	c := &Client{
		url:      strings.TrimSpace(opts.URL),
		timeout:  opts.Timeout,
		maxWords: opts.MaxWords,
		width:    opts.Width,
		height:   opts.Height,
		http:     opts.HTTPClient,
		metrics:  m,
		logger:   logger,
	}
	if c.url == "" {
		c.url = DefaultURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxWords <= 0 {
		c.maxWords = DefaultMaxWords
	}
	if c.width <= 0 {
		c.width = DefaultWidth
	}
	if c.height <= 0 {
		c.height = DefaultHeight
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	return c
}

// Render posts text to the renderer and returns the image bytes. Failures
// are never retried.
func (c *Client) Render(ctx context.Context, text string) ([]byte, error) {
	start := time.Now()
	img, err := c.render(ctx, text)
	outcome := "ok"
	switch {
	case err == nil:
	case apperr.Is(err, apperr.KindUpstreamTimeout):
		outcome = "timeout"
	default:
		outcome = "failed"
	}
	c.metrics.RendererCall(outcome, time.Since(start))
	if err != nil {
		c.log().Warn("render failed", "url", c.url, "outcome", outcome, "error", err)
		return nil, err
	}
	c.log().Debug("rendered word cloud", "bytes", len(img), "duration_ms", time.Since(start).Milliseconds())
	return img, nil
}

func (c *Client) render(ctx context.Context, text string) ([]byte, error) {
	const op = "renderer.render"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(renderRequest{
		Format:   "png",
		Text:     text,
		MaxWords: c.maxWords,
		Width:    c.width,
		Height:   c.height,
	})
	if err != nil {
		return nil, apperr.E(op, apperr.KindInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.E(op, apperr.KindInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippet))
		return nil, apperr.Errorf(op, apperr.KindRenderFailed, "renderer returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	img, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, classify(op, err)
	}
	if len(img) == 0 {
		return nil, apperr.Errorf(op, apperr.KindRenderFailed, "renderer returned an empty image")
	}
	if len(img) > maxImageBytes {
		return nil, apperr.Errorf(op, apperr.KindRenderFailed, "renderer image exceeds %d bytes", maxImageBytes)
	}
	return img, nil
}

func classify(op string, err error) error {
	if apperr.IsTimeout(err) {
		return apperr.E(op, apperr.KindUpstreamTimeout, err)
	}
	return apperr.E(op, apperr.KindRenderFailed, fmt.Errorf("call renderer: %w", err))
}

func (c *Client) log() *slog.Logger {
	if c != nil && c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

var _ Renderer = (*Client)(nil)
