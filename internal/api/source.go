package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"docpipe/internal/apperr"
	"docpipe/internal/models"
)

// DefaultMaxSourceBytes caps one source download.
const DefaultMaxSourceBytes = 100 << 20

// SourceClient reads source blobs from a remote blob daemon. It returns
// apperr-classified errors so callers can tell a missing blob from an
// unreachable daemon.
type SourceClient struct {
	client   *Client
	maxBytes int64
}

// NewSourceClient targets the blob daemon at baseURL. Each request is
// bounded by timeout when positive.
func NewSourceClient(baseURL string, timeout time.Duration) *SourceClient {
	return &SourceClient{
		client:   NewClientWithHTTP(baseURL, &http.Client{Timeout: timeout}),
		maxBytes: DefaultMaxSourceBytes,
	}
}

func (s *SourceClient) GetMetadata(ctx context.Context, id string) (*models.Blob, error) {
	resp, err := s.client.GetMetadata(ctx, id)
	if err != nil {
		return nil, Classify("source.metadata", err)
	}
	return &models.Blob{
		ID:          resp.ID,
		LogicalName: resp.LogicalName,
		ContentHash: resp.ContentHash,
		SizeBytes:   resp.SizeBytes,
		MediaType:   resp.MediaType,
		CreatedAt:   resp.CreatedAt,
	}, nil
}

func (s *SourceClient) Fetch(ctx context.Context, id string) ([]byte, error) {
	var buf bytes.Buffer
	w := &limitedWriter{w: &buf, remaining: s.maxBytes}
	if _, err := s.client.Download(ctx, id, w); err != nil {
		if w.exceeded {
			return nil, apperr.Errorf("source.fetch", apperr.KindSourceContentUnavailable, "source %s exceeds %d bytes", id, s.maxBytes)
		}
		return nil, Classify("source.fetch", err)
	}
	return buf.Bytes(), nil
}

type limitedWriter struct {
	w         *bytes.Buffer
	remaining int64
	exceeded  bool
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > l.remaining {
		l.exceeded = true
		return 0, fmt.Errorf("download limit exceeded")
	}
	l.remaining -= int64(len(p))
	return l.w.Write(p)
}
