// Package blobs implements the content-addressed blob store: bytes are
// identified by their SHA-256 digest and stored at most once per index.
package blobs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"docpipe/internal/apperr"
	"docpipe/internal/blobstore"
	"docpipe/internal/metrics"
	"docpipe/internal/models"
	"docpipe/internal/store"
)

// writeTimeout bounds one physical write plus index insert. The pair runs
// detached from the caller so an abandoned request never leaves a row
// without its file.
const writeTimeout = 2 * time.Minute

// Service couples the metadata index with physical object storage.
type Service struct {
	index   store.BlobIndex
	objects blobstore.BlobStore
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService constructs a Service. m and logger may be nil.
func NewService(index store.BlobIndex, objects blobstore.BlobStore, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{index: index, objects: objects, metrics: m, logger: logger}
}

// HashContent returns the lower-case hex SHA-256 digest of data.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Store persists data under logicalName unless identical bytes are already
// indexed, in which case the existing record is returned and nothing is
// written.
func (s *Service) Store(ctx context.Context, data []byte, logicalName string) (*models.Blob, error) {
	const op = "blobs.store"
	if s == nil || s.index == nil || s.objects == nil {
		return nil, apperr.Errorf(op, apperr.KindInternal, "blob service is not configured")
	}
	if len(data) == 0 {
		return nil, apperr.Errorf(op, apperr.KindInvalidInput, "content is empty")
	}
	logicalName = strings.TrimSpace(logicalName)
	hash := HashContent(data)

	existing, err := s.index.GetBlobByContentHash(ctx, hash)
	if err != nil {
		return nil, apperr.E(op, apperr.KindInternal, err)
	}
	if existing != nil {
		s.metrics.BlobWrite(metrics.WriteDeduplicated)
		s.log().Debug("blob deduplicated", "id", existing.ID, "content_hash", hash)
		return existing, nil
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	written, err := s.objects.Write(wctx, logicalName, bytes.NewReader(data))
	if err != nil {
		return nil, apperr.E(op, apperr.KindInternal, fmt.Errorf("write object: %w", err))
	}
	if written.SHA256 != hash {
		s.discard(wctx, written.Key)
		return nil, apperr.Errorf(op, apperr.KindStorageCorruption, "object digest mismatch for %s", written.Key)
	}

	canonical, created, err := s.index.CreateBlob(wctx, &models.Blob{
		LogicalName:     logicalName,
		StorageLocation: written.Key,
		ContentHash:     hash,
		SizeBytes:       written.SizeBytes,
		MediaType:       http.DetectContentType(data),
	})
	if err != nil {
		s.discard(wctx, written.Key)
		return nil, apperr.E(op, apperr.KindInternal, fmt.Errorf("index blob: %w", err))
	}
	if !created {
		s.discard(wctx, written.Key)
		s.metrics.BlobWrite(metrics.WriteRaceResolved)
		s.log().Info("blob write race resolved", "id", canonical.ID, "content_hash", hash,
			"kind", apperr.KindConflictResolved)
		return canonical, nil
	}

	s.metrics.BlobWrite(metrics.WriteCreated)
	s.log().Info("blob stored", "id", canonical.ID, "content_hash", hash, "size_bytes", canonical.SizeBytes)
	return canonical, nil
}

// GetMetadata returns the index record for id without touching storage.
func (s *Service) GetMetadata(ctx context.Context, id string) (*models.Blob, error) {
	const op = "blobs.metadata"
	if s == nil || s.index == nil {
		return nil, apperr.Errorf(op, apperr.KindInternal, "blob service is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.Errorf(op, apperr.KindInvalidInput, "blob id is required")
	}
	blob, err := s.index.GetBlob(ctx, id)
	if err != nil {
		return nil, apperr.E(op, apperr.KindInternal, err)
	}
	if blob == nil {
		return nil, apperr.Errorf(op, apperr.KindNotFound, "blob %s not found", id)
	}
	return blob, nil
}

// Open returns the record for id and a reader over its bytes. The caller
// closes the reader.
func (s *Service) Open(ctx context.Context, id string) (*models.Blob, io.ReadCloser, error) {
	const op = "blobs.open"
	blob, err := s.GetMetadata(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			s.metrics.BlobFetch("not_found")
		}
		return nil, nil, err
	}
	rc, err := s.objects.Open(ctx, blob.StorageLocation)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotExist) {
			s.metrics.BlobFetch("corrupt")
			s.log().Error("blob object missing", "id", blob.ID, "storage_location", blob.StorageLocation)
			return nil, nil, apperr.E(op, apperr.KindStorageCorruption, err)
		}
		return nil, nil, apperr.E(op, apperr.KindInternal, err)
	}
	s.metrics.BlobFetch("ok")
	return blob, rc, nil
}

// Fetch returns the full content of blob id.
func (s *Service) Fetch(ctx context.Context, id string) ([]byte, error) {
	_, rc, err := s.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, apperr.E("blobs.fetch", apperr.KindInternal, err)
	}
	return data, nil
}

// Count returns the number of indexed blobs.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.index.CountBlobs(ctx)
}

func (s *Service) discard(ctx context.Context, key string) {
	if err := s.objects.Delete(ctx, key); err != nil {
		s.log().Warn("discard blob object", "storage_location", key, "error", err)
	}
}

func (s *Service) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
