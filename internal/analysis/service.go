// Package analysis computes and caches derived artifacts for source blobs.
// Results are keyed by the source content hash, so re-uploaded bytes under a
// new id still hit the cache.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"docpipe/internal/apperr"
	"docpipe/internal/blobs"
	"docpipe/internal/lock"
	"docpipe/internal/metrics"
	"docpipe/internal/models"
	"docpipe/internal/renderer"
	"docpipe/internal/store"
)

const (
	DefaultSourceTimeout = 10 * time.Second

	persistTimeout = 2 * time.Minute
	stampLayout    = "20060102150405"
)

// SourceStore is the slice of the blob store the cache depends on.
// *blobs.Service and api.SourceClient both satisfy it.
type SourceStore interface {
	GetMetadata(ctx context.Context, id string) (*models.Blob, error)
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// Config wires a Service. Locker, Metrics and Logger are optional.
type Config struct {
	Source        SourceStore
	Results       *blobs.Service
	Index         store.AnalysisIndex
	Renderer      renderer.Renderer
	Locker        lock.Locker
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	SourceTimeout time.Duration
	Now           func() time.Time
}

// Service is the derived-artifact cache.
type Service struct {
	source        SourceStore
	results       *blobs.Service
	index         store.AnalysisIndex
	renderer      renderer.Renderer
	locker        lock.Locker
	metrics       *metrics.Metrics
	logger        *slog.Logger
	sourceTimeout time.Duration
	now           func() time.Time

	flight singleflight.Group
}

// NewService validates cfg and builds a Service.
func NewService(cfg Config) (*Service, error) {
	switch {
	case cfg.Source == nil:
		return nil, fmt.Errorf("source store is required")
	case cfg.Results == nil:
		return nil, fmt.Errorf("result blob service is required")
	case cfg.Index == nil:
		return nil, fmt.Errorf("analysis index is required")
	case cfg.Renderer == nil:
		return nil, fmt.Errorf("renderer is required")
	}
	s := &Service{
		source:        cfg.Source,
		results:       cfg.Results,
		index:         cfg.Index,
		renderer:      cfg.Renderer,
		locker:        cfg.Locker,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		sourceTimeout: cfg.SourceTimeout,
		now:           cfg.Now,
	}
	if s.locker == nil {
		s.locker = lock.Nop{}
	}
	if s.sourceTimeout <= 0 {
		s.sourceTimeout = DefaultSourceTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Analyze returns the analysis for the content of sourceID, computing it
// only when no analysis exists for that content hash. Concurrent misses for
// one hash share a single computation per process. A caller that gives up
// stops waiting but does not cancel the computation.
func (s *Service) Analyze(ctx context.Context, sourceID string) (*models.Analysis, error) {
	const op = "analysis.analyze"
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return nil, apperr.Errorf(op, apperr.KindInvalidInput, "source id is required")
	}

	meta, err := s.sourceMetadata(ctx, sourceID)
	if err != nil {
		s.metrics.Analyze(metrics.AnalyzeError)
		return nil, err
	}
	hash := meta.ContentHash

	cached, err := s.index.GetAnalysisByContentHash(ctx, hash)
	if err != nil {
		s.metrics.Analyze(metrics.AnalyzeError)
		return nil, apperr.E(op, apperr.KindInternal, err)
	}
	if cached != nil {
		s.metrics.Analyze(metrics.AnalyzeHit)
		s.log().Debug("analysis cache hit", "source_id", sourceID, "content_hash", hash,
			"analysis_id", cached.ID, "state", models.AnalysisCached)
		return cached, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(hash, func() (any, error) {
		return s.compute(detached, sourceID, meta)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.Analysis), nil
	}
}

func (s *Service) compute(ctx context.Context, sourceID string, meta *models.Blob) (*models.Analysis, error) {
	const op = "analysis.compute"
	hash := meta.ContentHash
	logger := s.log().With("source_id", sourceID, "content_hash", hash)

	release, err := s.locker.Acquire(ctx, hash)
	switch {
	case err == nil:
		defer release()
		// Another instance may have finished while we waited.
		cached, err := s.index.GetAnalysisByContentHash(ctx, hash)
		if err != nil {
			s.metrics.Analyze(metrics.AnalyzeError)
			return nil, apperr.E(op, apperr.KindInternal, err)
		}
		if cached != nil {
			s.metrics.Analyze(metrics.AnalyzeHit)
			logger.Debug("analysis cached by another instance", "analysis_id", cached.ID, "state", models.AnalysisCached)
			return cached, nil
		}
	case errors.Is(err, lock.ErrNotAcquired):
		logger.Warn("analysis lock still held, computing without it")
	default:
		logger.Warn("analysis lock unavailable, computing without it", "error", err)
	}

	logger.Info("analysis cache miss", "state", models.AnalysisComputing)
	rec, created, err := s.computeAndPersist(ctx, sourceID, meta)
	if err != nil {
		s.metrics.Analyze(metrics.AnalyzeError)
		logger.Warn("analysis failed", "kind", apperr.KindOf(err), "error", err, "state", models.AnalysisUnseen)
		return nil, err
	}
	if !created {
		s.metrics.Analyze(metrics.AnalyzeConflict)
		logger.Info("analysis race resolved", "analysis_id", rec.ID, "kind", apperr.KindConflictResolved,
			"state", models.AnalysisCached)
		return rec, nil
	}
	s.metrics.Analyze(metrics.AnalyzeMiss)
	logger.Info("analysis stored", "analysis_id", rec.ID, "result_blob_id", rec.ResultBlobID,
		"cloud_blob_id", rec.CloudBlobID, "state", models.AnalysisCached)
	return rec, nil
}

// computeAndPersist runs the expensive path. Nothing is written before the
// image is rendered, so a failed render leaves no records behind.
func (s *Service) computeAndPersist(ctx context.Context, sourceID string, meta *models.Blob) (*models.Analysis, bool, error) {
	const op = "analysis.compute"
	hash := meta.ContentHash

	data, err := s.sourceContent(ctx, sourceID)
	if err != nil {
		return nil, false, err
	}
	if got := blobs.HashContent(data); got != hash {
		return nil, false, apperr.Errorf(op, apperr.KindSourceContentUnavailable,
			"source %s content hash %s does not match metadata %s", sourceID, got, hash)
	}

	text := Decode(data)
	summary := FormatStats(ComputeStats(text))

	img, err := s.renderer.Render(ctx, text)
	if err != nil {
		if !apperr.Is(err, apperr.KindUpstreamTimeout) {
			err = apperr.E(op, apperr.KindRenderFailed, err)
		}
		return nil, false, err
	}
	if len(img) == 0 {
		return nil, false, apperr.Errorf(op, apperr.KindRenderFailed, "renderer returned an empty image")
	}

	pctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	stamp := s.now().UTC().Format(stampLayout)
	resultBlob, err := s.results.Store(pctx, []byte(summary), fmt.Sprintf("analysis_%s_%s.txt", hash, stamp))
	if err != nil {
		return nil, false, err
	}
	cloudBlob, err := s.results.Store(pctx, img, fmt.Sprintf("word-cloud_%s_%s.png", hash, stamp))
	if err != nil {
		return nil, false, err
	}

	rec, created, err := s.index.CreateAnalysis(pctx, &models.Analysis{
		OriginalContentHash: hash,
		AnalysisText:        summary,
		ResultBlobID:        resultBlob.ID,
		CloudBlobID:         cloudBlob.ID,
	})
	if err != nil {
		return nil, false, apperr.E(op, apperr.KindInternal, fmt.Errorf("index analysis: %w", err))
	}
	return rec, created, nil
}

// Get returns one analysis by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Analysis, error) {
	const op = "analysis.get"
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.Errorf(op, apperr.KindInvalidInput, "analysis id is required")
	}
	rec, err := s.index.GetAnalysis(ctx, id)
	if err != nil {
		return nil, apperr.E(op, apperr.KindInternal, err)
	}
	if rec == nil {
		return nil, apperr.Errorf(op, apperr.KindNotFound, "analysis %s not found", id)
	}
	return rec, nil
}

// FetchResultFile opens the analysis text. id is an analysis id or the id
// of a blob in the cache's own store.
func (s *Service) FetchResultFile(ctx context.Context, id string) (*models.Blob, io.ReadCloser, error) {
	return s.openArtifact(ctx, id, func(a *models.Analysis) string { return a.ResultBlobID })
}

// FetchCloudFile opens the word-cloud image. id is an analysis id or the id
// of a blob in the cache's own store.
func (s *Service) FetchCloudFile(ctx context.Context, id string) (*models.Blob, io.ReadCloser, error) {
	return s.openArtifact(ctx, id, func(a *models.Analysis) string { return a.CloudBlobID })
}

// CloudForSource opens the word cloud of an already analyzed source. It
// never starts a computation.
func (s *Service) CloudForSource(ctx context.Context, sourceID string) (*models.Blob, io.ReadCloser, error) {
	const op = "analysis.cloud_for_source"
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return nil, nil, apperr.Errorf(op, apperr.KindInvalidInput, "source id is required")
	}
	meta, err := s.sourceMetadata(ctx, sourceID)
	if err != nil {
		return nil, nil, err
	}
	rec, err := s.index.GetAnalysisByContentHash(ctx, meta.ContentHash)
	if err != nil {
		return nil, nil, apperr.E(op, apperr.KindInternal, err)
	}
	if rec == nil {
		return nil, nil, apperr.Errorf(op, apperr.KindNotFound, "source %s has not been analyzed", sourceID)
	}
	return s.results.Open(ctx, rec.CloudBlobID)
}

func (s *Service) openArtifact(ctx context.Context, id string, pick func(*models.Analysis) string) (*models.Blob, io.ReadCloser, error) {
	const op = "analysis.fetch_file"
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil, apperr.Errorf(op, apperr.KindInvalidInput, "id is required")
	}
	rec, err := s.index.GetAnalysis(ctx, id)
	if err != nil {
		return nil, nil, apperr.E(op, apperr.KindInternal, err)
	}
	if rec != nil {
		id = pick(rec)
	}
	return s.results.Open(ctx, id)
}

func (s *Service) sourceMetadata(ctx context.Context, sourceID string) (*models.Blob, error) {
	const op = "analysis.source_metadata"
	ctx, cancel := context.WithTimeout(ctx, s.sourceTimeout)
	defer cancel()

	meta, err := s.source.GetMetadata(ctx, sourceID)
	if err != nil {
		switch {
		case apperr.Is(err, apperr.KindNotFound):
			return nil, apperr.E(op, apperr.KindSourceNotFound, err)
		case apperr.Is(err, apperr.KindInvalidInput):
			return nil, err
		case apperr.Is(err, apperr.KindUpstreamTimeout) || apperr.IsTimeout(err):
			return nil, apperr.E(op, apperr.KindUpstreamTimeout, err)
		default:
			return nil, apperr.E(op, apperr.KindSourceContentUnavailable, err)
		}
	}
	if meta == nil || strings.TrimSpace(meta.ContentHash) == "" {
		return nil, apperr.Errorf(op, apperr.KindSourceContentUnavailable, "source %s metadata has no content hash", sourceID)
	}
	meta.ContentHash = strings.ToLower(strings.TrimSpace(meta.ContentHash))
	return meta, nil
}

func (s *Service) sourceContent(ctx context.Context, sourceID string) ([]byte, error) {
	const op = "analysis.source_content"
	ctx, cancel := context.WithTimeout(ctx, s.sourceTimeout)
	defer cancel()

	data, err := s.source.Fetch(ctx, sourceID)
	if err != nil {
		if apperr.Is(err, apperr.KindUpstreamTimeout) || apperr.IsTimeout(err) {
			return nil, apperr.E(op, apperr.KindUpstreamTimeout, err)
		}
		return nil, apperr.E(op, apperr.KindSourceContentUnavailable, err)
	}
	if len(data) == 0 {
		return nil, apperr.Errorf(op, apperr.KindSourceContentUnavailable, "source %s returned no content", sourceID)
	}
	return data, nil
}

func (s *Service) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
