package store

import (
	"context"

	"docpipe/internal/models"
)

// BlobIndex is the metadata persistence surface for blobs. Uniqueness of
// content_hash is enforced by the storage layer, not by callers.
type BlobIndex interface {
	CreateBlob(ctx context.Context, blob *models.Blob) (*models.Blob, bool, error)
	GetBlob(ctx context.Context, id string) (*models.Blob, error)
	GetBlobByContentHash(ctx context.Context, hash string) (*models.Blob, error)
	CountBlobs(ctx context.Context) (int, error)
}

// AnalysisIndex is the persistence surface for memoized analyses.
type AnalysisIndex interface {
	CreateAnalysis(ctx context.Context, analysis *models.Analysis) (*models.Analysis, bool, error)
	GetAnalysis(ctx context.Context, id string) (*models.Analysis, error)
	GetAnalysisByContentHash(ctx context.Context, hash string) (*models.Analysis, error)
	CountAnalyses(ctx context.Context) (int, error)
}

var (
	_ BlobIndex     = (*Store)(nil)
	_ AnalysisIndex = (*Store)(nil)
)
