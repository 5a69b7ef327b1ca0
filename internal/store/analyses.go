package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"docpipe/internal/models"
)

const analysisColumns = "id, original_content_hash, analysis_text, result_blob_id, cloud_blob_id, created_at"

// CreateAnalysis inserts analysis unless one already exists for its
// original content hash. It returns the canonical row and whether this call
// created it.
func (s *Store) CreateAnalysis(ctx context.Context, analysis *models.Analysis) (*models.Analysis, bool, error) {
	if analysis == nil {
		return nil, false, fmt.Errorf("analysis is required")
	}
	analysis.OriginalContentHash = strings.ToLower(strings.TrimSpace(analysis.OriginalContentHash))
	if analysis.OriginalContentHash == "" {
		return nil, false, fmt.Errorf("original_content_hash is required")
	}
	if strings.TrimSpace(analysis.ResultBlobID) == "" || strings.TrimSpace(analysis.CloudBlobID) == "" {
		return nil, false, fmt.Errorf("result_blob_id and cloud_blob_id are required")
	}
	if analysis.CreatedAt.IsZero() {
		analysis.CreatedAt = time.Now().UTC()
	}

	generateID := strings.TrimSpace(analysis.ID) == ""
	for attempt := 0; ; attempt++ {
		if generateID {
			id, err := GenerateAnalysisID(func(id string) (bool, error) {
				return s.rowExists(ctx, "analyses", id)
			})
			if err != nil {
				return nil, false, err
			}
			analysis.ID = id
		}

		res, err := s.db.ExecContext(ctx, `
			INSERT INTO analyses (`+analysisColumns+`)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(original_content_hash) DO NOTHING
		`, analysis.ID, analysis.OriginalContentHash, analysis.AnalysisText, analysis.ResultBlobID, analysis.CloudBlobID, formatTime(analysis.CreatedAt))
		if err != nil {
			if generateID && isUniqueConstraint(err) && attempt+1 < maxInsertIDAttempts {
				continue
			}
			return nil, false, err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return nil, false, err
		}

		canonical, err := s.GetAnalysisByContentHash(ctx, analysis.OriginalContentHash)
		if err != nil {
			return nil, false, err
		}
		if canonical == nil {
			return nil, false, fmt.Errorf("analysis not found after insert")
		}
		return canonical, affected == 1, nil
	}
}

// GetAnalysis returns one analysis by id, or nil when absent.
func (s *Store) GetAnalysis(ctx context.Context, id string) (*models.Analysis, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)
	return scanAnalysis(row)
}

// GetAnalysisByContentHash returns the analysis for a source digest, or nil.
func (s *Store) GetAnalysisByContentHash(ctx context.Context, hash string) (*models.Analysis, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE original_content_hash = ?`, strings.ToLower(strings.TrimSpace(hash)))
	return scanAnalysis(row)
}

// CountAnalyses returns the number of stored analyses.
func (s *Store) CountAnalyses(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM analyses").Scan(&n)
	return n, err
}

func scanAnalysis(scanner interface {
	Scan(dest ...any) error
}) (*models.Analysis, error) {
	analysis := models.Analysis{}
	var createdAt string

	err := scanner.Scan(&analysis.ID, &analysis.OriginalContentHash, &analysis.AnalysisText, &analysis.ResultBlobID, &analysis.CloudBlobID, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	parsedCreated, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	analysis.CreatedAt = parsedCreated

	return &analysis, nil
}
