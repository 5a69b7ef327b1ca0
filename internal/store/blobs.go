package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"docpipe/internal/models"
)

const blobColumns = "id, logical_name, storage_location, content_hash, size_bytes, media_type, created_at"

const maxInsertIDAttempts = 3

// CreateBlob inserts blob unless a row with the same content hash exists.
// It returns the canonical row for the hash and whether this call created it.
// When created is false the returned row belongs to another writer.
func (s *Store) CreateBlob(ctx context.Context, blob *models.Blob) (*models.Blob, bool, error) {
	if blob == nil {
		return nil, false, fmt.Errorf("blob is required")
	}
	blob.ContentHash = strings.ToLower(strings.TrimSpace(blob.ContentHash))
	blob.StorageLocation = strings.TrimSpace(blob.StorageLocation)
	if blob.ContentHash == "" {
		return nil, false, fmt.Errorf("content_hash is required")
	}
	if blob.StorageLocation == "" {
		return nil, false, fmt.Errorf("storage_location is required")
	}
	if blob.SizeBytes < 0 {
		return nil, false, fmt.Errorf("size_bytes must be >= 0")
	}
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = time.Now().UTC()
	}

	generateID := strings.TrimSpace(blob.ID) == ""
	for attempt := 0; ; attempt++ {
		if generateID {
			id, err := GenerateBlobID(func(id string) (bool, error) {
				return s.rowExists(ctx, "blobs", id)
			})
			if err != nil {
				return nil, false, err
			}
			blob.ID = id
		}

		res, err := s.db.ExecContext(ctx, `
			INSERT INTO blobs (`+blobColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(content_hash) DO NOTHING
		`, blob.ID, blob.LogicalName, blob.StorageLocation, blob.ContentHash, blob.SizeBytes, nullIfEmpty(blob.MediaType), formatTime(blob.CreatedAt))
		if err != nil {
			// The id raced with another insert; the hash conflict is handled above.
			if generateID && isUniqueConstraint(err) && attempt+1 < maxInsertIDAttempts {
				continue
			}
			return nil, false, err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return nil, false, err
		}

		canonical, err := s.GetBlobByContentHash(ctx, blob.ContentHash)
		if err != nil {
			return nil, false, err
		}
		if canonical == nil {
			return nil, false, fmt.Errorf("blob not found after insert")
		}
		return canonical, affected == 1, nil
	}
}

// GetBlob returns one blob by id, or nil when absent.
func (s *Store) GetBlob(ctx context.Context, id string) (*models.Blob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE id = ?`, id)
	return scanBlob(row)
}

// GetBlobByContentHash returns one blob by digest, or nil when absent.
func (s *Store) GetBlobByContentHash(ctx context.Context, hash string) (*models.Blob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE content_hash = ?`, strings.ToLower(strings.TrimSpace(hash)))
	return scanBlob(row)
}

// CountBlobs returns the number of indexed blobs.
func (s *Store) CountBlobs(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM blobs").Scan(&n)
	return n, err
}

func (s *Store) rowExists(ctx context.Context, table, id string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ? LIMIT 1", id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func scanBlob(scanner interface {
	Scan(dest ...any) error
}) (*models.Blob, error) {
	blob := models.Blob{}
	var mediaType sql.NullString
	var createdAt string

	err := scanner.Scan(&blob.ID, &blob.LogicalName, &blob.StorageLocation, &blob.ContentHash, &blob.SizeBytes, &mediaType, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	blob.MediaType = mediaType.String

	parsedCreated, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	blob.CreatedAt = parsedCreated

	return &blob, nil
}
