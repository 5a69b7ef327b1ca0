package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotExist reports that no physical object exists for a key.
var ErrNotExist = errors.New("blob object does not exist")

// WriteResult describes one persisted object.
type WriteResult struct {
	Key       string
	SHA256    string
	SizeBytes int64
}

// BlobStore is the byte-storage abstraction behind the blob index.
type BlobStore interface {
	Write(ctx context.Context, name string, r io.Reader) (WriteResult, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}
