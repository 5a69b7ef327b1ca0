package models

import "time"

// Blob is one physically stored byte sequence, indexed by its content hash.
// A store holds at most one Blob per distinct ContentHash.
type Blob struct {
	ID              string    `json:"id" yaml:"id"`
	LogicalName     string    `json:"logical_name" yaml:"logical_name"`
	StorageLocation string    `json:"storage_location" yaml:"storage_location"`
	ContentHash     string    `json:"content_hash" yaml:"content_hash"`
	SizeBytes       int64     `json:"size_bytes" yaml:"size_bytes"`
	MediaType       string    `json:"media_type,omitempty" yaml:"media_type,omitempty"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
}
