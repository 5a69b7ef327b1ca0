package api

import "time"

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// HealthResponse reports daemon liveness.
type HealthResponse struct {
	Status string `json:"status" yaml:"status"`
}

// UploadResponse identifies a stored blob.
type UploadResponse struct {
	ID          string `json:"id" yaml:"id"`
	ContentHash string `json:"content_hash" yaml:"content_hash"`
}

// BlobMetadataResponse describes a stored blob without its bytes.
type BlobMetadataResponse struct {
	ID          string    `json:"id" yaml:"id"`
	LogicalName string    `json:"logical_name" yaml:"logical_name"`
	ContentHash string    `json:"content_hash" yaml:"content_hash"`
	SizeBytes   int64     `json:"size_bytes" yaml:"size_bytes"`
	MediaType   string    `json:"media_type,omitempty" yaml:"media_type,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// AnalysisResponse is one memoized analysis.
type AnalysisResponse struct {
	ID                  string    `json:"id" yaml:"id"`
	OriginalContentHash string    `json:"original_content_hash" yaml:"original_content_hash"`
	AnalysisText        string    `json:"analysis_text" yaml:"analysis_text"`
	ResultBlobID        string    `json:"result_blob_id" yaml:"result_blob_id"`
	CloudBlobID         string    `json:"cloud_blob_id" yaml:"cloud_blob_id"`
	CreatedAt           time.Time `json:"created_at" yaml:"created_at"`
}

// Download is a fetched file.
type Download struct {
	Filename    string
	ContentType string
	SizeBytes   int64
}
