package models

import "time"

// Analysis is the memoized outcome of analyzing one distinct source content.
//
// ResultBlobID and CloudBlobID reference blobs owned by the analysis
// service's own store; both exist before the Analysis row is written.
type Analysis struct {
	ID                  string    `json:"id" yaml:"id"`
	OriginalContentHash string    `json:"original_content_hash" yaml:"original_content_hash"`
	AnalysisText        string    `json:"analysis_text" yaml:"analysis_text"`
	ResultBlobID        string    `json:"result_blob_id" yaml:"result_blob_id"`
	CloudBlobID         string    `json:"cloud_blob_id" yaml:"cloud_blob_id"`
	CreatedAt           time.Time `json:"created_at" yaml:"created_at"`
}

// AnalysisState is the lifecycle of one content hash inside the analysis
// service. Computing is never persisted.
type AnalysisState string

const (
	AnalysisUnseen    AnalysisState = "unseen"
	AnalysisComputing AnalysisState = "computing"
	AnalysisCached    AnalysisState = "cached"
)
