package server

import (
	"net/http"

	"docpipe/internal/metrics"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and metrics.
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(s.gatherer))
	}

	if s.blobs != nil {
		mux.HandleFunc("POST /v1/files", s.handleUpload)
		mux.HandleFunc("GET /v1/files/{id}", s.handleDownload)
		mux.HandleFunc("GET /v1/files/{id}/metadata", s.handleMetadata)
	}

	if s.analysis != nil {
		// Keyed by source blob.
		mux.HandleFunc("POST /v1/sources/{id}/analysis", s.handleAnalyze)
		mux.HandleFunc("GET /v1/sources/{id}/analysis/result", s.handleAnalyzeText)
		mux.HandleFunc("GET /v1/sources/{id}/word-cloud", s.handleSourceCloud)

		// Keyed by analysis.
		mux.HandleFunc("GET /v1/analyses/{id}", s.handleGetAnalysis)
		mux.HandleFunc("GET /v1/analyses/{id}/result", s.handleAnalysisResult)
		mux.HandleFunc("GET /v1/analyses/{id}/cloud", s.handleAnalysisCloud)
	}

	return mux
}
