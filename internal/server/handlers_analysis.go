package server

import (
	"net/http"

	"docpipe/internal/api"
	"docpipe/internal/models"
)

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := s.pathIDOrBadRequest(w, r, validateBlobID)
	if !ok {
		return
	}
	rec, err := s.analysis.Analyze(r.Context(), sourceID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAnalysisResponse(rec))
}

// handleAnalyzeText analyzes the source and returns the analysis text file.
func (s *Server) handleAnalyzeText(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := s.pathIDOrBadRequest(w, r, validateBlobID)
	if !ok {
		return
	}
	rec, err := s.analysis.Analyze(r.Context(), sourceID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	blob, rc, err := s.analysis.FetchResultFile(r.Context(), rec.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeFile(w, r, blob, rc)
}

func (s *Server) handleSourceCloud(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := s.pathIDOrBadRequest(w, r, validateBlobID)
	if !ok {
		return
	}
	blob, rc, err := s.analysis.CloudForSource(r.Context(), sourceID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeFile(w, r, blob, rc)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r, validateAnalysisID)
	if !ok {
		return
	}
	rec, err := s.analysis.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAnalysisResponse(rec))
}

func (s *Server) handleAnalysisResult(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r, validateArtifactID)
	if !ok {
		return
	}
	blob, rc, err := s.analysis.FetchResultFile(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeFile(w, r, blob, rc)
}

func (s *Server) handleAnalysisCloud(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r, validateArtifactID)
	if !ok {
		return
	}
	blob, rc, err := s.analysis.FetchCloudFile(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeFile(w, r, blob, rc)
}

func toAnalysisResponse(rec *models.Analysis) api.AnalysisResponse {
	return api.AnalysisResponse{
		ID:                  rec.ID,
		OriginalContentHash: rec.OriginalContentHash,
		AnalysisText:        rec.AnalysisText,
		ResultBlobID:        rec.ResultBlobID,
		CloudBlobID:         rec.CloudBlobID,
		CreatedAt:           rec.CreatedAt,
	}
}
