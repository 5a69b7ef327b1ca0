package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"docpipe/internal/api"
	"docpipe/internal/models"
)

const uploadFormField = "file"

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	data, name, err := s.readUpload(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	blob, err := s.blobs.Store(r.Context(), data, name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.UploadResponse{ID: blob.ID, ContentHash: blob.ContentHash})
}

// readUpload accepts either a multipart form with a "file" field or a raw
// body named by the "name" query parameter.
func (s *Server) readUpload(r *http.Request) ([]byte, string, error) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, "", s.classifyBodyError(err)
		}
		return data, name, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, "", s.classifyBodyError(err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		return nil, "", badRequestCode(fmt.Errorf("%s is required", uploadFormField), ErrCodeMissingRequired)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", s.classifyBodyError(err)
	}
	return data, firstNonEmpty(name, header.Filename), nil
}

func (s *Server) classifyBodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		return tooLarge(fmt.Errorf("upload exceeds %d bytes", s.maxUploadBytes))
	}
	return badRequest(err)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r, validateBlobID)
	if !ok {
		return
	}
	blob, rc, err := s.blobs.Open(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeFile(w, r, blob, rc)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r, validateBlobID)
	if !ok {
		return
	}
	blob, err := s.blobs.GetMetadata(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toMetadataResponse(blob))
}

func toMetadataResponse(blob *models.Blob) api.BlobMetadataResponse {
	return api.BlobMetadataResponse{
		ID:          blob.ID,
		LogicalName: blob.LogicalName,
		ContentHash: blob.ContentHash,
		SizeBytes:   blob.SizeBytes,
		MediaType:   blob.MediaType,
		CreatedAt:   blob.CreatedAt,
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
