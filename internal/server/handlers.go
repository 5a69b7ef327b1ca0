package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"docpipe/internal/api"
	"docpipe/internal/apperr"
	"docpipe/internal/models"
)

const fallbackMediaType = "application/octet-stream"

func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	code := errorCode(err)
	numericCode := errorNumericCode(status, err)
	detail := apperr.Message(err)

	fields := []any{"status", status, "code", code, "error_code", numericCode, "error", err}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	}

	switch {
	case status >= 500:
		s.log().Error("request error", fields...)
		detail = publicDetail(apperr.KindOf(err))
	case status >= 400:
		s.log().Debug("request rejected", fields...)
	}

	s.writeJSON(w, status, api.ErrorResponse{
		Status:    status,
		Message:   http.StatusText(status),
		Detail:    detail,
		Code:      code,
		ErrorCode: numericCode,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorReq(w, r, httpStatusFromError(err), err)
}

// writeFile streams rc as an attachment named after the blob.
func (s *Server) writeFile(w http.ResponseWriter, r *http.Request, blob *models.Blob, rc io.ReadCloser) {
	defer rc.Close()

	mediaType := blob.MediaType
	if mediaType == "" {
		mediaType = fallbackMediaType
	}
	w.Header().Set("Content-Type", mediaType)
	if blob.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(blob.SizeBytes, 10))
	}
	if name := strings.TrimSpace(blob.LogicalName); name != "" {
		if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": name}); disposition != "" {
			w.Header().Set("Content-Disposition", disposition)
		}
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.log().Warn("stream file", "id", blob.ID, "path", r.URL.Path, "error", err)
	}
}

// apiError is a transport-level failure that never reached a service.
type apiError struct {
	status  int
	code    string
	errCode int
	err     error
}

func (e apiError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error {
	return e.err
}

func makeAPIError(status int, code string, errCode int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	var existing apiError
	if errors.As(err, &existing) {
		if existing.status != 0 {
			return existing
		}
	}

	return apiError{status: status, code: code, errCode: errCode, err: err}
}

func badRequest(err error) error {
	return badRequestCode(err, ErrCodeInvalidArgument)
}

func badRequestCode(err error, code int) error {
	return makeAPIError(http.StatusBadRequest, string(apperr.KindInvalidInput), code, err)
}

func tooLarge(err error) error {
	return makeAPIError(http.StatusRequestEntityTooLarge, string(apperr.KindInvalidInput), ErrCodeRequestTooLarge, err)
}

func httpStatusFromError(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		return apiErr.status
	}
	return statusForKind(apperr.KindOf(err))
}

func errorCode(err error) string {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.code != "" {
		return apiErr.code
	}
	return string(apperr.KindOf(err))
}

func errorNumericCode(status int, err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		if apiErr.errCode > 0 {
			return apiErr.errCode
		}
		return defaultErrorCodeByStatus(status)
	}
	return errorCodeForKind(apperr.KindOf(err))
}

func (s *Server) pathIDOrBadRequest(w http.ResponseWriter, r *http.Request, valid func(string) bool) (string, bool) {
	id, err := requirePathID(r, valid)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return "", false
	}
	return id, true
}

func requirePathID(r *http.Request, valid func(string) bool) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return "", badRequestCode(fmt.Errorf("id is required"), ErrCodeMissingRequired)
	}
	if !valid(id) {
		return "", badRequestCode(fmt.Errorf("invalid id %q", id), ErrCodeInvalidID)
	}
	return id, nil
}
