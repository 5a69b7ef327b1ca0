package server

import (
	"net/http"

	"docpipe/internal/apperr"
)

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument = 1000
	ErrCodeRequestTooLarge = 1002
	ErrCodeInvalidID       = 1004
	ErrCodeMissingRequired = 1009
	ErrCodeEmptyContent    = 1015

	// Domain state (2xxx)
	ErrCodeBlobNotFound     = 2001
	ErrCodeAnalysisNotFound = 2005
	ErrCodeSourceNotFound   = 2006

	// Internal/system (4xxx)
	ErrCodeInternal          = 4001
	ErrCodeStoreFailure      = 4002
	ErrCodeStorageCorruption = 4006

	// Upstream (5xxx)
	ErrCodeSourceUnavailable = 5001
	ErrCodeRenderFailed      = 5002
	ErrCodeUpstreamTimeout   = 5003
)

// statusForKind is the stable HTTP mapping of error kinds.
func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindNotFound, apperr.KindSourceNotFound:
		return http.StatusNotFound
	case apperr.KindSourceContentUnavailable, apperr.KindRenderFailed:
		return http.StatusBadGateway
	case apperr.KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorCodeForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidInput:
		return ErrCodeInvalidArgument
	case apperr.KindNotFound:
		return ErrCodeBlobNotFound
	case apperr.KindSourceNotFound:
		return ErrCodeSourceNotFound
	case apperr.KindStorageCorruption:
		return ErrCodeStorageCorruption
	case apperr.KindSourceContentUnavailable:
		return ErrCodeSourceUnavailable
	case apperr.KindRenderFailed:
		return ErrCodeRenderFailed
	case apperr.KindUpstreamTimeout:
		return ErrCodeUpstreamTimeout
	default:
		return ErrCodeInternal
	}
}

// publicDetail is the fixed detail text of server-side failures. The wrapped
// error chain is logged, never returned.
func publicDetail(kind apperr.Kind) string {
	switch kind {
	case apperr.KindStorageCorruption:
		return "stored content is missing"
	case apperr.KindSourceContentUnavailable:
		return "source content is unavailable"
	case apperr.KindRenderFailed:
		return "word cloud rendering failed"
	case apperr.KindUpstreamTimeout:
		return "upstream service timed out"
	default:
		return "internal error"
	}
}

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeInvalidArgument
	case http.StatusNotFound:
		return ErrCodeBlobNotFound
	case http.StatusRequestEntityTooLarge:
		return ErrCodeRequestTooLarge
	case http.StatusInternalServerError:
		return ErrCodeInternal
	default:
		return 0
	}
}
