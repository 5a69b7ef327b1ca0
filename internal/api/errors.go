package api

import (
	"errors"
	"fmt"
	"net/http"

	"docpipe/internal/apperr"
)

// APIError is a structured error returned by a docpipe daemon.
type APIError struct {
	Status    int
	Code      string
	ErrorCode int
	Message   string
	Detail    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Detail != "" && e.Detail != e.Message {
		msg = e.Detail
	}
	if e.Code != "" && msg != "" {
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg != "" {
		return msg
	}
	if e.Status > 0 {
		return fmt.Sprintf("api error: %d", e.Status)
	}
	return "api error"
}

// Kind maps the response onto an error kind, preferring the server's code.
func (e *APIError) Kind() apperr.Kind {
	if e == nil {
		return ""
	}
	switch kind := apperr.Kind(e.Code); kind {
	case apperr.KindInvalidInput, apperr.KindNotFound, apperr.KindStorageCorruption,
		apperr.KindSourceNotFound, apperr.KindSourceContentUnavailable,
		apperr.KindRenderFailed, apperr.KindUpstreamTimeout:
		return kind
	}
	switch e.Status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return apperr.KindInvalidInput
	case http.StatusNotFound:
		return apperr.KindNotFound
	case http.StatusGatewayTimeout:
		return apperr.KindUpstreamTimeout
	default:
		return apperr.KindInternal
	}
}

// Classify wraps a client error with the matching kind. Transport
// timeouts become upstream timeouts.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apperr.E(op, apiErr.Kind(), err)
	}
	if apperr.IsTimeout(err) {
		return apperr.E(op, apperr.KindUpstreamTimeout, err)
	}
	return apperr.E(op, apperr.KindInternal, err)
}
