// Package apperr classifies failures of the blob and analysis services into
// a small, stable set of kinds that transports map onto status codes.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind is a coarse-grained categorization for errors.
type Kind string

const (
	KindInternal                 Kind = "internal"
	KindInvalidInput             Kind = "invalid_input"
	KindNotFound                 Kind = "not_found"
	KindStorageCorruption        Kind = "storage_corruption"
	KindSourceNotFound           Kind = "source_not_found"
	KindSourceContentUnavailable Kind = "source_content_unavailable"
	KindRenderFailed             Kind = "render_failed"
	KindUpstreamTimeout          Kind = "upstream_timeout"

	// KindConflictResolved marks a lost uniqueness race that was settled by
	// re-reading the winning row. It must not reach a caller.
	KindConflictResolved Kind = "conflict_resolved"
)

// Error wraps an underlying error with operation context and a kind.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	base := string(e.Kind)
	if e.Op != "" {
		base = e.Op + ": " + base
	}
	if e.Err != nil {
		base += ": " + e.Err.Error()
	}
	return base
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// E builds an *Error. A nil err is replaced by the kind name.
func E(op string, kind Kind, err error) error {
	if err == nil {
		err = errors.New(string(kind))
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Errorf builds an *Error with a formatted cause.
func Errorf(op string, kind Kind, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the outermost kind in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Reclassify replaces the kind of err while keeping its cause. Errors of
// other kinds than from are returned unchanged.
func Reclassify(op string, err error, from, to Kind) error {
	if !Is(err, from) {
		return err
	}
	return E(op, to, err)
}

// IsTimeout reports whether err came from an expired deadline, either a
// context deadline or a network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Message returns the cause text of the innermost classified error in
// err's chain, without operation or kind prefixes.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var last *Error
	for e := err; e != nil; e = errors.Unwrap(e) {
		if ae, ok := e.(*Error); ok {
			last = ae
		}
	}
	if last == nil {
		return err.Error()
	}
	if last.Err == nil {
		return string(last.Kind)
	}
	return last.Err.Error()
}
