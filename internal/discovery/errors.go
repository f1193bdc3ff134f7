package discovery

import "errors"

// Kind is the error taxonomy from spec.md §7 — a classification, not a Go
// type hierarchy, so callers switch on Kind rather than type-asserting.
type Kind string

const (
	KindCancelled  Kind = "cancelled"
	KindOverloaded Kind = "overloaded"
	KindTransient  Kind = "transient"
	KindParseError Kind = "parse_error"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindFatal      Kind = "fatal"
)

// Error wraps an underlying error with a taxonomy Kind so callers can decide
// retry/fallback policy without string-matching messages.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified Error.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the Kind from err, defaulting to Fatal when err isn't a
// classified *Error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindFatal
}

// Sentinels for Session Store lookup failures (spec.md §4.1, §6).
var (
	ErrNotFound = errors.New("discovery: not found")
	ErrForbidden = errors.New("discovery: forbidden")
	ErrClosed   = errors.New("discovery: session closed")
)
