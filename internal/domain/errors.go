package domain

import "errors"

// ErrorKind classifies engine failures for the transport layer.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"   // malformed input, no side effects
	KindConflict    ErrorKind = "conflict"     // interval unavailable
	KindPolicy      ErrorKind = "policy"       // advance/duration/per-email cap
	KindRateLimited ErrorKind = "rate_limited" // deliberately non-specific
	KindNotFound    ErrorKind = "not_found"
	KindStorage     ErrorKind = "storage" // transient, caller may retry the whole request
)

// Error is the engine's user-facing failure type. Message is safe to show to
// the caller verbatim.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

func Validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

func Conflict(msg string) error { return &Error{Kind: KindConflict, Message: msg} }

func Policy(msg string) error { return &Error{Kind: KindPolicy, Message: msg} }

func RateLimited() error {
	return &Error{Kind: KindRateLimited, Message: "too many requests, try again later"}
}

func NotFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

func Storage(cause error) error {
	return &Error{Kind: KindStorage, Message: "temporary storage failure, retry the request", cause: cause}
}

// KindOf extracts the error kind, defaulting to storage for unclassified
// errors so transport surfaces them as 500s.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindStorage
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
