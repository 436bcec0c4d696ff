// Package errors defines the error taxonomy shared by every layer of the
// core, in the teacher's sentinel-plus-wrapper idiom so callers can use
// errors.Is / errors.As instead of string matching.
package errors

import "fmt"

// Code classifies an error into the taxonomy from spec §7.
type Code string

const (
	CodeBadRequest    Code = "bad_request"
	CodeNotFound      Code = "not_found"
	CodeAuthExhausted Code = "auth_exhausted"
	CodeUpstream      Code = "upstream_failure"
	CodeRateLimited   Code = "rate_limited"
	CodeBlobTooLarge  Code = "blob_too_large"
	CodeCancelled     Code = "cancelled"
	CodeStalled       Code = "stalled"
	CodeInternal      Code = "internal"
)

// Error is the concrete error type raised by this module. Cause may be nil.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, &Error{Code: CodeBadRequest}) match by code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// BadRequest builds a CodeBadRequest error.
func BadRequest(format string, args ...any) *Error { return newf(CodeBadRequest, format, args...) }

// NotFound builds a CodeNotFound error.
func NotFound(format string, args ...any) *Error { return newf(CodeNotFound, format, args...) }

// AuthExhausted wraps the aggregated cause from all three auth methods failing.
func AuthExhausted(cause error) *Error {
	return &Error{Code: CodeAuthExhausted, Message: "all authentication methods failed", Cause: cause}
}

// Upstream wraps a failed SocialClient call.
func Upstream(cause error) *Error {
	return &Error{Code: CodeUpstream, Message: "upstream call failed", Cause: cause}
}

// RateLimited wraps an upstream failure that specifically mandates backoff.
func RateLimited(cause error) *Error {
	return &Error{Code: CodeRateLimited, Message: "rate limited upstream", Cause: cause}
}

// BlobTooLarge reports a PostExecutor image upload that exceeded the cap and
// could not be downscaled to fit.
func BlobTooLarge(format string, args ...any) *Error {
	return newf(CodeBlobTooLarge, format, args...)
}

// Cancelled reports a lease revocation observed at a suspension point.
func Cancelled() *Error {
	return &Error{Code: CodeCancelled, Message: "job lease cancelled"}
}

// Stalled reports a queue-detected missed-renewal promotion to terminal failure.
func Stalled(attempts int) *Error {
	return newf(CodeStalled, "job stalled after %d missed lease renewals", attempts)
}

// Internal wraps an unexpected programmer error.
func Internal(cause error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", Cause: cause}
}

// CodeOf reports the taxonomy code for err, or CodeInternal if err is not one
// of this package's errors.
func CodeOf(err error) Code {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Code
	}
	return CodeInternal
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
