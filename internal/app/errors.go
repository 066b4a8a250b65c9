package app

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken means the bearer token could not be resolved to an
	// identity. Distinct from ErrAccessDenied so clients can tell "sign in
	// again" apart from "you are not on the list".
	ErrInvalidToken = errors.New("invalid access token")
	// ErrAccessDenied means the identity resolved but is not allow-listed.
	ErrAccessDenied = errors.New("access denied")
	// ErrReportNotFound means no report row (or no PDF reference) exists.
	ErrReportNotFound = errors.New("report not found")
	// ErrMailNotConfigured means the outbound email API key is missing.
	ErrMailNotConfigured = errors.New("contact relay is not configured")
)

// ValidationError describes a rejected submission field.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// UpstreamError wraps a storage or database failure. Body carries the
// upstream error text verbatim; the caller is an authorized operator, so
// surfacing it aids debugging more than it risks.
type UpstreamError struct {
	Op   string
	Body string
}

func (e *UpstreamError) Error() string {
	if e.Body != "" {
		return e.Body
	}
	return e.Op + " failed"
}
