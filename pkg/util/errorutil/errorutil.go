package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

const errorTypeBase = "https://fieldsight.io/errors/"

// DomainError standardizes application errors. It renders as an RFC 7807
// problem document at the HTTP boundary.
type DomainError struct {
	Code              string
	Title             string
	Detail            string
	HTTPStatus        int
	RetryAfterSeconds int
	Err               error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Type returns the problem-document type URI for this error.
func (e *DomainError) Type() string {
	return errorTypeBase + e.Code
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, title, detail string, status int) *DomainError {
	return &DomainError{Code: code, Title: title, Detail: detail, HTTPStatus: status}
}

// NewValidation flags malformed caller input.
func NewValidation(detail string) error {
	return NewDomainError("validation", "Bad Request", detail, http.StatusBadRequest)
}

// NewAuthentication covers bad credentials, invalid or expired or
// wrong-kind tokens, inactive accounts, and tenant mismatches.
func NewAuthentication(detail string) error {
	return NewDomainError("authentication", "Unauthorized", detail, http.StatusUnauthorized)
}

// NewForbidden flags an authenticated caller lacking permission.
func NewForbidden(detail string) error {
	return NewDomainError("forbidden", "Forbidden", detail, http.StatusForbidden)
}

// NewNotFound flags a missing resource.
func NewNotFound(resource string) error {
	return NewDomainError("not-found", "Not Found", fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// NewConflict flags a duplicate identity on registration.
func NewConflict(detail string) error {
	return NewDomainError("conflict", "Conflict", detail, http.StatusConflict)
}

// NewRateLimitExceeded flags an exhausted window budget. The retry hint
// equals the window length.
func NewRateLimitExceeded(detail string, retryAfterSeconds int) error {
	return &DomainError{
		Code:              "rate-limit",
		Title:             "Too Many Requests",
		Detail:            detail,
		HTTPStatus:        http.StatusTooManyRequests,
		RetryAfterSeconds: retryAfterSeconds,
	}
}

// NewInternal wraps an unexpected failure without exposing its cause.
func NewInternal(err error) error {
	return &DomainError{
		Code:       "internal",
		Title:      "Internal Server Error",
		Detail:     "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to a DomainError, defaulting to a
// generic internal failure.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	internal := &DomainError{
		Code:       "internal",
		Title:      "Internal Server Error",
		Detail:     "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
	return internal
}

// IsAuthentication reports whether err is an authentication failure.
func IsAuthentication(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.HTTPStatus == http.StatusUnauthorized
}

// IsConflict reports whether err is a conflict failure.
func IsConflict(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.HTTPStatus == http.StatusConflict
}
