package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const (
	apiErrorTemplateConstant              = "%s failed with status %d (%s): %s"
	apiErrorWithoutStatusTemplateConstant = "%s failed (%s): %v"
	invalidInputErrorTemplateConstant     = "%s: %s"
)

// ErrorKind classifies platform failures by how callers should react to them.
type ErrorKind string

// Error kind enumerations.
const (
	// ErrorKindRateLimited asks the caller to slow down and retry.
	ErrorKindRateLimited ErrorKind = ErrorKind("rate_limited")

	// ErrorKindTargetGone reports a permanent failure tied to the target user or note.
	ErrorKindTargetGone ErrorKind = ErrorKind("target_gone")

	// ErrorKindTransient reports a failure that may succeed when retried.
	ErrorKindTransient ErrorKind = ErrorKind("transient")

	// ErrorKindFatal reports a failure that retrying cannot fix.
	ErrorKindFatal ErrorKind = ErrorKind("fatal")
)

// OperationName identifies a platform call.
type OperationName string

// Platform operations.
const (
	OperationRefreshToken  OperationName = OperationName("RefreshToken")
	OperationWikiPage      OperationName = OperationName("WikiPage")
	OperationCurrentUser   OperationName = OperationName("CurrentUser")
	OperationCreateNote    OperationName = OperationName("CreateNote")
	OperationListUserNotes OperationName = OperationName("ListUserNotes")
	OperationDeleteNote    OperationName = OperationName("DeleteNote")
)

// APIError wraps a failed platform call with its classification.
type APIError struct {
	Operation  OperationName
	StatusCode int
	Kind       ErrorKind
	Message    string
	Cause      error
}

// Error describes the failed call.
func (apiError APIError) Error() string {
	if apiError.StatusCode == 0 {
		return fmt.Sprintf(apiErrorWithoutStatusTemplateConstant, apiError.Operation, apiError.Kind, apiError.Cause)
	}
	return fmt.Sprintf(apiErrorTemplateConstant, apiError.Operation, apiError.StatusCode, apiError.Kind, apiError.Message)
}

// Unwrap exposes the underlying transport error when present.
func (apiError APIError) Unwrap() error {
	return apiError.Cause
}

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// KindOf reports the ErrorKind carried by err. Errors that are not APIError values,
// including context cancellation, are fatal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindFatal
	}
	var apiError APIError
	if errors.As(err, &apiError) {
		return apiError.Kind
	}
	return ErrorKindFatal
}

var targetScopedOperations = map[OperationName]bool{
	OperationCreateNote:    true,
	OperationListUserNotes: true,
	OperationDeleteNote:    true,
}

// ClassifyStatus maps an HTTP status code returned by operation to an ErrorKind.
func ClassifyStatus(operation OperationName, statusCode int) ErrorKind {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorKindRateLimited
	case statusCode >= http.StatusInternalServerError:
		return ErrorKindTransient
	case statusCode == http.StatusRequestTimeout:
		return ErrorKindTransient
	case statusCode == http.StatusUnauthorized:
		return ErrorKindFatal
	}

	if !targetScopedOperations[operation] {
		return ErrorKindFatal
	}

	switch statusCode {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity:
		return ErrorKindTargetGone
	default:
		return ErrorKindFatal
	}
}
