// Package errors provides structured error types for the querypulse system.
// All errors carry a category, code, message, and optional cause so that
// per-record failures can be distinguished from run-fatal ones.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryNormalize ErrorCategory = "NORMALIZE"
	ErrCategoryAnalysis  ErrorCategory = "ANALYSIS"
	ErrCategoryExtract   ErrorCategory = "EXTRACT"
	ErrCategoryStorage   ErrorCategory = "STORAGE"
	ErrCategoryAPI       ErrorCategory = "API"
	ErrCategoryInternal  ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Normalize codes
	CodeMalformedRecord = "MALFORMED_RECORD"

	// Analysis codes
	CodeSchemaMismatch = "SCHEMA_MISMATCH"
	CodeIncompleteData = "INCOMPLETE_DATA"
	CodeAnalysisFailed = "ANALYSIS_FAILED"

	// Extract codes
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeHistoryQuery     = "HISTORY_QUERY_FAILED"

	// Storage codes
	CodeWriteFailed = "WRITE_FAILED"
	CodeReadFailed  = "READ_FAILED"

	// API codes
	CodeInvalidRequest = "INVALID_REQUEST"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// QuerypulseError is the structured error type used throughout the system.
type QuerypulseError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *QuerypulseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *QuerypulseError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *QuerypulseError) Is(target error) bool {
	var t *QuerypulseError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new QuerypulseError.
func New(category ErrorCategory, code, message string) *QuerypulseError {
	return &QuerypulseError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new QuerypulseError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *QuerypulseError {
	return &QuerypulseError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *QuerypulseError) WithDetails(details map[string]interface{}) *QuerypulseError {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a QuerypulseError.
func GetCategory(err error) ErrorCategory {
	var qe *QuerypulseError
	if errors.As(err, &qe) {
		return qe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a QuerypulseError.
func GetCode(err error) string {
	var qe *QuerypulseError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

// Convenience constructors for the error kinds named in the design.

// NewMalformedRecordError marks one unusable history row: unparsable
// timestamp or empty query text. Recoverable; the row is skipped.
func NewMalformedRecordError(message string, cause error) *QuerypulseError {
	return Wrap(ErrCategoryNormalize, CodeMalformedRecord, message, cause)
}

// NewSchemaMismatchError marks a predicate hit whose column is absent from
// the table's known schema. Recoverable; the hit is dropped from ranking.
func NewSchemaMismatchError(table, column string) *QuerypulseError {
	return New(ErrCategoryAnalysis, CodeSchemaMismatch,
		fmt.Sprintf("column %q not present on table %q", column, table))
}

// NewIncompleteDataError marks an invariant violation in summary
// construction. Fatal to that table's summary only.
func NewIncompleteDataError(table string) *QuerypulseError {
	return New(ErrCategoryAnalysis, CodeIncompleteData,
		fmt.Sprintf("access stats for table %q cover zero queries", table))
}

// NewAnalysisError wraps an unexpected failure with the run's scope attached.
func NewAnalysisError(message string, cause error, scope map[string]interface{}) *QuerypulseError {
	return Wrap(ErrCategoryAnalysis, CodeAnalysisFailed, message, cause).WithDetails(scope)
}

func NewExtractError(code, message string, cause error) *QuerypulseError {
	return Wrap(ErrCategoryExtract, code, message, cause)
}

func NewStorageError(code, message string, cause error) *QuerypulseError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *QuerypulseError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
