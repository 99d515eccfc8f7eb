// Package errors defines the categorized error type used across the
// reconciliation service. Every failure carries a category, a specific
// code, a human suggestion and optional context, so the CLI can map it
// to an exit code and the operator gets something actionable.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory groups errors by the subsystem that produced them.
type ErrorCategory string

const (
	CategoryParse         ErrorCategory = "parse"
	CategoryValidation    ErrorCategory = "validation"
	CategoryState         ErrorCategory = "state"
	CategoryPersistence   ErrorCategory = "persistence"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode identifies the specific failure within a category.
type ErrorCode string

const (
	// Parse errors
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeMissingColumn ErrorCode = "missing_column"
	CodeInvalidData   ErrorCode = "invalid_data"

	// Validation errors
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeMissingField  ErrorCode = "missing_field"

	// State errors: operator actions rejected before mutating the ledger
	CodeUnknownRecord      ErrorCode = "unknown_record"
	CodeInvalidTransition  ErrorCode = "invalid_transition"
	CodeInvalidResolution  ErrorCode = "invalid_resolution"
	CodeBatchClosed        ErrorCode = "batch_closed"
	CodeBatchNotReady      ErrorCode = "batch_not_ready"
	CodeMissingCounterpart ErrorCode = "missing_counterpart"

	// Persistence errors
	CodeSaveFailed ErrorCode = "save_failed"
	CodeLoadFailed ErrorCode = "load_failed"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ReconError is the base error type for all application errors.
type ReconError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context carries additional key-value information about the error.
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ReconError) Unwrap() error {
	return e.Cause
}

// GetExitCode maps the category to a process exit code.
func (e *ReconError) GetExitCode() int {
	switch e.Category {
	case CategoryParse, CategoryValidation:
		return 2
	case CategoryState:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryPersistence:
		return 5
	case CategoryInternal:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error.
func (e *ReconError) WithContext(key string, value interface{}) *ReconError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error.
func (e *ReconError) WithSuggestion(suggestion string) *ReconError {
	e.Suggestion = suggestion
	return e
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// New creates a new ReconError.
func New(category ErrorCategory, code ErrorCode, message string) *ReconError {
	return &ReconError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconError context.
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconError {
	if err == nil {
		return nil
	}
	return &ReconError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// ParseError reports a malformed source row. Parse errors degrade the
// affected field, they never fail the batch; callers collect them for
// reporting.
func ParseError(code ErrorCode, source string, row int, column, value string) *ReconError {
	message := fmt.Sprintf("malformed %s value %q in %s row %d", column, value, source, row)
	suggestion := "the field was degraded to its zero value; correct the export if it matters"
	if code == CodeMissingColumn {
		message = fmt.Sprintf("missing column %q in %s", column, source)
		suggestion = "check the export headers against the configured field mapping"
	}

	return New(CategoryParse, code, message).
		WithSuggestion(suggestion).
		WithContext("source", source).
		WithContext("row", row).
		WithContext("column", column)
}

// ValidationError reports an invalid field value in an operator payload.
func ValidationError(code ErrorCode, field string, value interface{}) *ReconError {
	return New(CategoryValidation, code, fmt.Sprintf("invalid value for %q: %v", field, value)).
		WithSuggestion("check the field value and format").
		WithContext("field", field).
		WithContext("value", value)
}

// StateError reports an operator action rejected because a precondition
// does not hold. The ledger is guaranteed unchanged.
func StateError(code ErrorCode, matchKey, message string) *ReconError {
	return New(CategoryState, code, message).
		WithSuggestion("the record was not modified; refresh its state and retry a permitted action").
		WithContext("match_key", matchKey)
}

// PersistenceError reports a record-store failure. Persistence failures
// never roll back in-memory state; the write stays queued in the
// outbox.
func PersistenceError(code ErrorCode, batchID string, err error) *ReconError {
	message := fmt.Sprintf("record store operation failed for batch %s", batchID)
	var result *ReconError
	if err != nil {
		result = Wrap(err, CategoryPersistence, code, message)
	} else {
		result = New(CategoryPersistence, code, message)
	}
	return result.
		WithSuggestion("the write is retained in the pending-writes queue; retry the flush").
		WithContext("batch_id", batchID)
}

// ConfigurationError reports an invalid or missing configuration value.
func ConfigurationError(code ErrorCode, setting string, err error) *ReconError {
	message := fmt.Sprintf("configuration error for %q", setting)
	var result *ReconError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}
	return result.
		WithSuggestion("check the configuration value and documentation").
		WithContext("setting", setting)
}

// ErrorSummary aggregates the degraded-input errors collected while
// loading a batch.
type ErrorSummary struct {
	Total      int                   `json:"total"`
	ByCategory map[ErrorCategory]int `json:"by_category"`
	ByCode     map[ErrorCode]int     `json:"by_code"`
	Errors     []*ReconError         `json:"errors"`
}

// NewErrorSummary builds a summary over the given errors.
func NewErrorSummary(errs []*ReconError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}
	return summary
}

// Error returns a formatted message for the summary.
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}
	if es.Total == 1 {
		return es.Errors[0].Error()
	}
	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}
	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCategory checks whether the summary contains errors of the
// category.
func (es *ErrorSummary) HasCategory(category ErrorCategory) bool {
	return es.ByCategory[category] > 0
}

// AsReconError extracts a ReconError from an error chain.
func AsReconError(err error) (*ReconError, bool) {
	var reconErr *ReconError
	if errors.As(err, &reconErr) {
		return reconErr, true
	}
	return nil, false
}
