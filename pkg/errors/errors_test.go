package errors

import (
	"errors"
	"testing"
)

func TestReconError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "parse error",
			category:   CategoryParse,
			code:       CodeInvalidFormat,
			message:    "invalid format",
			cause:      nil,
			expectCode: 2,
		},
		{
			name:       "state error",
			category:   CategoryState,
			code:       CodeInvalidTransition,
			message:    "record is terminal",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "configuration error",
			category:   CategoryConfiguration,
			code:       CodeInvalidConfig,
			message:    "invalid config",
			cause:      errors.New("missing field"),
			expectCode: 4,
		},
		{
			name:       "persistence error",
			category:   CategoryPersistence,
			code:       CodeSaveFailed,
			message:    "save failed",
			cause:      errors.New("connection refused"),
			expectCode: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}
			if tt.cause != nil && !errors.Is(err, tt.cause) {
				t.Error("wrapped cause must satisfy errors.Is")
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, CategoryInternal, CodeUnexpectedError, "nothing") != nil {
		t.Error("wrapping nil must yield nil")
	}
}

func TestWithContextAndSuggestion(t *testing.T) {
	err := StateError(CodeBatchNotReady, "AA11AA", "batch has unresolved records").
		WithContext("inconsistent", 2)

	if err.Context["match_key"] != "AA11AA" {
		t.Errorf("match_key context = %v", err.Context["match_key"])
	}
	if err.Context["inconsistent"] != 2 {
		t.Errorf("inconsistent context = %v", err.Context["inconsistent"])
	}
	if err.Suggestion == "" {
		t.Error("state errors must carry a suggestion")
	}
}

func TestParseErrorMessages(t *testing.T) {
	err := ParseError(CodeInvalidAmount, "sales.csv", 7, "price", "abc")
	if err.Category != CategoryParse {
		t.Errorf("category = %s", err.Category)
	}
	if err.Context["row"] != 7 {
		t.Errorf("row context = %v", err.Context["row"])
	}

	missing := ParseError(CodeMissingColumn, "sales.csv", 1, "plate", "")
	if missing.Message == err.Message {
		t.Error("missing column must produce its own message")
	}
}

func TestPersistenceErrorNilCause(t *testing.T) {
	err := PersistenceError(CodeSaveFailed, "batch-1", nil)
	if err == nil {
		t.Fatal("constructor must not return nil")
	}
	if err.Context["batch_id"] != "batch-1" {
		t.Errorf("batch_id context = %v", err.Context["batch_id"])
	}
}

func TestAsReconError(t *testing.T) {
	plain := errors.New("plain")
	if _, ok := AsReconError(plain); ok {
		t.Error("plain error must not match")
	}

	wrapped := Wrap(plain, CategoryInternal, CodeUnexpectedError, "wrapped")
	got, ok := AsReconError(wrapped)
	if !ok || got.Code != CodeUnexpectedError {
		t.Errorf("AsReconError() = %v, %v", got, ok)
	}
}

func TestErrorSummary(t *testing.T) {
	summary := NewErrorSummary([]*ReconError{
		ParseError(CodeInvalidAmount, "sales.csv", 2, "price", "x"),
		ParseError(CodeInvalidDate, "sales.csv", 3, "check_in", "y"),
		StateError(CodeBatchClosed, "AA11AA", "closed"),
	})
	if summary.Total != 3 {
		t.Errorf("total = %d, want 3", summary.Total)
	}
	if summary.ByCategory[CategoryParse] != 2 {
		t.Errorf("parse count = %d, want 2", summary.ByCategory[CategoryParse])
	}
}
