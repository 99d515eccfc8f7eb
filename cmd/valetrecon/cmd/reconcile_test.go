package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"valet-reconciliation-service/pkg/errors"
)

func TestValidateFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sales.csv")
	if err := os.WriteFile(path, []byte("Matricula\nAA11AA\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := validateFileExists(path, "sales export"); err != nil {
		t.Errorf("existing file rejected: %v", err)
	}
	if err := validateFileExists(filepath.Join(dir, "missing.csv"), "sales export"); err == nil {
		t.Error("missing file accepted")
	}
	if err := validateFileExists(dir, "sales export"); err == nil {
		t.Error("directory accepted as file")
	}
	if err := validateFileExists("", "sales export"); err == nil {
		t.Error("empty path accepted")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain error", os.ErrNotExist, 1},
		{"parse error", errors.ParseError(errors.CodeInvalidAmount, "sales.csv", 3, "price", "x"), 2},
		{"state error", errors.StateError(errors.CodeBatchClosed, "AA11AA", "batch closed"), 3},
		{"persistence error", errors.PersistenceError(errors.CodeSaveFailed, "b1", os.ErrPermission), 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
