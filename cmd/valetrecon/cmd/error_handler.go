package cmd

import (
	"fmt"
	"os"

	"valet-reconciliation-service/pkg/errors"
)

// ExitCode maps an error to the process exit code: structured errors
// carry their category's code, anything else exits 1.
func ExitCode(err error) int {
	if reconErr, ok := errors.AsReconError(err); ok {
		return reconErr.GetExitCode()
	}
	return 1
}

// printErrorDetails writes the structured parts of an error to stderr.
// Only called in verbose mode; the one-line message is always printed
// by main.
func printErrorDetails(err error) {
	reconErr, ok := errors.AsReconError(err)
	if !ok {
		return
	}
	fmt.Fprintf(os.Stderr, "  category: %s\n", reconErr.Category)
	fmt.Fprintf(os.Stderr, "  code: %s\n", reconErr.Code)
	if reconErr.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "  suggestion: %s\n", reconErr.Suggestion)
	}
	for key, value := range reconErr.Context {
		fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
	}
}
