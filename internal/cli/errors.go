package cli

import "fmt"

// ExitError represents a command failure with a specific process exit code.
//
// RunE functions return NewExitError(code) instead of calling os.Exit
// directly, so exit codes propagate up to [Execute] and tests can assert on
// them without process termination.
type ExitError struct {
	// Code is the exit code to return to the shell.
	Code int
}

// Error returns "exit status N", matching the os/exec ExitError format.
func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewExitError creates an [ExitError] with the given exit code.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// IsExitError checks whether err is an [ExitError] and extracts its code.
func IsExitError(err error) (int, bool) {
	if exitErr, ok := err.(*ExitError); ok {
		return exitErr.Code, true
	}
	return 0, false
}
