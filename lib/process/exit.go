// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitError carries a specific exit code out of run(). Usage errors
// exit 2 so scripts can tell them from runtime failures.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// Usage wraps err as a usage error (exit code 2).
func Usage(err error) error {
	return &ExitError{Code: 2, Err: err}
}

// Fatal writes "error: err" to stderr and exits. Use it in main() for
// errors from run(), where the structured logger may not exist yet.
func Fatal(err error) {
	os.Exit(report(os.Stderr, err))
}

// report writes err and returns the exit code for it.
func report(w io.Writer, err error) int {
	fmt.Fprintf(w, "error: %v\n", err)
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code != 0 {
		return exitErr.Code
	}
	return 1
}
