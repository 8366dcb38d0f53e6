// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError signals a handled non-zero exit: main exits with Code
// without printing the error, because the command already wrote its own
// output. An aborted deploy run is the canonical case — the abort is
// logged in full by the orchestrator, and the exit code is the signal
// cron or the scheduler consumes.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. main checks for this interface on
// returned errors.
func (e *ExitError) ExitCode() int {
	return e.Code
}
