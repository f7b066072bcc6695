// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError signals a specific exit code without printing an extra
// error message: the command has already written its own output. The
// world engine's failure classes map to distinct codes, and scripts
// branch on them, so the code must survive the trip through main
// unchanged.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. Main functions check for this
// interface on returned errors to distinguish "handled non-zero exit"
// from "unexpected error to display".
func (e *ExitError) ExitCode() int {
	return e.Code
}
