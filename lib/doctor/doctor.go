// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package doctor renders readiness checks as a human checklist or as
// JSON. It knows nothing about what is being checked; callers build
// Results and hand them over.
package doctor

import (
	"fmt"
	"io"
	"strings"
)

// Status is the outcome of a single readiness check.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusWarn Status = "warn"
	StatusSkip Status = "skip"
)

// Result holds the outcome of a single readiness check.
type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`

	// Hint is actionable guidance for a failing check, printed under
	// the checklist line.
	Hint string `json:"hint,omitempty"`
}

// Pass creates a passing check result.
func Pass(name, message string) Result {
	return Result{Name: name, Status: StatusPass, Message: message}
}

// Fail creates a failing check result.
func Fail(name, message string) Result {
	return Result{Name: name, Status: StatusFail, Message: message}
}

// FailWithHint creates a failing check result carrying repair guidance.
func FailWithHint(name, message, hint string) Result {
	return Result{Name: name, Status: StatusFail, Message: message, Hint: hint}
}

// Warn creates a warning check result. Warnings do not make the
// checklist fail.
func Warn(name, message string) Result {
	return Result{Name: name, Status: StatusWarn, Message: message}
}

// Skip creates a skipped check result, used when a prerequisite check
// already failed.
func Skip(name, message string) Result {
	return Result{Name: name, Status: StatusSkip, Message: message}
}

// OK reports whether the checklist has no failures.
func OK(results []Result) bool {
	for _, result := range results {
		if result.Status == StatusFail {
			return false
		}
	}
	return true
}

// PrintChecklist prints check results as a human-readable checklist
// and reports whether all checks passed.
func PrintChecklist(w io.Writer, results []Result) bool {
	anyFailed := false
	for _, result := range results {
		prefix := strings.ToUpper(string(result.Status))
		fmt.Fprintf(w, "[%-5s]  %-40s  %s\n", prefix, result.Name, result.Message)
		if result.Status == StatusFail {
			anyFailed = true
			if result.Hint != "" {
				fmt.Fprintf(w, "         %-40s  fix: %s\n", "", result.Hint)
			}
		}
	}

	fmt.Fprintln(w)
	if anyFailed {
		fmt.Fprintln(w, "Some checks failed.")
		return false
	}
	fmt.Fprintln(w, "All checks passed.")
	return true
}
