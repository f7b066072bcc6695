// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintChecklistAllPassing(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	ok := PrintChecklist(&buffer, []Result{
		Pass("kernel overlayfs", "registered"),
		Warn("landlock", "not supported"),
		Skip("user namespaces", "running as root"),
	})
	if !ok {
		t.Fatal("checklist with no failures reported not-ok")
	}
	output := buffer.String()
	for _, fragment := range []string{"[PASS ]", "[WARN ]", "[SKIP ]", "All checks passed."} {
		if !strings.Contains(output, fragment) {
			t.Errorf("output missing %q:\n%s", fragment, output)
		}
	}
}

func TestPrintChecklistFailureWithHint(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	ok := PrintChecklist(&buffer, []Result{
		Pass("kernel overlayfs", "registered"),
		FailWithHint("user namespaces", "disabled", "sysctl kernel.unprivileged_userns_clone=1"),
	})
	if ok {
		t.Fatal("checklist with a failure reported ok")
	}
	output := buffer.String()
	if !strings.Contains(output, "[FAIL ]") {
		t.Errorf("no FAIL marker:\n%s", output)
	}
	if !strings.Contains(output, "fix: sysctl kernel.unprivileged_userns_clone=1") {
		t.Errorf("hint not printed:\n%s", output)
	}
	if !strings.Contains(output, "Some checks failed.") {
		t.Errorf("no failure summary:\n%s", output)
	}
}

func TestOK(t *testing.T) {
	t.Parallel()

	if !OK([]Result{Pass("a", ""), Warn("b", ""), Skip("c", "")}) {
		t.Error("OK = false without failures")
	}
	if OK([]Result{Pass("a", ""), Fail("b", "broken")}) {
		t.Error("OK = true with a failure")
	}
	if !OK(nil) {
		t.Error("OK(nil) = false")
	}
}
