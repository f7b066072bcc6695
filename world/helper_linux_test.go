// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package world

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
)

func TestEnumerationRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := enumerationRoundTrip(dir); err != nil {
		t.Fatalf("enumerationRoundTrip on a plain directory: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, EnumerationProbeFile)); err != nil {
		t.Errorf("probe file missing after round trip: %v", err)
	}
}

func TestEnumerationRoundTripUnwritable(t *testing.T) {
	t.Parallel()
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	dir := t.TempDir()
	if err := os.Chmod(dir, 0500); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(dir, 0700)

	if err := enumerationRoundTrip(dir); err == nil {
		t.Fatal("round trip succeeded in an unwritable directory")
	}
}

func TestLookPath(t *testing.T) {
	t.Parallel()

	binDir := t.TempDir()
	tool := filepath.Join(binDir, "mytool")
	if err := os.WriteFile(tool, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	env := []string{"HOME=/root", "PATH=" + binDir}

	resolved, err := lookPath("mytool", env)
	if err != nil {
		t.Fatalf("lookPath: %v", err)
	}
	if resolved != tool {
		t.Errorf("resolved = %q, want %q", resolved, tool)
	}

	// Paths containing a slash bypass PATH resolution.
	if resolved, err := lookPath("/bin/sh", nil); err != nil || resolved != "/bin/sh" {
		t.Errorf("lookPath(/bin/sh) = %q, %v", resolved, err)
	}

	if _, err := lookPath("no-such-tool", env); err == nil {
		t.Error("lookPath found a nonexistent tool")
	}

	// Non-executable files do not resolve.
	flat := filepath.Join(binDir, "notatool")
	if err := os.WriteFile(flat, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := lookPath("notatool", env); err == nil {
		t.Error("lookPath resolved a non-executable file")
	}
}

func TestNamespaceAttr(t *testing.T) {
	t.Parallel()

	attr := namespaceAttr()
	if attr.Cloneflags&syscall.CLONE_NEWNS == 0 {
		t.Fatal("helper does not request a mount namespace")
	}
	if os.Geteuid() != 0 {
		if attr.Cloneflags&syscall.CLONE_NEWUSER == 0 {
			t.Fatal("non-root helper does not request a user namespace")
		}
		if len(attr.UidMappings) != 1 || attr.UidMappings[0].Size != 1 {
			t.Errorf("uid mappings = %+v, want a single identity mapping", attr.UidMappings)
		}
	}
}

func TestHelperCommandWiring(t *testing.T) {
	t.Parallel()

	task := &helperTask{Op: helperOpProbe, Plan: MountPlan{Strategy: StrategyKernelOverlay}}
	cmd, err := helperCommand(task, nil)
	if err != nil {
		t.Fatalf("helperCommand: %v", err)
	}
	defer func() {
		for _, file := range cmd.ExtraFiles {
			file.Close()
		}
	}()

	if len(cmd.ExtraFiles) != 1 {
		t.Fatalf("ExtraFiles = %d, want the task pipe only", len(cmd.ExtraFiles))
	}
	found := false
	for _, entry := range cmd.Env {
		if entry == helperEnvVar+"=1" {
			found = true
		}
	}
	if !found {
		t.Error("helper marker variable missing from environment")
	}
	if cmd.SysProcAttr == nil || cmd.SysProcAttr.Cloneflags&syscall.CLONE_NEWNS == 0 {
		t.Error("helper command missing namespace clone flags")
	}
}

func TestFuseMountArgs(t *testing.T) {
	t.Parallel()

	plan := &MountPlan{
		Strategy:  StrategyFuseOverlay,
		TargetDir: "/work/project",
		LowerDir:  "/scratch/lower",
		UpperDir:  "/scratch/upper",
		WorkDir:   "/scratch/work",
		FsMode:    FsWritable,
	}

	args := fuseMountArgs(plan)
	// Foreground mode keeps the process as a direct child; a
	// daemonized fuse-overlayfs would outlive the session with no
	// handle to terminate it.
	if len(args) == 0 || args[0] != "-f" {
		t.Fatalf("args = %v, want -f first", args)
	}
	if args[len(args)-1] != plan.TargetDir {
		t.Errorf("args = %v, want target last", args)
	}
	options := args[2]
	for _, fragment := range []string{"lowerdir=/scratch/lower", "upperdir=/scratch/upper", "workdir=/scratch/work"} {
		if !strings.Contains(options, fragment) {
			t.Errorf("options %q missing %q", options, fragment)
		}
	}
	if strings.Contains(options, ",ro") {
		t.Errorf("writable plan produced read-only options %q", options)
	}

	plan.FsMode = FsReadOnly
	if options := fuseMountArgs(plan)[2]; !strings.Contains(options, ",ro") {
		t.Errorf("read-only plan missing ro option: %q", options)
	}
}

func TestProbeLayout(t *testing.T) {
	t.Parallel()

	plan, scratchRoot, err := probeLayout(t.TempDir(), StrategyKernelOverlay)
	if err != nil {
		t.Fatalf("probeLayout: %v", err)
	}
	defer os.RemoveAll(scratchRoot)

	for _, dir := range []string{plan.TargetDir, plan.LowerDir, plan.UpperDir, plan.WorkDir, plan.StagingDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("probe dir %s: %v", dir, err)
		}
	}
	if _, err := os.Stat(filepath.Join(plan.LowerDir, "seed")); err != nil {
		t.Errorf("lower layer seed file: %v", err)
	}
	// The probe never mounts over a real project: everything is under
	// its own scratch root.
	if plan.TargetDir == plan.LowerDir {
		t.Error("probe target and lower are the same directory")
	}
}
