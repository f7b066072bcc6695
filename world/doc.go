// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package world constructs isolated filesystem views ("worlds") for
// running untrusted commands so that every write lands in a disposable
// upper layer instead of the real project tree.
//
// The central type is [Session], the unit of isolation for one command
// execution. A session probes the available overlay strategies in a
// fixed order ([StrategyOrder]), materializes the winning [MountPlan]
// inside a private mount namespace, runs the command through a single
// enforcement point, and tears everything down exactly once on every
// exit path.
//
// Strategy selection is a deterministic fallback chain driven by
// [Controller]: the kernel overlay filesystem is probed first, then
// fuse-overlayfs. A probe is not a capability check — it builds a real
// throwaway mount and performs a write-then-enumerate round trip,
// because the known failure class is an overlay that mounts cleanly
// and resolves individual paths but returns stale or empty directory
// listings. A strategy is never used for the real command unless its
// probe passed during this same invocation; probe results are never
// cached across commands.
//
// The merged view is placed at the literal project path inside the
// session's namespace: the kernel overlay is mounted at a staging
// location and then move-mounted (MS_MOVE) onto the project root, so
// exactly one mountpoint exists and absolute-path references resolve
// through the overlay. fuse-overlayfs attaches directly at the project
// path. Namespace entry happens in a re-exec'd helper process
// ([MaybeRunHelper]); both the direct-exec and PTY-attached callers go
// through the same helper, which is what makes the "isolate, then
// exec" ordering impossible to bypass from either path.
//
// When no strategy is healthy the session either refuses to spawn the
// command (policy requires a world: fail-closed, [FailurePolicyRefusal])
// or degrades to the host filesystem with exactly one warning line
// ([DegradeWarning]).
//
// On hosts where commands execute inside a virtualized guest kernel,
// the same contract is fulfilled by the guest-resident agent service
// behind the bridge package; [Backend] is the seam between the two.
package world
