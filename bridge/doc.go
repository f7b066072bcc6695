// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge is the host-side client for the guest world agent.
// When commands execute inside a virtualized guest, the isolation
// decision must be made where the command actually runs; the bridge
// forwards probe, build, and status requests over a local forwarded
// Unix socket and converts transport failures into the
// agent-unreachable error class, never into "unsupported".
package bridge
