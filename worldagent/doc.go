// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package worldagent implements the guest-side world agent: a small
// CBOR-over-Unix-socket service that probes, builds, and reports on
// filesystem isolation for commands that execute inside a virtualized
// guest. The host-side bridge (package bridge) is its only client.
package worldagent
