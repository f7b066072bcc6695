// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package trace defines the per-command trace record for world
// execution. The record carries strategy selection and fallback
// reasoning as structured fields so a failed command is debuggable
// from its trace alone, without re-running diagnostics. The tracing
// subsystem that persists and formats records lives elsewhere; this
// package only defines the fields and their slog projection.
package trace
