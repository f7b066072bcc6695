// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// substrate-world runs commands inside an overlay-backed private view
// of a project, with a deterministic strategy fallback chain and a
// policy-governed degrade path.
package main
