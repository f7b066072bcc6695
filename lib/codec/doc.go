// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Substrate's standard CBOR encoding.
//
// All wire traffic between the host bridge and the world agent uses
// CBOR with Core Deterministic Encoding (RFC 8949 §4.2): the same
// logical request or report always produces identical bytes, which
// keeps agent responses byte-stable in protocol tests and traces.
// Unknown fields are ignored on decode so an older host can talk to
// a newer agent.
package codec
