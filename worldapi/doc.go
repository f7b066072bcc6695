// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package worldapi defines the CBOR-encoded message types for the
// host↔guest world agent Unix socket protocol. Both the bridge client
// and the agent import this package so the wire types are defined once
// rather than mirrored.
package worldapi
