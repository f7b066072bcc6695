// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"
	"testing"

	"github.com/substrate-foundation/substrate/world"
)

func TestCheckRunBackendRefusesBridgedExecution(t *testing.T) {
	t.Parallel()

	err := checkRunBackend(&world.Config{AgentSocket: "/run/agent.sock"})
	if err == nil {
		t.Fatal("run accepted a bridged backend")
	}
	if !strings.Contains(err.Error(), "not bridged") {
		t.Errorf("refusal does not explain itself: %v", err)
	}

	if err := checkRunBackend(&world.Config{}); err != nil {
		t.Errorf("native backend refused: %v", err)
	}
}
