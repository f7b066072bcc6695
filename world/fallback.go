// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package world

import "context"

// Prober abstracts probe execution for the controller. The native
// backend and the agent bridge both satisfy it.
type Prober interface {
	Probe(ctx context.Context, strategy Strategy) (ProbeResult, error)
}

// controllerState enumerates the fallback state machine.
type controllerState int

const (
	stateInit controllerState = iota
	stateProbingPrimary
	stateProbingFallback
	stateReady
	stateNoStrategy
)

// Decision is the controller's terminal verdict for one command
// invocation.
type Decision struct {
	Outcome  Outcome
	Strategy Strategy // set only when Outcome is ready

	// Probes is the full ordered list of attempts, for the trace and
	// the doctor report.
	Probes []ProbeResult

	// FallbackReason is FallbackNoViableStrategy when the session
	// degraded to the host, empty otherwise.
	FallbackReason string
}

// Controller runs the deterministic strategy fallback chain. Each
// strategy is probed at most once per command execution; results are
// never carried between invocations. Given identical probe outcomes
// the controller always reaches the same decision.
type Controller struct {
	Prober Prober
	Policy Policy
}

// Decide walks Init → ProbingPrimary → {Ready | ProbingFallback} →
// {Ready | NoStrategy}. From NoStrategy the policy decides: a required
// world fails closed, an optional one degrades to the host. The
// returned error is reserved for probe mechanics (cancellation, agent
// transport); exhaustion of the chain is a Decision, not an error.
func (c *Controller) Decide(ctx context.Context) (Decision, error) {
	order := StrategyOrder()
	decision := Decision{}
	state := stateInit

	for {
		switch state {
		case stateInit:
			state = stateProbingPrimary

		case stateProbingPrimary:
			result, err := c.Prober.Probe(ctx, order[0])
			if err != nil {
				return Decision{}, err
			}
			decision.Probes = append(decision.Probes, result)
			if result.Healthy {
				decision.Strategy = order[0]
				state = stateReady
			} else {
				state = stateProbingFallback
			}

		case stateProbingFallback:
			result, err := c.Prober.Probe(ctx, order[1])
			if err != nil {
				return Decision{}, err
			}
			decision.Probes = append(decision.Probes, result)
			if result.Healthy {
				decision.Strategy = order[1]
				state = stateReady
			} else {
				state = stateNoStrategy
			}

		case stateReady:
			decision.Outcome = OutcomeReady
			return decision, nil

		case stateNoStrategy:
			if c.Policy.RequiresWorld {
				decision.Outcome = OutcomeFailClosed
			} else {
				decision.Outcome = OutcomeDegradeToHost
				decision.FallbackReason = FallbackNoViableStrategy
			}
			return decision, nil
		}
	}
}
