// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/substrate-foundation/substrate/lib/codec"
	"github.com/substrate-foundation/substrate/world"
	"github.com/substrate-foundation/substrate/worldapi"
)

// Client talks to the guest world agent over a local forwarded Unix
// socket. It implements world.Backend for the decision-making
// operations; execution stays with whatever transport actually runs
// commands in the guest.
type Client struct {
	// SocketPath is the local path of the forwarded agent socket.
	SocketPath string

	// Timeout bounds each request end to end: dial, write, and read.
	// Exceeding it classifies as agent-unreachable. Zero means
	// world.DefaultAgentTimeout.
	Timeout time.Duration

	// Logger receives structured request events. Nil uses
	// slog.Default().
	Logger *slog.Logger
}

// NewClient builds a client from engine config.
func NewClient(config *world.Config, logger *slog.Logger) *Client {
	return &Client{
		SocketPath: config.AgentSocket,
		Timeout:    config.AgentTimeout,
		Logger:     logger,
	}
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return world.DefaultAgentTimeout
}

// unreachable classifies a transport failure. The distinction matters:
// an unreachable agent says nothing about whether the guest supports
// isolation, so it must never surface as "unsupported".
func unreachable(op string, err error) error {
	return &world.Error{Kind: world.FailureAgentUnreachable, Op: op, Err: err}
}

// roundTrip performs one request/response cycle. Every transport
// failure (dial, deadline, encode, decode) maps to agent-unreachable;
// an agent-level refusal arrives as a decoded Response with OK false
// and is the caller's to interpret.
func (c *Client) roundTrip(ctx context.Context, op string, request *worldapi.Request) (*worldapi.Response, error) {
	deadline := time.Now().Add(c.timeout())
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "unix", c.SocketPath)
	if err != nil {
		return nil, unreachable(op, fmt.Errorf("dialing agent socket %s: %w", c.SocketPath, err))
	}
	defer conn.Close()
	conn.SetDeadline(deadline)

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, unreachable(op, fmt.Errorf("sending request: %w", err))
	}
	var response worldapi.Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		return nil, unreachable(op, fmt.Errorf("reading response: %w", err))
	}

	c.logger().Debug("agent round trip", "op", op, "ok", response.OK)
	return &response, nil
}

// Probe asks the agent to verify a strategy on its side.
func (c *Client) Probe(ctx context.Context, strategy world.Strategy) (world.ProbeResult, error) {
	response, err := c.roundTrip(ctx, "probe", &worldapi.Request{
		Version:  worldapi.ProtocolVersion,
		Op:       worldapi.OpProbe,
		Strategy: string(strategy),
	})
	if err != nil {
		return world.ProbeResult{}, err
	}
	if !response.OK {
		return world.ProbeResult{}, fmt.Errorf("agent probe refused: %s", response.Error)
	}
	if response.Probe == nil {
		return world.ProbeResult{}, fmt.Errorf("agent probe response missing verdict")
	}
	return response.Probe.Result(), nil
}

// Build asks the agent to lay out a session plan on its side. The
// returned plan's paths are guest paths.
func (c *Client) Build(ctx context.Context, sessionID string, strategy world.Strategy, projectRoot string, fsMode world.FsMode) (*world.MountPlan, error) {
	response, err := c.roundTrip(ctx, "build", &worldapi.Request{
		Version:     worldapi.ProtocolVersion,
		Op:          worldapi.OpBuild,
		Strategy:    string(strategy),
		SessionID:   sessionID,
		ProjectRoot: projectRoot,
		FsMode:      string(fsMode),
	})
	if err != nil {
		return nil, err
	}
	if !response.OK {
		return nil, fmt.Errorf("agent build refused: %s", response.Error)
	}
	if response.Plan == nil {
		return nil, fmt.Errorf("agent build response missing plan")
	}
	return response.Plan.MountPlan(), nil
}

// Run is not bridged: command execution in the guest belongs to the
// guest's own execution transport, which applies the plan the agent
// built. Calling Run on the bridge is a wiring error.
func (c *Client) Run(ctx context.Context, plan *world.MountPlan, spec *world.CommandSpec) (*world.ExecutionResult, error) {
	return nil, &world.Error{
		Kind: world.FailureSpawn,
		Op:   "run",
		Err:  errors.New("bridge does not execute commands; use the guest execution transport"),
	}
}

// Report fetches the agent's doctor report.
func (c *Client) Report(ctx context.Context) (*world.DoctorReport, error) {
	response, err := c.roundTrip(ctx, "status", &worldapi.Request{
		Version: worldapi.ProtocolVersion,
		Op:      worldapi.OpStatus,
	})
	if err != nil {
		return nil, err
	}
	if !response.OK {
		return nil, fmt.Errorf("agent status refused: %s", response.Error)
	}
	if response.Report == nil {
		return nil, fmt.Errorf("agent status response missing report")
	}
	return response.Report, nil
}
