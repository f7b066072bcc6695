// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package worldagent

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/substrate-foundation/substrate/lib/codec"
	"github.com/substrate-foundation/substrate/world"
	"github.com/substrate-foundation/substrate/worldapi"
)

// connectionDeadline bounds one request/response cycle. Probes mount
// and unmount real filesystems, so this is generous compared to a pure
// metadata service.
const connectionDeadline = 30 * time.Second

// Service handles bridge requests. The serve loop accepts connections
// concurrently; the backend is safe for concurrent use and the service
// itself holds no mutable state.
type Service struct {
	backend world.Backend
	logger  *slog.Logger
}

// NewService creates a service answering with the given backend.
func NewService(backend world.Backend, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, logger: logger}
}

// ListenSocket creates the agent's Unix listener, replacing a stale
// socket file from an earlier run. Socket mode 0600: the bridge
// connects as the same user via a forwarded socket, and nothing else
// has business talking to the agent.
func ListenSocket(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("setting socket mode: %w", err)
	}
	return listener, nil
}

// Serve accepts connections until the context ends or the listener
// closes. Each connection is one request/response cycle.
func (s *Service) Serve(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.logger.Error("accept error", "error", err)
			continue
		}
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection processes a single request/response cycle.
func (s *Service) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connectionDeadline))

	decoder := codec.NewDecoder(conn)
	encoder := codec.NewEncoder(conn)

	var request worldapi.Request
	if err := decoder.Decode(&request); err != nil {
		s.logger.Error("decoding agent request", "error", err)
		if err := encoder.Encode(worldapi.Response{OK: false, Error: "invalid request"}); err != nil {
			s.logger.Error("encoding agent error response", "error", err)
		}
		return
	}

	s.logger.Info("agent request", "op", request.Op, "strategy", request.Strategy)

	response := s.handle(ctx, &request)
	if err := encoder.Encode(response); err != nil {
		s.logger.Error("encoding agent response", "error", err)
	}
}

// handle dispatches one request.
func (s *Service) handle(ctx context.Context, request *worldapi.Request) worldapi.Response {
	if request.Version != worldapi.ProtocolVersion {
		return worldapi.Response{OK: false, Error: fmt.Sprintf(
			"protocol version %d not supported (agent speaks %d)",
			request.Version, worldapi.ProtocolVersion)}
	}

	switch request.Op {
	case worldapi.OpProbe:
		strategy, err := world.ParseStrategy(request.Strategy)
		if err != nil {
			return worldapi.Response{OK: false, Error: err.Error()}
		}
		result, err := s.backend.Probe(ctx, strategy)
		if err != nil {
			return worldapi.Response{OK: false, Error: err.Error()}
		}
		return worldapi.Response{OK: true, Probe: worldapi.ProbeOutcomeFromResult(result)}

	case worldapi.OpBuild:
		strategy, err := world.ParseStrategy(request.Strategy)
		if err != nil {
			return worldapi.Response{OK: false, Error: err.Error()}
		}
		fsMode, err := world.ParseFsMode(request.FsMode)
		if err != nil {
			return worldapi.Response{OK: false, Error: err.Error()}
		}
		if request.SessionID == "" {
			return worldapi.Response{OK: false, Error: "session_id is required"}
		}
		plan, err := s.backend.Build(ctx, request.SessionID, strategy, request.ProjectRoot, fsMode)
		if err != nil {
			return worldapi.Response{OK: false, Error: err.Error()}
		}
		return worldapi.Response{OK: true, Plan: worldapi.PlanFromMountPlan(plan)}

	case worldapi.OpStatus:
		report, err := s.backend.Report(ctx)
		if err != nil {
			return worldapi.Response{OK: false, Error: err.Error()}
		}
		return worldapi.Response{OK: true, Report: report}
	}
	return worldapi.Response{OK: false, Error: fmt.Sprintf("unknown op %q", request.Op)}
}
