// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// substrate-world-agent is the guest-side world agent. It answers
// probe, build, and status requests from the host's bridge over a
// Unix socket, using the native engine on the guest's own kernel.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/substrate-foundation/substrate/lib/version"
	"github.com/substrate-foundation/substrate/world"
	"github.com/substrate-foundation/substrate/worldagent"
)

func main() {
	// Probe helpers re-exec this binary; the hook never returns for
	// helper processes.
	world.MaybeRunHelper()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		socketPath  string
		configPath  string
		showVersion bool
	)
	pflag.StringVar(&socketPath, "socket", "", "Unix socket path to listen on (required)")
	pflag.StringVar(&configPath, "config", "", "path to world config YAML")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("substrate-world-agent %s\n", version.Info())
		return nil
	}
	if socketPath == "" {
		return fmt.Errorf("--socket is required")
	}

	config, err := world.LoadConfig(configPath)
	if err != nil {
		return err
	}
	// The agent is the end of the line: it must answer with its own
	// kernel's verdict, never forward to a further agent.
	config.AgentSocket = ""

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := worldagent.ListenSocket(socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)
	logger.Info("world agent listening", "socket", socketPath)

	service := worldagent.NewService(world.NewNativeBackend(config, logger), logger)
	go service.Serve(ctx, listener)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
