// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/substrate-foundation/substrate/bridge"
	"github.com/substrate-foundation/substrate/lib/cli"
	"github.com/substrate-foundation/substrate/lib/version"
	"github.com/substrate-foundation/substrate/world"
)

func main() {
	// Helper re-exec hook: when this process is a namespace helper it
	// never returns from this call.
	world.MaybeRunHelper()

	root := &cli.Command{
		Name:    "substrate-world",
		Summary: "policy-governed filesystem isolation for agent commands",
		Description: "substrate-world runs commands inside a world: an overlay-backed\n" +
			"private view of the project where writes land in a session-scoped\n" +
			"upper layer instead of the real tree.",
		Subcommands: []*cli.Command{
			runCommand(),
			probeCommand(),
			doctorCommand(),
			versionCommand(),
		},
	}

	if err := root.Execute(os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(world.ExitCode(err))
	}
}

// versionCommand prints build information.
func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "print version information",
		Run: func(args []string) error {
			fmt.Println("substrate-world " + version.Full())
			return nil
		},
	}
}

// commonFlags are shared by every engine-touching subcommand.
type commonFlags struct {
	configPath string
	verbose    bool
}

func (f *commonFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.configPath, "config", "", "path to world config YAML (missing file uses defaults)")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")
}

// setup loads config and builds the logger and backend. The backend is
// the bridge client when an agent socket is configured, the native
// engine otherwise.
func (f *commonFlags) setup() (*world.Config, *slog.Logger, world.Backend, error) {
	config, err := world.LoadConfig(f.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := cli.NewCommandLogger(level)

	var backend world.Backend
	if config.AgentSocket != "" {
		backend = bridge.NewClient(config, logger)
	} else {
		backend = world.NewNativeBackend(config, logger)
	}
	return config, logger, backend, nil
}
