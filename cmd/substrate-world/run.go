// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/substrate-foundation/substrate/lib/cli"
	"github.com/substrate-foundation/substrate/world"
)

func runCommand() *cli.Command {
	var (
		common       commonFlags
		projectRoot  string
		workDir      string
		mode         string
		requireWorld bool
		readOnly     bool
		interactive  bool
		showDiff     bool
		exportPath   string
	)

	flags := func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
		common.register(flagSet)
		flagSet.StringVar(&projectRoot, "project", "", "project root to isolate (default: current directory)")
		flagSet.StringVar(&workDir, "dir", "", "working directory for the command (default: current directory)")
		flagSet.StringVar(&mode, "mode", string(world.ModeEnforce), "policy mode: enforce, observe, or disabled")
		flagSet.BoolVar(&requireWorld, "require-world", false, "fail closed instead of degrading to the host when no strategy is viable")
		flagSet.BoolVar(&readOnly, "read-only", false, "mount the merged view read-only")
		flagSet.BoolVarP(&interactive, "interactive", "i", false, "attach the command to a pseudo-terminal")
		flagSet.BoolVar(&showDiff, "show-diff", false, "print the upper-layer diff as JSON to stderr after the command exits")
		flagSet.StringVar(&exportPath, "export-diff", "", "write the upper layer as a zstd tar archive to this path")
		return flagSet
	}

	return &cli.Command{
		Name:    "run",
		Summary: "run a command inside a world",
		Usage:   "substrate-world run [flags] -- command [args...]",
		Examples: []cli.Example{
			{
				Description: "run a build with writes captured in the session upper layer",
				Command:     "substrate-world run -- make test",
			},
			{
				Description: "refuse to run at all if isolation cannot be enforced",
				Command:     "substrate-world run --require-world -- ./untrusted-script.sh",
			},
		},
		Flags: flags,
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("no command given; usage: substrate-world run [flags] -- command [args...]")
			}
			policyMode, err := world.ParseMode(mode)
			if err != nil {
				return err
			}
			fsMode := world.FsWritable
			if readOnly {
				fsMode = world.FsReadOnly
			}
			if projectRoot == "" {
				projectRoot, err = os.Getwd()
				if err != nil {
					return fmt.Errorf("resolving current directory: %w", err)
				}
			}
			if workDir == "" {
				workDir, err = os.Getwd()
				if err != nil {
					return fmt.Errorf("resolving current directory: %w", err)
				}
			}

			config, logger, backend, err := common.setup()
			if err != nil {
				return err
			}
			if err := checkRunBackend(config); err != nil {
				return err
			}
			return runWorld(runOptions{
				projectRoot: projectRoot,
				workDir:     workDir,
				argv:        args,
				policy: world.Policy{
					Mode:          policyMode,
					RequiresWorld: requireWorld,
					FsMode:        fsMode,
				},
				config:      config,
				backend:     backend,
				logger:      logger,
				interactive: interactive,
				showDiff:    showDiff,
				exportPath:  exportPath,
			})
		},
	}
}

// checkRunBackend refuses run up front when an agent socket is
// configured: the bridge answers probe, build, and status, but command
// execution is not bridged — a command runs where its kernel is.
// Refusing before any probe beats resolving a full session and then
// failing at spawn time.
func checkRunBackend(config *world.Config) error {
	if config.AgentSocket != "" {
		return fmt.Errorf("agent socket %s is configured, but command execution is not bridged: run the command on the guest itself (probe and doctor work from here)", config.AgentSocket)
	}
	return nil
}

type runOptions struct {
	projectRoot string
	workDir     string
	argv        []string
	policy      world.Policy
	config      *world.Config
	backend     world.Backend
	logger      *slog.Logger
	interactive bool
	showDiff    bool
	exportPath  string
}

// runWorld is the single enforcement path: resolve the session, run
// the command under it, report the trace, and tear down. The child's
// exit code propagates through an ExitError so main does not translate
// it.
func runWorld(options runOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := world.NewSession(world.SessionConfig{
		ProjectRoot: options.projectRoot,
		Policy:      options.policy,
		Config:      options.config,
		Backend:     options.backend,
		Logger:      options.logger,
	})
	if err != nil {
		return err
	}
	defer session.Teardown()

	if err := session.Resolve(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "substrate-world: %v\n", err)
		return &cli.ExitError{Code: world.ExitCode(err)}
	}

	result, err := session.Run(ctx, &world.CommandSpec{
		Argv:        options.argv,
		Dir:         options.workDir,
		Env:         os.Environ(),
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Interactive: options.interactive,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "substrate-world: %v\n", err)
		return &cli.ExitError{Code: world.ExitCode(err)}
	}

	options.logger.Info("world session complete", "trace", session.Trace(result))

	if options.showDiff {
		diff, err := session.Diff()
		if err != nil {
			options.logger.Error("computing diff", "error", err)
		} else {
			encoded, _ := json.MarshalIndent(diff, "", "  ")
			fmt.Fprintln(os.Stderr, string(encoded))
		}
	}
	if options.exportPath != "" && session.Plan() != nil {
		if err := exportDiffArchive(session, options.exportPath); err != nil {
			options.logger.Error("exporting diff archive", "error", err)
		}
	}

	if result.ExitCode != 0 {
		return &cli.ExitError{Code: result.ExitCode}
	}
	return nil
}

// exportDiffArchive writes the session's upper layer to path.
func exportDiffArchive(session *world.Session, path string) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if err := world.ExportArchive(session.Plan().UpperDir, file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
