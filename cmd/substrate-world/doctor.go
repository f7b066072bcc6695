// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/substrate-foundation/substrate/lib/cli"
	"github.com/substrate-foundation/substrate/lib/doctor"
	"github.com/substrate-foundation/substrate/world"
)

func doctorCommand() *cli.Command {
	var (
		common     commonFlags
		jsonOutput bool
	)

	flags := func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet("doctor", pflag.ContinueOnError)
		common.register(flagSet)
		flagSet.BoolVar(&jsonOutput, "json", false, "print the full readiness report as JSON")
		return flagSet
	}

	return &cli.Command{
		Name:    "doctor",
		Summary: "diagnose world readiness on this host",
		Description: "doctor reports host facilities (kernel support, binaries,\n" +
			"namespaces) and the live probe verdict for every isolation\n" +
			"strategy. When the two disagree — the overlay module is present\n" +
			"but a mount fails, say — the probe verdict is the one that\n" +
			"governs.",
		Flags: flags,
		Run: func(args []string) error {
			_, _, backend, err := common.setup()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			report, err := backend.Report(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "substrate-world: %v\n", err)
				return &cli.ExitError{Code: world.ExitCode(err)}
			}

			if jsonOutput {
				encoded, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(encoded))
				if !report.OK {
					return &cli.ExitError{Code: 1}
				}
				return nil
			}

			checks := reportChecks(report)
			if !doctor.PrintChecklist(os.Stdout, checks) {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

// reportChecks converts the readiness report into checklist entries.
// Host facility checks that are merely informative (landlock, root)
// warn instead of failing; only "no strategy works" fails the
// checklist.
func reportChecks(report *world.DoctorReport) []doctor.Result {
	var checks []doctor.Result

	host := report.Host
	if host.OverlayfsRegistered {
		checks = append(checks, doctor.Pass("kernel overlayfs", "overlay registered in /proc/filesystems"))
	} else {
		checks = append(checks, doctor.Warn("kernel overlayfs", "overlay not in /proc/filesystems"))
	}
	if host.UserNamespacesEnabled {
		checks = append(checks, doctor.Pass("user namespaces", "unprivileged user namespaces enabled"))
	} else if host.Root {
		checks = append(checks, doctor.Skip("user namespaces", "running as root, not needed"))
	} else {
		checks = append(checks, doctor.FailWithHint("user namespaces",
			"unprivileged user namespaces disabled",
			"sysctl kernel.unprivileged_userns_clone=1 (or distribution equivalent)"))
	}
	if host.FuseDeviceAvailable {
		checks = append(checks, doctor.Pass("fuse device", "/dev/fuse present"))
	} else {
		checks = append(checks, doctor.Warn("fuse device", "/dev/fuse missing"))
	}
	if host.FuseOverlayfsAvailable {
		checks = append(checks, doctor.Pass("fuse-overlayfs", host.FuseOverlayfsPath))
	} else {
		checks = append(checks, doctor.Warn("fuse-overlayfs", "binary not found on PATH"))
	}
	if host.LandlockSupported {
		checks = append(checks, doctor.Pass("landlock", fmt.Sprintf("ABI v%d", host.LandlockABI)))
	} else {
		checks = append(checks, doctor.Warn("landlock", "not supported by this kernel"))
	}

	for _, strategy := range report.Strategies {
		name := "strategy " + string(strategy.Strategy)
		if strategy.Healthy {
			checks = append(checks, doctor.Pass(name, "probe passed"))
		} else {
			message := string(strategy.Reason)
			if strategy.Detail != "" {
				message += ": " + strategy.Detail
			}
			checks = append(checks, doctor.Warn(name, message))
		}
	}

	if report.OK {
		checks = append(checks, doctor.Pass("world", "strategy "+string(report.Selected)+" selected"))
	} else {
		checks = append(checks, doctor.FailWithHint("world",
			"no isolation strategy is viable on this host",
			"load the overlay module, enable user namespaces, or install fuse-overlayfs"))
	}
	return checks
}
