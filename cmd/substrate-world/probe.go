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
	"time"

	"github.com/spf13/pflag"

	"github.com/substrate-foundation/substrate/lib/cli"
	"github.com/substrate-foundation/substrate/world"
)

func probeCommand() *cli.Command {
	var (
		common     commonFlags
		jsonOutput bool
	)

	flags := func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet("probe", pflag.ContinueOnError)
		common.register(flagSet)
		flagSet.BoolVar(&jsonOutput, "json", false, "print probe results as JSON")
		return flagSet
	}

	return &cli.Command{
		Name:    "probe",
		Summary: "probe every isolation strategy and report the verdicts",
		Flags:   flags,
		Run: func(args []string) error {
			_, _, backend, err := common.setup()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var results []world.ProbeResult
			anyHealthy := false
			for _, strategy := range world.StrategyOrder() {
				result, err := backend.Probe(ctx, strategy)
				if err != nil {
					fmt.Fprintf(os.Stderr, "substrate-world: %v\n", err)
					return &cli.ExitError{Code: world.ExitCode(err)}
				}
				results = append(results, result)
				if result.Healthy {
					anyHealthy = true
				}
			}

			if jsonOutput {
				encoded, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(encoded))
			} else {
				for _, result := range results {
					detail := ""
					if result.Detail != "" {
						detail = "  (" + result.Detail + ")"
					}
					fmt.Printf("%-16s %-20s %s%s\n",
						result.Strategy, result.Reason, result.Duration.Round(time.Millisecond), detail)
				}
			}

			if !anyHealthy {
				return &cli.ExitError{Code: world.ExitUnsupported}
			}
			return nil
		},
	}
}
