// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command zeroclawctl is the operator-facing CLI for the SOP execution
// core. It builds the same components as zeroclawd in-process (no network
// hop) and drives them through the operator tool surface, so behaviour is
// identical to calling the MCP tools over stdio.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joyshmitz/zeroclaw/internal/audit"
	"github.com/joyshmitz/zeroclaw/internal/catalog"
	"github.com/joyshmitz/zeroclaw/internal/clock"
	"github.com/joyshmitz/zeroclaw/internal/config"
	zclog "github.com/joyshmitz/zeroclaw/internal/log"
	"github.com/joyshmitz/zeroclaw/internal/memstore"
	"github.com/joyshmitz/zeroclaw/internal/metrics"
	"github.com/joyshmitz/zeroclaw/internal/sop"
	"github.com/joyshmitz/zeroclaw/internal/toolsurface"
)

var (
	version = "dev"

	cfgPath string
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "zeroclawctl",
		Short:   "Operator CLI for the zeroclaw SOP execution core",
		Version: version,
	}
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to zeroclawd.yaml")

	cmd.AddCommand(
		newExecuteCommand(),
		newAdvanceCommand(),
		newApproveCommand(),
		newStatusCommand(),
		newMetricsCommand(),
		newHealthCommand(),
	)
	return cmd
}

// openSurface loads configuration and builds an in-process tool surface
// backed by the same catalogue and backend zeroclawd would use. CLI
// invocations are one-shot: the backend is opened, the operation runs, the
// backend is closed.
func openSurface() (*toolsurface.Surface, func(), error) {
	logger := zclog.New(zclog.FromEnv())

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	clk := clock.Real{}

	var backend memstore.Backend
	if cfg.Backend.Type == config.BackendBolt {
		backend, err = memstore.OpenBolt(cfg.Backend.Path)
	} else {
		backend = memstore.NewInMemory()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open backend: %w", err)
	}

	var definitions []*sop.Definition
	if cfg.CatalogDir != "" {
		definitions, err = catalog.LoadDir(cfg.CatalogDir)
		if err != nil {
			backend.Close()
			return nil, nil, fmt.Errorf("load catalog: %w", err)
		}
	}

	engine := sop.New(clk, definitions...)
	auditSink := audit.New(backend, clk, logger)

	aggregator, err := metrics.WarmStart(backend, clk, logger)
	if err != nil {
		logger.Warn("metrics warm start failed, starting from zero", "error", err)
		aggregator = metrics.New(clk)
	}

	surface := toolsurface.New(engine, auditSink, aggregator, clk, logger)
	return surface, func() { backend.Close() }, nil
}

func newExecuteCommand() *cobra.Command {
	var payload string
	cmd := &cobra.Command{
		Use:   "execute <sop-name>",
		Short: "Start a run of the named SOP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, closer, err := openSurface()
			if err != nil {
				return err
			}
			defer closer()

			result, err := surface.Execute(toolsurface.ExecuteParams{Name: args[0], Payload: payload})
			if err != nil {
				return err
			}
			return printResult(cmd, result)
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "Opaque trigger payload, rendered verbatim into step context")
	return cmd
}

func newAdvanceCommand() *cobra.Command {
	var status, output string
	cmd := &cobra.Command{
		Use:   "advance <run-id>",
		Short: "Report the outcome of the run's current step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, closer, err := openSurface()
			if err != nil {
				return err
			}
			defer closer()

			result, err := surface.Advance(toolsurface.AdvanceParams{RunID: args[0], Status: status, Output: output})
			if err != nil {
				return err
			}
			return printResult(cmd, result)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Outcome of the current step: completed, failed, skipped")
	cmd.Flags().StringVar(&output, "output", "", "Short free-form text describing the step outcome")
	_ = cmd.MarkFlagRequired("status")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newApproveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <run-id>",
		Short: "Approve the run's current step, unblocking a waiting run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, closer, err := openSurface()
			if err != nil {
				return err
			}
			defer closer()

			result, err := surface.Approve(toolsurface.ApproveParams{RunID: args[0]})
			if err != nil {
				return err
			}
			return printResult(cmd, result)
		},
	}
	return cmd
}

func newStatusCommand() *cobra.Command {
	var sopName string
	cmd := &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show a single run, or list active and recently finished runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, closer, err := openSurface()
			if err != nil {
				return err
			}
			defer closer()

			params := toolsurface.StatusParams{SopName: sopName}
			if len(args) == 1 {
				params.RunID = args[0]
			}

			result, err := surface.Status(params)
			if err != nil {
				return err
			}
			return printResult(cmd, result)
		},
	}
	cmd.Flags().StringVar(&sopName, "sop", "", "Restrict the listing to a single SOP")
	return cmd
}

func newMetricsCommand() *cobra.Command {
	metricsCmd := &cobra.Command{
		Use:   "metrics",
		Short: "Query the metrics aggregator",
	}
	metricsCmd.AddCommand(newMetricsGetCommand())
	return metricsCmd
}

func newMetricsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <metric-name>",
		Short: "Resolve a metric name, e.g. sop.runs_completed or sop.deploy.deviation_rate_7d",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, closer, err := openSurface()
			if err != nil {
				return err
			}
			defer closer()

			value, ok, err := surface.Metrics().GetMetricValue(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("unknown metric: %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %g\n", args[0], value)
			return nil
		},
	}
}

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show the last flushed daemon health state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(cfg.Health.StatePath)
			if err != nil {
				return fmt.Errorf("read health state: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func printResult(cmd *cobra.Command, result *toolsurface.Result) error {
	out := cmd.OutOrStdout()
	if !result.Success {
		fmt.Fprintf(out, "error: %s\n", result.Error)
		return nil
	}
	fmt.Fprintln(out, result.Output)
	return nil
}
