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

// Command zeroclawd runs the SOP execution core as a long-running daemon:
// it loads the SOP catalogue, opens the configured memory backend, warm
// -starts the metrics aggregator from the audit log, exposes the operator
// tool surface over MCP, and keeps every component alive under the
// Component Supervisor.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/joyshmitz/zeroclaw/internal/audit"
	"github.com/joyshmitz/zeroclaw/internal/catalog"
	"github.com/joyshmitz/zeroclaw/internal/clock"
	"github.com/joyshmitz/zeroclaw/internal/config"
	"github.com/joyshmitz/zeroclaw/internal/health"
	zclog "github.com/joyshmitz/zeroclaw/internal/log"
	"github.com/joyshmitz/zeroclaw/internal/memstore"
	"github.com/joyshmitz/zeroclaw/internal/metrics"
	"github.com/joyshmitz/zeroclaw/internal/sop"
	"github.com/joyshmitz/zeroclaw/internal/supervisor"
	"github.com/joyshmitz/zeroclaw/internal/toolsurface"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to zeroclawd.yaml")
		catalogDir  = flag.String("catalog-dir", "", "Directory of SOP definitions (every *.yaml / *.yml file is loaded)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("zeroclawd %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	logger := zclog.New(zclog.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *catalogDir != "" {
		cfg.CatalogDir = *catalogDir
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("zeroclawd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	clk := clock.Real{}

	backend, err := openBackend(cfg)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	defer backend.Close()

	definitions, err := loadCatalog(cfg, logger)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	engine := sop.New(clk, definitions...)
	auditSink := audit.New(backend, clk, logger)

	aggregator, err := metrics.WarmStart(backend, clk, logger)
	if err != nil {
		logger.Warn("metrics warm start failed, starting from zero", "error", err)
		aggregator = metrics.New(clk)
	}

	registry := health.New()
	flusher := health.NewFlusher(registry, clk, cfg.Health.StatePath, logger)

	surface := toolsurface.New(engine, auditSink, aggregator, clk, logger)
	mcpServer := mcpserver.NewMCPServer("zeroclaw", version)
	toolsurface.RegisterTools(mcpServer, surface)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		supervisor.Run(gctx, registry, logger, supervisor.Config{
			Name:           "health-flusher",
			InitialBackoff: cfg.SupervisorInitialBackoff,
			MaxBackoff:     cfg.SupervisorMaxBackoff,
			Factory:        flusher.Run,
		})
		return nil
	})

	g.Go(func() error {
		supervisor.Run(gctx, registry, logger, supervisor.Config{
			Name:           "mcp-server",
			InitialBackoff: cfg.SupervisorInitialBackoff,
			MaxBackoff:     cfg.SupervisorMaxBackoff,
			Factory: func(ctx context.Context) error {
				return serveMCP(ctx, mcpServer)
			},
		})
		return nil
	})

	logger.Info("zeroclawd started", "catalog_size", len(definitions), "backend", cfg.Backend.Type, "listen", cfg.Listen)

	return g.Wait()
}

func openBackend(cfg *config.Config) (memstore.Backend, error) {
	switch cfg.Backend.Type {
	case config.BackendBolt:
		return memstore.OpenBolt(cfg.Backend.Path)
	default:
		return memstore.NewInMemory(), nil
	}
}

func loadCatalog(cfg *config.Config, logger *slog.Logger) ([]*sop.Definition, error) {
	if cfg.CatalogDir == "" {
		logger.Warn("no catalog_dir configured, starting with an empty SOP catalogue")
		return nil, nil
	}
	return catalog.LoadDir(cfg.CatalogDir)
}

// serveMCP runs the MCP server until ctx is cancelled. mcp-go's ServeStdio
// has no cancellation hook of its own; the supervisor restarts this factory
// if it returns, and the process exits via the outer signal handler once
// ctx is done.
func serveMCP(ctx context.Context, mcpServer *mcpserver.MCPServer) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- mcpserver.ServeStdio(mcpServer)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return fmt.Errorf("mcp server exited")
	}
}
