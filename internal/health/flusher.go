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

package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joyshmitz/zeroclaw/internal/clock"
)

// FlushInterval is how often the flusher writes the state file.
const FlushInterval = 5 * time.Second

// Flusher periodically snapshots a Registry to a JSON state file.
type Flusher struct {
	registry *Registry
	clock    clock.Clock
	path     string
	log      *slog.Logger
}

// NewFlusher returns a Flusher that writes registry snapshots to path.
func NewFlusher(registry *Registry, clk clock.Clock, path string, logger *slog.Logger) *Flusher {
	return &Flusher{registry: registry, clock: clk, path: path, log: logger}
}

// Run writes a snapshot immediately and then every FlushInterval, until
// ctx is cancelled.
func (f *Flusher) Run(ctx context.Context) error {
	if err := f.flush(); err != nil {
		f.log.Warn("health: initial flush failed", "path", f.path, "error", err)
	}

	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := f.flush(); err != nil {
				f.log.Warn("health: flush failed", "path", f.path, "error", err)
			}
		}
	}
}

func (f *Flusher) flush() error {
	snap := f.registry.Snapshot(f.clock.Now())

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("health: marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("health: mkdir: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("health: write temp file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("health: rename into place: %w", err)
	}
	return nil
}
