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

// Package supervisor implements the Component Supervisor (C6): a generic
// restart-with-backoff loop that keeps a named component's worker running
// and publishes its health to a shared registry.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/joyshmitz/zeroclaw/internal/health"
)

// Factory produces a fresh unit of work on each invocation. A nil error
// return is treated as an unexpected exit, not success, per spec: there is
// no "this component is done forever" outcome short of context
// cancellation.
type Factory func(ctx context.Context) error

// Config parameterises a supervised component.
type Config struct {
	Name           string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Factory        Factory
}

// Run executes cfg.Factory in a loop until ctx is cancelled. On entry and
// before every invocation the component is marked ok; regardless of
// outcome it is then marked error — a clean return is treated as an
// unexpected exit, exactly like a returned error. Backoff doubles AFTER
// sleeping, not before, so the first retry delay is InitialBackoff, not
// 2×InitialBackoff; a clean exit resets the backoff to InitialBackoff
// since the component had made progress before exiting.
func Run(ctx context.Context, registry *health.Registry, logger *slog.Logger, cfg Config) {
	maxBackoff := cfg.MaxBackoff
	if maxBackoff < cfg.InitialBackoff {
		maxBackoff = cfg.InitialBackoff
	}
	backoff := cfg.InitialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		registry.MarkOK(cfg.Name)
		err := cfg.Factory(ctx)

		if err != nil {
			registry.MarkError(cfg.Name, err.Error())
			logger.Error("supervisor: component error", "component", cfg.Name, "error", err)
		} else {
			registry.MarkError(cfg.Name, "component exited unexpectedly")
			logger.Error("supervisor: component exited unexpectedly", "component", cfg.Name)
		}

		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if err == nil {
			backoff = cfg.InitialBackoff
		} else {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}
