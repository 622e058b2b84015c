// Copyright (c) 2026 Divvy. All rights reserved.

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/divvyapp/divvy/internal/platform/constants"
)

// Sweeper drops expired in-memory entries and reports how many were removed.
// [*revocation.MemoryStore] and [*middleware.RateLimiter] satisfy it.
type Sweeper interface {
	Sweep() int
}

// Janitor periodically deletes expired sessions and sweeps in-memory lists.
type Janitor struct {
	service  *Service
	sweepers map[string]Sweeper
	interval time.Duration
	logger   *slog.Logger
}

// NewJanitor creates a janitor. A non-positive interval selects
// [constants.JanitorInterval]. Sweepers are keyed by the name used in logs.
func NewJanitor(service *Service, sweepers map[string]Sweeper, interval time.Duration, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = constants.JanitorInterval
	}
	return &Janitor{
		service:  service,
		sweepers: sweepers,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks, cleaning up on every tick until ctx is cancelled.
func (janitor *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(janitor.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			janitor.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single cleanup pass. Failures are logged, never fatal.
func (janitor *Janitor) RunOnce(ctx context.Context) {
	removed, err := janitor.service.PurgeExpiredSessions(ctx)
	if err != nil {
		janitor.logger.ErrorContext(ctx, "janitor_purge_sessions_failed", slog.String("error", err.Error()))
	} else if removed > 0 {
		janitor.logger.InfoContext(ctx, "janitor_sessions_purged", slog.Int64("removed", removed))
	}

	for name, sweeper := range janitor.sweepers {
		if swept := sweeper.Sweep(); swept > 0 {
			janitor.logger.DebugContext(ctx, "janitor_swept", slog.String("list", name), slog.Int("removed", swept))
		}
	}
}
