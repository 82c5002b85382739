// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/elba-docker/radvisor/internal/collector"
	"github.com/elba-docker/radvisor/internal/service"
)

// Sampler is the hot sampling loop: once per interval it takes a snapshot of
// the active set and drives one sample per collector. It never allocates on
// the steady-state path and never blocks on anything except the cgroup and
// log file I/O itself.
type Sampler struct {
	logger   *slog.Logger
	set      *ActiveSet
	failed   *failedSet
	interval time.Duration
	clock    clock.Clock
	bufs     *collector.Buffers
}

var _ service.Runner = (*Sampler)(nil)

func (s *Sampler) Name() string {
	return "collection"
}

// Run iterates once per interval until the context is cancelled. A collector
// added mid-iteration is first sampled on the next iteration (snapshot-at-
// start); cancellation is observed between collector samples, and the loop
// finishes the in-progress collector before flushing and closing everything.
func (s *Sampler) Run(ctx context.Context) error {
	s.logger.Info("Beginning statistics collection", "interval", s.interval)

	deadline := s.clock.Now()
	for {
		s.iterate(ctx)

		if ctx.Err() != nil {
			return s.teardown()
		}

		// If the cycle overran, sample again immediately; missed ticks are
		// not back-filled — the timestamp gap is the saturation signal
		deadline = deadline.Add(s.interval)
		now := s.clock.Now()
		if deadline.Before(now) {
			deadline = now
		}

		select {
		case <-ctx.Done():
			return s.teardown()
		case <-s.clock.After(deadline.Sub(now)):
		}
	}
}

// iterate performs one collection pass over a snapshot of the active set,
// checking for cancellation between collector samples
func (s *Sampler) iterate(ctx context.Context) {
	snapshot := s.set.Snapshot()
	for id, c := range snapshot {
		if ctx.Err() != nil {
			return
		}

		nowNs := s.clock.Now().UnixNano()
		if err := c.Collect(nowNs, s.bufs); err != nil {
			// Writer failure is per-target: drop this collector and keep
			// serving the others
			s.logger.Error("Could not run collector for target",
				"target", id, "error", err)
			_ = c.Close()
			s.failed.add(id)
		}
	}
}

// teardown flushes and closes every active collector; only the written
// prefix of each buffer reaches the file
func (s *Sampler) teardown() error {
	s.logger.Info("Stopping collection and flushing buffers")
	for id, c := range s.set.Snapshot() {
		if err := c.Close(); err != nil {
			s.logger.Warn("Could not flush buffer on termination",
				"target", id, "error", err)
		}
	}
	return nil
}
