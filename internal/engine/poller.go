// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/elba-docker/radvisor/internal/collector"
	"github.com/elba-docker/radvisor/internal/provider"
	"github.com/elba-docker/radvisor/internal/service"
	"github.com/elba-docker/radvisor/internal/target"
)

// CollectorFactory creates the collector for a newly-discovered target:
// resolving the log file, writing its header and opening cgroup handles
type CollectorFactory func(t *target.Target) (*collector.Collector, error)

// Poller drives the provider at the slow cadence and owns target lifecycle:
// it creates collectors for newly-discovered targets and tears down
// collectors for targets that disappeared.
type Poller struct {
	logger       *slog.Logger
	provider     provider.Provider
	set          *ActiveSet
	failed       *failedSet
	interval     time.Duration
	clock        clock.Clock
	newCollector CollectorFactory
}

var _ service.Runner = (*Poller)(nil)

func (p *Poller) Name() string {
	return "polling"
}

// Run iterates once per interval until the context is cancelled. Deadlines
// are aligned to the loop start: a cycle that overruns skips the missed
// ticks instead of drifting. On shutdown no targets are torn down — the
// collection loop owns the flush-and-close path.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("Beginning provider polling", "interval", p.interval)

	deadline := p.clock.Now()
	for {
		p.cycle(ctx)

		deadline = deadline.Add(p.interval)
		now := p.clock.Now()
		for !deadline.After(now) {
			// overran the interval: skip to the next aligned tick
			deadline = deadline.Add(p.interval)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("Stopping polling")
			return nil
		case <-p.clock.After(deadline.Sub(now)):
		}
	}
}

// cycle performs one reconciliation pass: reap failed collectors, fetch the
// current target list, diff against the active set by id, create collectors
// for new targets and tear down collectors for vanished ones
func (p *Poller) cycle(ctx context.Context) {
	// Collectors that died on the collection goroutine are already closed;
	// they only need to leave the active set
	for _, id := range p.failed.take() {
		if c := p.set.Unpublish(id); c != nil {
			p.logger.Debug("Removed failed collector", "target", id)
		}
	}

	targets, err := p.provider.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// Transient provider failure: keep the previous active set intact
		p.logger.Error("Could not poll target provider", "error", err)
		return
	}

	current := p.set.Snapshot()
	seen := make(map[string]bool, len(targets))

	for _, t := range targets {
		seen[t.ID] = true
		if _, ok := current[t.ID]; ok {
			continue
		}

		c, err := p.newCollector(t)
		if err != nil {
			// Back off until the next cycle if the target is still running
			p.logger.Error("Could not initialize collector for target",
				"target", t.Name, "id", t.ID, "error", err)
			continue
		}
		p.set.Publish(t.ID, c)
		p.logger.Debug("Started collecting target", "target", t.Name, "id", t.ID)
	}

	for id := range current {
		if seen[id] {
			continue
		}
		c := p.set.Unpublish(id)
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			p.logger.Warn("Could not flush buffer on target teardown",
				"target", id, "error", err)
		}
		p.logger.Debug("Stopped collecting target", "id", id)
	}
}
