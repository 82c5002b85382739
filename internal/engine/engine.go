// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/elba-docker/radvisor/internal/collector"
	"github.com/elba-docker/radvisor/internal/config"
	"github.com/elba-docker/radvisor/internal/provider"
	"github.com/elba-docker/radvisor/internal/service"
)

// Engine wires the poll and collection loops around a shared active set
type Engine struct {
	poller  *Poller
	sampler *Sampler
	set     *ActiveSet
}

type Opts struct {
	logger          *slog.Logger
	clock           clock.Clock
	pollInterval    time.Duration
	collectInterval time.Duration
}

type OptionFn func(*Opts)

func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) { o.logger = logger }
}

func WithClock(c clock.Clock) OptionFn {
	return func(o *Opts) { o.clock = c }
}

func WithPollInterval(d time.Duration) OptionFn {
	return func(o *Opts) { o.pollInterval = d }
}

func WithCollectInterval(d time.Duration) OptionFn {
	return func(o *Opts) { o.collectInterval = d }
}

func defaultOpts() Opts {
	return Opts{
		logger:          slog.Default(),
		clock:           clock.RealClock{},
		pollInterval:    config.DefaultPoll,
		collectInterval: config.DefaultInterval,
	}
}

// New creates the engine around an initialized provider and a collector
// factory
func New(p provider.Provider, factory CollectorFactory, opts ...OptionFn) *Engine {
	opt := defaultOpts()
	for _, apply := range opts {
		apply(&opt)
	}

	set := NewActiveSet()
	failed := &failedSet{}

	return &Engine{
		set: set,
		poller: &Poller{
			logger:       opt.logger.With("service", "polling"),
			provider:     p,
			set:          set,
			failed:       failed,
			interval:     opt.pollInterval,
			clock:        opt.clock,
			newCollector: factory,
		},
		sampler: &Sampler{
			logger:   opt.logger.With("service", "collection"),
			set:      set,
			failed:   failed,
			interval: opt.collectInterval,
			clock:    opt.clock,
			bufs:     collector.NewBuffers(),
		},
	}
}

// Services returns the engine's run-group members
func (e *Engine) Services() []service.Service {
	return []service.Service{e.poller, e.sampler}
}

// ActiveSet exposes the shared collector set (used by tests)
func (e *Engine) ActiveSet() *ActiveSet {
	return e.set
}
