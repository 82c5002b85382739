// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine contains the two-rate collection pipeline: the poll loop
// that reconciles the set of monitored targets against the provider, and the
// collection loop that samples every active collector at high frequency.
package engine

import (
	"sync"
	"sync/atomic"

	"github.com/elba-docker/radvisor/internal/collector"
)

// ActiveSet is the mapping of currently-monitored target ids to their
// collectors, shared between the poll and collection goroutines. The poll
// goroutine is the sole mutator; each mutation swaps in a fresh immutable
// snapshot so the collection goroutine gets a consistent view per iteration
// without holding any lock across its sample reads.
type ActiveSet struct {
	mu         sync.Mutex
	collectors map[string]*collector.Collector
	snapshot   atomic.Pointer[map[string]*collector.Collector]
}

func NewActiveSet() *ActiveSet {
	s := &ActiveSet{collectors: map[string]*collector.Collector{}}
	s.swapLocked()
	return s
}

// Publish inserts a fully-constructed collector into the set
func (s *ActiveSet) Publish(id string, c *collector.Collector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectors[id] = c
	s.swapLocked()
}

// Unpublish removes the collector for id and returns it (nil if absent);
// ownership transfers back to the caller for teardown
func (s *ActiveSet) Unpublish(id string) *collector.Collector {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collectors[id]
	if !ok {
		return nil
	}
	delete(s.collectors, id)
	s.swapLocked()
	return c
}

// Snapshot returns the current immutable view of the set
func (s *ActiveSet) Snapshot() map[string]*collector.Collector {
	return *s.snapshot.Load()
}

// Len returns the current number of active collectors
func (s *ActiveSet) Len() int {
	return len(s.Snapshot())
}

func (s *ActiveSet) swapLocked() {
	snapshot := make(map[string]*collector.Collector, len(s.collectors))
	for id, c := range s.collectors {
		snapshot[id] = c
	}
	s.snapshot.Store(&snapshot)
}

// failedSet accumulates the ids of collectors that died on the collection
// goroutine (writer I/O failure) until the poll goroutine reaps them
type failedSet struct {
	mu  sync.Mutex
	ids []string
}

func (f *failedSet) add(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
}

func (f *failedSet) take() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.ids
	f.ids = nil
	return ids
}
