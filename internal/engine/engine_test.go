// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/elba-docker/radvisor/internal/cgroup"
	"github.com/elba-docker/radvisor/internal/collector"
	"github.com/elba-docker/radvisor/internal/sysinfo"
	"github.com/elba-docker/radvisor/internal/target"
)

type fakeProvider struct {
	targets []*target.Target
	err     error
	fetches int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Init(ctx context.Context) error { return nil }

func (f *fakeProvider) Fetch(ctx context.Context) ([]*target.Target, error) {
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	return f.targets, nil
}

// testBed is a unified-layout cgroup tree plus a log directory and a real
// collector factory over them
type testBed struct {
	layout  *cgroup.Layout
	logDir  string
	factory CollectorFactory
}

func newTestBed(t *testing.T) *testBed {
	t.Helper()
	layout := &cgroup.Layout{Version: cgroup.V2, MountRoot: t.TempDir()}
	logDir := t.TempDir()
	factory := func(tgt *target.Target) (*collector.Collector, error) {
		return collector.New(collector.Options{
			Target:     tgt,
			Layout:     layout,
			Directory:  logDir,
			BufferSize: 4096,
			System:     sysinfo.Info{},
			Version:    "test",
			Clock:      testingclock.NewFakePassiveClock(time.Unix(1690000100, 0)),
		})
	}
	return &testBed{layout: layout, logDir: logDir, factory: factory}
}

// addTarget creates a populated cgroup for id and returns its target
func (tb *testBed) addTarget(t *testing.T, id string) *target.Target {
	t.Helper()
	rel := "system.slice/docker-" + id + ".scope"
	dir := filepath.Join(tb.layout.MountRoot, rel)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pids.current"), []byte("1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pids.max"), []byte("max\n"), 0o644))
	return &target.Target{
		ID:       id,
		Name:     id,
		Provider: "docker",
		Cgroup:   cgroup.Path{Rel: rel, Driver: cgroup.DriverSystemd, Version: cgroup.V2},
	}
}

func (tb *testBed) newPoller(provider *fakeProvider, set *ActiveSet, failed *failedSet) *Poller {
	return &Poller{
		logger:       slog.Default(),
		provider:     provider,
		set:          set,
		failed:       failed,
		interval:     time.Second,
		clock:        testingclock.NewFakeClock(time.Unix(1690000100, 0)),
		newCollector: tb.factory,
	}
}

func newSampler(set *ActiveSet, failed *failedSet, clk *testingclock.FakeClock) *Sampler {
	return &Sampler{
		logger:   slog.Default(),
		set:      set,
		failed:   failed,
		interval: 50 * time.Millisecond,
		clock:    clk,
		bufs:     collector.NewBuffers(),
	}
}

// logRecords returns the CSV record rows of the latest log file for id
func (tb *testBed) logRecords(t *testing.T, id string) []string {
	t.Helper()
	entries, err := os.ReadDir(tb.logDir)
	require.NoError(t, err)

	var newest string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), id+"_") {
			newest = entry.Name()
		}
	}
	require.NotEmpty(t, newest, "no log file for %s", id)

	data, err := os.ReadFile(filepath.Join(tb.logDir, newest))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	fences := 0
	for i, line := range lines {
		if line == "---" {
			fences++
			if fences == 2 {
				// skip the CSV header row as well
				return lines[i+2:]
			}
		}
	}
	return nil
}

func TestPollerDiff(t *testing.T) {
	tb := newTestBed(t)
	a := tb.addTarget(t, "aaa")
	b := tb.addTarget(t, "bbb")
	c := tb.addTarget(t, "ccc")

	provider := &fakeProvider{targets: []*target.Target{a, b}}
	set := NewActiveSet()
	p := tb.newPoller(provider, set, &failedSet{})
	ctx := context.Background()

	p.cycle(ctx)
	snapshot := set.Snapshot()
	require.Len(t, snapshot, 2)
	collectorA, collectorB := snapshot["aaa"], snapshot["bbb"]
	require.NotNil(t, collectorA)
	require.NotNil(t, collectorB)

	// {A,B} -> {B,C}: A torn down, B retained untouched, C created fresh
	provider.targets = []*target.Target{b, c}
	p.cycle(ctx)

	snapshot = set.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Nil(t, snapshot["aaa"])
	assert.Same(t, collectorB, snapshot["bbb"], "surviving collector must be retained as-is")
	assert.NotNil(t, snapshot["ccc"])

	// A's buffer was flushed on teardown: its file ends with the CSV header
	records := tb.logRecords(t, "aaa")
	assert.Empty(t, records, "A had no samples, but its header must be flushed")
}

func TestPollerIdempotence(t *testing.T) {
	tb := newTestBed(t)
	a := tb.addTarget(t, "aaa")
	b := tb.addTarget(t, "bbb")

	provider := &fakeProvider{targets: []*target.Target{a, b}}
	set := NewActiveSet()
	p := tb.newPoller(provider, set, &failedSet{})
	ctx := context.Background()

	p.cycle(ctx)
	first := set.Snapshot()

	// Two cycles with no intervening changes: empty diff both ways
	p.cycle(ctx)
	second := set.Snapshot()

	require.Len(t, second, 2)
	assert.Same(t, first["aaa"], second["aaa"])
	assert.Same(t, first["bbb"], second["bbb"])
}

func TestPollerKeepsSetOnProviderError(t *testing.T) {
	tb := newTestBed(t)
	a := tb.addTarget(t, "aaa")

	provider := &fakeProvider{targets: []*target.Target{a}}
	set := NewActiveSet()
	p := tb.newPoller(provider, set, &failedSet{})
	ctx := context.Background()

	p.cycle(ctx)
	require.Len(t, set.Snapshot(), 1)
	before := set.Snapshot()["aaa"]

	provider.err = errors.New("connection refused")
	p.cycle(ctx)

	assert.Same(t, before, set.Snapshot()["aaa"],
		"transient provider errors must not tear down collectors")
}

func TestPollerSkipsFailedCollectorCreation(t *testing.T) {
	tb := newTestBed(t)
	a := tb.addTarget(t, "aaa")
	bad := tb.addTarget(t, "bad")

	set := NewActiveSet()
	p := tb.newPoller(&fakeProvider{targets: []*target.Target{a, bad}}, set, &failedSet{})
	inner := p.newCollector
	p.newCollector = func(tgt *target.Target) (*collector.Collector, error) {
		if tgt.ID == "bad" {
			return nil, fmt.Errorf("no cgroup for %s", tgt.ID)
		}
		return inner(tgt)
	}

	p.cycle(context.Background())
	snapshot := set.Snapshot()
	assert.Len(t, snapshot, 1)
	assert.NotNil(t, snapshot["aaa"])
}

func TestPollerReapsFailedCollectors(t *testing.T) {
	tb := newTestBed(t)
	a := tb.addTarget(t, "aaa")

	provider := &fakeProvider{targets: []*target.Target{a}}
	set := NewActiveSet()
	failed := &failedSet{}
	p := tb.newPoller(provider, set, failed)
	ctx := context.Background()

	p.cycle(ctx)
	first := set.Snapshot()["aaa"]
	require.NotNil(t, first)

	// The sampler reported the collector dead; the next cycle removes it and,
	// since the provider still lists the target, recreates it fresh
	require.NoError(t, first.Close())
	failed.add("aaa")
	p.cycle(ctx)

	second := set.Snapshot()["aaa"]
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
}

func TestSamplerOneRecordPerIteration(t *testing.T) {
	tb := newTestBed(t)
	a := tb.addTarget(t, "aaa")
	b := tb.addTarget(t, "bbb")

	set := NewActiveSet()
	failed := &failedSet{}
	p := tb.newPoller(&fakeProvider{targets: []*target.Target{a, b}}, set, failed)
	p.cycle(context.Background())

	clk := testingclock.NewFakeClock(time.Unix(1690000200, 0))
	s := newSampler(set, failed, clk)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.iterate(ctx)
		clk.Step(50 * time.Millisecond)
	}
	require.NoError(t, s.teardown())

	for _, id := range []string{"aaa", "bbb"} {
		records := tb.logRecords(t, id)
		assert.Len(t, records, 3, "collector %s must contribute exactly one record per iteration", id)

		last := ""
		for _, record := range records {
			read := strings.SplitN(record, ",", 2)[0]
			assert.Greater(t, read, last, "timestamps must be strictly increasing")
			last = read
		}
	}
}

func TestSamplerSnapshotAtStart(t *testing.T) {
	tb := newTestBed(t)
	a := tb.addTarget(t, "aaa")
	late := tb.addTarget(t, "late")

	set := NewActiveSet()
	failed := &failedSet{}
	p := tb.newPoller(&fakeProvider{targets: []*target.Target{a}}, set, failed)
	p.cycle(context.Background())

	clk := testingclock.NewFakeClock(time.Unix(1690000200, 0))
	s := newSampler(set, failed, clk)
	s.iterate(context.Background())

	// A collector published after the snapshot is first sampled next iteration
	lateCollector, err := tb.factory(late)
	require.NoError(t, err)
	set.Publish("late", lateCollector)

	clk.Step(50 * time.Millisecond)
	s.iterate(context.Background())
	require.NoError(t, s.teardown())

	assert.Len(t, tb.logRecords(t, "aaa"), 2)
	assert.Len(t, tb.logRecords(t, "late"), 1)
}

func TestSamplerShutdownFlushesAllBuffers(t *testing.T) {
	tb := newTestBed(t)
	a := tb.addTarget(t, "aaa")
	b := tb.addTarget(t, "bbb")

	set := NewActiveSet()
	failed := &failedSet{}
	p := tb.newPoller(&fakeProvider{targets: []*target.Target{a, b}}, set, failed)
	p.cycle(context.Background())

	clk := testingclock.NewFakeClock(time.Unix(1690000200, 0))
	s := newSampler(set, failed, clk)
	s.iterate(context.Background())

	// Simulate the termination signal arriving while the loop yields
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Run(ctx))

	for _, id := range []string{"aaa", "bbb"} {
		records := tb.logRecords(t, id)
		assert.Len(t, records, 1, "buffered records must be flushed on shutdown")

		entries, err := os.ReadDir(tb.logDir)
		require.NoError(t, err)
		for _, entry := range entries {
			data, err := os.ReadFile(filepath.Join(tb.logDir, entry.Name()))
			require.NoError(t, err)
			assert.Equal(t, -1, bytes.IndexByte(data, 0), "no NUL padding after shutdown")
		}
	}
}

func TestSamplerRunHonorsInterval(t *testing.T) {
	tb := newTestBed(t)
	a := tb.addTarget(t, "aaa")

	set := NewActiveSet()
	failed := &failedSet{}
	p := tb.newPoller(&fakeProvider{targets: []*target.Target{a}}, set, failed)
	p.cycle(context.Background())

	clk := testingclock.NewFakeClock(time.Unix(1690000200, 0))
	s := newSampler(set, failed, clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Two full intervals pass: the loop wakes once per tick
	for i := 0; i < 2; i++ {
		require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond,
			"sampler should be sleeping until the next aligned deadline")
		clk.Step(50 * time.Millisecond)
	}
	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	records := tb.logRecords(t, "aaa")
	assert.GreaterOrEqual(t, len(records), 3)
}

func TestEngineServices(t *testing.T) {
	tb := newTestBed(t)
	eng := New(&fakeProvider{}, tb.factory)
	services := eng.Services()
	require.Len(t, services, 2)
	assert.Equal(t, "polling", services[0].Name())
	assert.Equal(t, "collection", services[1].Name())
	assert.NotNil(t, eng.ActiveSet())
}
