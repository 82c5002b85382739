// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

// Package collector owns the live sampling state for a single target: the
// open cgroup accounting handles, the buffered CSVY log writer and the
// variant-specific reader that turns file contents into CSV fields.
package collector

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/elba-docker/radvisor/internal/cgroup"
	"github.com/elba-docker/radvisor/internal/flushlog"
	"github.com/elba-docker/radvisor/internal/sysinfo"
	"github.com/elba-docker/radvisor/internal/target"
	"k8s.io/utils/clock"
)

// variantReader is the per-cgroup-version sampling implementation, selected
// once at collector creation so the hot loop never branches on the variant
type variantReader interface {
	columns() []string
	table() Table
	read(rec *Record, bufs *Buffers)
	close()
}

// Options bundle everything needed to create a Collector
type Options struct {
	Target     *target.Target
	Layout     *cgroup.Layout
	Directory  string
	BufferSize int
	// Events receives buffer flush notifications; nil disables flush logging
	Events flushlog.Sink
	System sysinfo.Info
	// Version is the agent version recorded in the file header
	Version string
	Clock   clock.PassiveClock
}

// Collector exclusively owns its log file and cgroup handles from creation
// until Close. Collect is called by the sampling goroutine; Close may be
// called by either the sampling or the polling goroutine (whichever
// observes the teardown condition first), so both are serialized internally.
type Collector struct {
	target *target.Target

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	reader variantReader
	closed bool

	initializedAt int64
}

// New creates a collector for the given target: it opens the log file
// (creating the directory as necessary), writes the CSVY header, opens the
// cgroup accounting file handles and prepares the write buffer.
func New(opts Options) (*Collector, error) {
	if err := os.MkdirAll(opts.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", opts.Directory, err)
	}

	now := opts.Clock.Now()
	initializedAt := now.UnixNano()

	path := filepath.Join(opts.Directory,
		fmt.Sprintf("%s_%d.log", opts.Target.ID, now.Unix()))
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file %s: %w", path, err)
	}

	var reader variantReader
	switch opts.Target.Cgroup.Version {
	case cgroup.V2:
		reader = newV2Reader(opts.Layout, opts.Target.Cgroup.Rel)
	default:
		reader = newV1Reader(opts.Layout, opts.Target.Cgroup.Rel)
	}

	header := FileHeader{
		Version:       opts.Version,
		Provider:      opts.Target.Provider,
		Metadata:      opts.Target.Metadata,
		PerfTable:     reader.table(),
		System:        opts.System,
		Cgroup:        "/" + strings.TrimPrefix(opts.Target.Cgroup.Rel, "/"),
		CgroupDriver:  string(opts.Target.Cgroup.Driver),
		PolledAt:      opts.Target.PolledAt,
		InitializedAt: initializedAt,
	}
	// The header is written straight to the file, before the buffered writer
	// takes over the write side
	if err := header.write(file); err != nil {
		reader.close()
		file.Close()
		return nil, err
	}

	sink := &flushSink{
		file:   file,
		id:     opts.Target.ID,
		events: opts.Events,
		clock:  opts.Clock,
	}
	writer := bufio.NewWriterSize(sink, opts.BufferSize)
	if _, err := writer.WriteString(strings.Join(reader.columns(), ",") + "\n"); err != nil {
		reader.close()
		file.Close()
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	return &Collector{
		target:        opts.Target,
		file:          file,
		writer:        writer,
		reader:        reader,
		initializedAt: initializedAt,
	}, nil
}

// Target returns the target snapshot this collector was created for
func (c *Collector) Target() *target.Target {
	return c.target
}

// InitializedAt returns the nanosecond timestamp of collector creation
func (c *Collector) InitializedAt() int64 {
	return c.initializedAt
}

// Collect appends one sample record taken at the given nanosecond timestamp.
// Faults while reading individual cgroup files degrade to empty fields; an
// error return means the log writer itself failed and the collector should
// be torn down. Collect on a closed collector is a no-op.
func (c *Collector) Collect(nowNs int64, bufs *Buffers) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	rec := bufs.Record
	rec.Reset()
	rec.PushInt(nowNs)
	c.reader.read(rec, bufs)

	if err := rec.WriteRow(c.writer); err != nil {
		return fmt.Errorf("failed to write record for target %s: %w", c.target.ID, err)
	}
	return nil
}

// Close flushes the write buffer (only the written prefix — the tail is
// never padded), closes the log file and releases every cgroup handle.
// Close is idempotent.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	flushErr := c.writer.Flush()
	c.reader.close()
	closeErr := c.file.Close()

	if flushErr != nil {
		return fmt.Errorf("failed to flush buffer for target %s: %w", c.target.ID, flushErr)
	}
	return closeErr
}

// flushSink sits between the buffered writer and the log file, reporting
// every write-through to the flush event sink without ever blocking
type flushSink struct {
	file   *os.File
	id     string
	events flushlog.Sink
	clock  clock.PassiveClock
}

func (s *flushSink) Write(p []byte) (int, error) {
	n, err := s.file.Write(p)
	if s.events != nil {
		s.events.Enqueue(flushlog.Event{
			TargetID:  s.id,
			FlushedAt: s.clock.Now().UnixNano(),
			ByteCount: n,
			Outcome:   err == nil,
		})
	}
	return n, err
}
