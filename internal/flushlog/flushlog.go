// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package flushlog

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/jszwec/csvutil"
)

// eventBufferLength bounds the channel between the sampling goroutine and
// the writer; events beyond it are dropped rather than ever blocking a sample
const eventBufferLength = 8 * 1024

// Log consumes flush events from a bounded single-producer single-consumer
// channel and appends them to a CSV file on its own goroutine.
type Log struct {
	logger *slog.Logger
	path   string

	events  chan Event
	dropped atomic.Uint64

	mu      sync.Mutex
	closed  bool
	file    *os.File
	csv     *csv.Writer
	encoder *csvutil.Encoder
}

var _ Sink = (*Log)(nil)

type OptionFn func(*Log)

func WithLogger(logger *slog.Logger) OptionFn {
	return func(l *Log) {
		l.logger = logger.With("service", "flush-log")
	}
}

func New(path string, opts ...OptionFn) *Log {
	l := &Log{
		logger: slog.Default().With("service", "flush-log"),
		path:   path,
		events: make(chan Event, eventBufferLength),
	}
	for _, apply := range opts {
		apply(l)
	}
	return l
}

func (l *Log) Name() string {
	return "flush-log"
}

// Init creates the event log file, truncating any previous run's log
func (l *Log) Init() error {
	file, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create flush event log %s: %w", l.path, err)
	}
	l.file = file
	l.csv = csv.NewWriter(file)
	l.encoder = csvutil.NewEncoder(l.csv)
	return nil
}

// Enqueue offers an event without ever blocking; when the buffer is full the
// event is counted as dropped
func (l *Log) Enqueue(event Event) bool {
	select {
	case l.events <- event:
		return true
	default:
		l.dropped.Add(1)
		return false
	}
}

// Run drains the event channel until the context is cancelled, then writes
// out any events still queued
func (l *Log) Run(ctx context.Context) error {
	count := 0
	for {
		select {
		case event := <-l.events:
			if err := l.write(event); err != nil {
				return err
			}
			count++

		case <-ctx.Done():
			for {
				select {
				case event := <-l.events:
					if err := l.write(event); err != nil {
						return err
					}
					count++
				default:
					err := l.close()
					l.logger.Info("Wrote buffer flush events", "path", l.path, "count", count)
					if dropped := l.dropped.Load(); dropped > 0 {
						l.logger.Warn("Dropped buffer flush events under load",
							"count", dropped)
					}
					return err
				}
			}
		}
	}
}

func (l *Log) write(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write flush event: %w", err)
	}
	l.csv.Flush()
	return l.csv.Error()
}

// close flushes and closes the log file; idempotent since both Run (after
// draining) and Shutdown (via the run group) reach it
func (l *Log) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.file == nil {
		l.closed = true
		return nil
	}
	l.closed = true
	l.csv.Flush()
	flushErr := l.csv.Error()
	if err := l.file.Close(); err != nil {
		return err
	}
	return flushErr
}

func (l *Log) Shutdown() error {
	return l.close()
}
