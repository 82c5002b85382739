// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package flushlog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flush.log")
	l := New(path)
	require.NoError(t, l.Init())
	return l
}

func TestLogWritesEvents(t *testing.T) {
	l := newTestLog(t)

	require.True(t, l.Enqueue(Event{TargetID: "aaa", FlushedAt: 100, ByteCount: 4096, Outcome: true}))
	require.True(t, l.Enqueue(Event{TargetID: "bbb", FlushedAt: 200, ByteCount: 512, Outcome: false}))

	// Cancelled context: Run drains what is queued, writes it out and returns
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, l.Run(ctx))

	data, err := os.ReadFile(l.path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "target_id,flushed_at_ns,byte_count,outcome", lines[0])
	assert.Equal(t, "aaa,100,4096,true", lines[1])
	assert.Equal(t, "bbb,200,512,false", lines[2])
}

func TestLogDropsWhenFull(t *testing.T) {
	l := newTestLog(t)
	t.Cleanup(func() { _ = l.Shutdown() })

	for i := 0; i < eventBufferLength; i++ {
		require.True(t, l.Enqueue(Event{TargetID: "x"}))
	}

	// The sink never blocks: the event beyond the buffer is dropped
	done := make(chan bool, 1)
	go func() { done <- l.Enqueue(Event{TargetID: "overflow"}) }()
	select {
	case accepted := <-done:
		assert.False(t, accepted)
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full buffer")
	}
	assert.Equal(t, uint64(1), l.dropped.Load())
}

func TestLogShutdownIdempotent(t *testing.T) {
	l := newTestLog(t)
	assert.NoError(t, l.Shutdown())
	assert.NoError(t, l.Shutdown())
}

func TestLogName(t *testing.T) {
	assert.Equal(t, "flush-log", New("unused").Name())
}
