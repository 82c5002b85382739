// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

// Package provider abstracts the external systems (the Docker daemon, the
// Kubernetes API server) that the engine discovers collection targets from.
package provider

import (
	"context"

	"github.com/elba-docker/radvisor/internal/target"
)

// Provider is the narrow contract the poll loop drives: one-time
// initialization with a connection check, then an on-demand listing of the
// currently-running targets. Implementations are used from the polling
// goroutine only.
type Provider interface {
	// Name identifies the provider in log file headers and log messages
	Name() string
	// Init establishes connectivity, failing fast (with a human-actionable
	// message) when the backend is unreachable
	Init(ctx context.Context) error
	// Fetch returns the current set of running targets with their cgroups
	// resolved; targets whose cgroup cannot be resolved are skipped
	Fetch(ctx context.Context) ([]*target.Target, error)
}
