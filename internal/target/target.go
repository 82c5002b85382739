// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

// Package target defines the unit of monitoring shared between the providers
// and the collection engine.
package target

import "github.com/elba-docker/radvisor/internal/cgroup"

// Target is a single discovered container or pod selected for monitoring.
// Targets are value-equal by ID; the rest of the fields are a snapshot of the
// provider's view at poll time and are preserved verbatim in the log header.
type Target struct {
	// ID is the stable identity of the target: the full container id for
	// Docker, the pod uid for Kubernetes
	ID string
	// Name is a human-readable name used in log messages only
	Name string
	// Provider is the name of the provider that discovered this target
	Provider string
	// Metadata holds the provider-specific structured fields emitted under
	// the Metadata key of the log file header; it must marshal cleanly to
	// YAML
	Metadata any
	// Cgroup is the resolved cgroup of the target
	Cgroup cgroup.Path
	// PolledAt is the nanosecond timestamp of the provider fetch that
	// returned this target
	PolledAt int64
}
