// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package cgroup

import (
	"fmt"
	"log/slog"
	"sync"
)

// Path is a resolved, existing cgroup path for a target, relative to the
// cgroup mount root
type Path struct {
	Rel     string
	Driver  Driver
	Version Version
}

// Candidates are the driver-specific relative paths a target's cgroup could
// live at; the resolver picks the one that exists
type Candidates struct {
	Cgroupfs string
	Systemd  string
}

// Resolver lazily identifies the cgroup driver in use by probing which
// candidate path exists, then sticks with that driver for all later targets.
// It is only used from the poll loop, but is safe for concurrent use.
type Resolver struct {
	logger *slog.Logger
	layout *Layout

	mu     sync.Mutex
	driver Driver // empty until resolved
}

func NewResolver(layout *Layout, logger *slog.Logger) *Resolver {
	return &Resolver{
		logger: logger.With("service", "cgroup-resolver"),
		layout: layout,
	}
}

// Layout returns the detected mount layout the resolver operates on
func (r *Resolver) Layout() *Layout {
	return r.layout
}

// Driver returns the resolved driver, or empty if no target has resolved yet
func (r *Resolver) Driver() Driver {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.driver
}

// Resolve picks the candidate path matching the detected driver and verifies
// that it exists in the hierarchy. On the first call the driver is unknown;
// both candidates are probed (systemd first, since modern distributions
// default to it) and the successful one fixes the driver for future calls.
func (r *Resolver) Resolve(c Candidates) (Path, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.driver != "" {
		rel := c.Cgroupfs
		if r.driver == DriverSystemd {
			rel = c.Systemd
		}
		if !r.layout.Exists(rel) {
			return Path{}, fmt.Errorf("cgroup %q not found under %s", rel, r.layout.MountRoot)
		}
		return Path{Rel: rel, Driver: r.driver, Version: r.layout.Version}, nil
	}

	if r.layout.Exists(c.Systemd) {
		r.driver = DriverSystemd
		r.logger.Info("Identified cgroup driver", "driver", DriverSystemd)
		return Path{Rel: c.Systemd, Driver: DriverSystemd, Version: r.layout.Version}, nil
	}
	if r.layout.Exists(c.Cgroupfs) {
		r.driver = DriverCgroupfs
		r.logger.Info("Identified cgroup driver", "driver", DriverCgroupfs)
		return Path{Rel: c.Cgroupfs, Driver: DriverCgroupfs, Version: r.layout.Version}, nil
	}

	return Path{}, fmt.Errorf("cgroup not found under %s (tried %q and %q)",
		r.layout.MountRoot, c.Systemd, c.Cgroupfs)
}
