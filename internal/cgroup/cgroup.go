// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

// Package cgroup knows how the kernel exposes per-container accounting
// under /sys/fs/cgroup: which hierarchy layout (v1 or v2) is mounted, which
// driver convention (cgroupfs or systemd) the container runtime uses for
// paths, and how to turn a target's identity into an existing cgroup path.
package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMountRoot is the standard cgroup mount point on Linux
const DefaultMountRoot = "/sys/fs/cgroup"

// Version is the cgroup hierarchy layout exposed by the kernel
type Version string

const (
	V1 Version = "v1"
	V2 Version = "v2"
)

// Driver is the path convention used by the container runtime
type Driver string

const (
	DriverCgroupfs Driver = "cgroupfs"
	DriverSystemd  Driver = "systemd"
)

// v1Subsystems are the per-subsystem roots of a cgroup v1 mount.
// cpuacct is listed first since it is the most likely to exist,
// making it the first checked during existence probes.
var v1Subsystems = []string{
	"cpuacct",
	"cpu",
	"cpuset",
	"memory",
	"devices",
	"freezer",
	"net_cls",
	"blkio",
	"perf_event",
	"net_prio",
	"hugetlb",
	"pids",
	"rdma",
}

// Layout is the detected cgroup mount layout, resolved once at startup and
// threaded through the components that read the hierarchy.
type Layout struct {
	Version   Version
	MountRoot string
}

// Detect probes the mount layout under mountRoot (pass DefaultMountRoot in
// production). A hybrid host that still mounts v1 subsystem roots is treated
// as v1, since the accounting files of interest live in the v1 trees there.
func Detect(mountRoot string) (*Layout, error) {
	if _, err := os.Stat(mountRoot); err != nil {
		return nil, fmt.Errorf("cgroups do not appear to be mounted at %s: %w", mountRoot, err)
	}

	for _, subsystem := range v1Subsystems {
		if isDir(filepath.Join(mountRoot, subsystem)) {
			return &Layout{Version: V1, MountRoot: mountRoot}, nil
		}
	}

	if _, err := os.Stat(filepath.Join(mountRoot, "cgroup.controllers")); err == nil {
		return &Layout{Version: V2, MountRoot: mountRoot}, nil
	}

	return nil, fmt.Errorf("no usable cgroup hierarchy found under %s", mountRoot)
}

// SubsystemFile returns the absolute path of an accounting file in a v1
// subsystem tree, e.g. /sys/fs/cgroup/memory/<cgroup>/memory.stat
func (l *Layout) SubsystemFile(subsystem, cgroup, file string) string {
	return filepath.Join(l.MountRoot, subsystem, cgroup, file)
}

// UnifiedFile returns the absolute path of an accounting file in the v2
// unified tree, e.g. /sys/fs/cgroup/<cgroup>/memory.stat
func (l *Layout) UnifiedFile(cgroup, file string) string {
	return filepath.Join(l.MountRoot, cgroup, file)
}

// Exists reports whether the given cgroup (relative to the mount root)
// exists in the hierarchy. For v1, a cgroup exists if it appears under any
// mounted subsystem root.
func (l *Layout) Exists(cgroup string) bool {
	switch l.Version {
	case V1:
		for _, subsystem := range v1Subsystems {
			if isDir(filepath.Join(l.MountRoot, subsystem, cgroup)) {
				return true
			}
		}
		return false
	default:
		return isDir(filepath.Join(l.MountRoot, cgroup))
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// EscapeSystemd escapes a cgroup name component the way the kubelet does
// before embedding it in a systemd slice name
func EscapeSystemd(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// SystemdSliceHierarchy converts name components such as
//
//	["kubepods", "burstable", "pod1234-5678"]
//
// into the nested systemd slice path
//
//	kubepods.slice/kubepods-burstable.slice/kubepods-burstable-pod1234_5678.slice
//
// mirroring kubelet's cgroup_manager_linux.go ToSystemd conversion.
func SystemdSliceHierarchy(components ...string) string {
	if len(components) == 0 || (len(components) == 1 && components[0] == "") {
		return ""
	}

	var path strings.Builder
	var accumulator string
	for i, component := range components {
		escaped := EscapeSystemd(component)
		if i > 0 {
			path.WriteByte('/')
		}
		path.WriteString(accumulator)
		path.WriteString(escaped)
		path.WriteString(".slice")

		accumulator += escaped + "-"
	}
	return path.String()
}
