// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package cgroup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeV1Root builds a v1-style mount layout with the given cgroups present
// under every listed subsystem
func makeV1Root(t *testing.T, subsystems []string, cgroups ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, subsystem := range subsystems {
		require.NoError(t, os.MkdirAll(filepath.Join(root, subsystem), 0o755))
		for _, cg := range cgroups {
			require.NoError(t, os.MkdirAll(filepath.Join(root, subsystem, cg), 0o755))
		}
	}
	return root
}

// makeV2Root builds a unified v2-style mount layout with the given cgroups
func makeV2Root(t *testing.T, cgroups ...string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "cgroup.controllers"), []byte("cpu io memory pids\n"), 0o644))
	for _, cg := range cgroups {
		require.NoError(t, os.MkdirAll(filepath.Join(root, cg), 0o755))
	}
	return root
}

func TestDetect(t *testing.T) {
	t.Run("v1 layout", func(t *testing.T) {
		root := makeV1Root(t, []string{"cpuacct", "memory"})
		layout, err := Detect(root)
		require.NoError(t, err)
		assert.Equal(t, V1, layout.Version)
	})

	t.Run("v2 layout", func(t *testing.T) {
		root := makeV2Root(t)
		layout, err := Detect(root)
		require.NoError(t, err)
		assert.Equal(t, V2, layout.Version)
	})

	t.Run("hybrid prefers v1", func(t *testing.T) {
		root := makeV1Root(t, []string{"cpuacct"})
		require.NoError(t, os.WriteFile(
			filepath.Join(root, "cgroup.controllers"), []byte("cpu\n"), 0o644))
		layout, err := Detect(root)
		require.NoError(t, err)
		assert.Equal(t, V1, layout.Version)
	})

	t.Run("neither layout fails fast", func(t *testing.T) {
		_, err := Detect(t.TempDir())
		assert.Error(t, err)
	})

	t.Run("unmounted root fails fast", func(t *testing.T) {
		_, err := Detect(filepath.Join(t.TempDir(), "missing"))
		assert.Error(t, err)
	})
}

func TestLayoutExists(t *testing.T) {
	t.Run("v1 checks every subsystem root", func(t *testing.T) {
		// present only under blkio, not cpuacct
		root := makeV1Root(t, []string{"cpuacct"})
		require.NoError(t, os.MkdirAll(filepath.Join(root, "blkio", "docker", "abc"), 0o755))

		layout, err := Detect(root)
		require.NoError(t, err)
		assert.True(t, layout.Exists("docker/abc"))
		assert.False(t, layout.Exists("docker/def"))
	})

	t.Run("v2 checks the unified tree", func(t *testing.T) {
		root := makeV2Root(t, "system.slice/docker-abc.scope")
		layout, err := Detect(root)
		require.NoError(t, err)
		assert.True(t, layout.Exists("system.slice/docker-abc.scope"))
		assert.False(t, layout.Exists("system.slice/docker-def.scope"))
	})
}

func TestLayoutFilePaths(t *testing.T) {
	layout := &Layout{Version: V1, MountRoot: "/sys/fs/cgroup"}
	assert.Equal(t, "/sys/fs/cgroup/memory/docker/abc/memory.stat",
		layout.SubsystemFile("memory", "docker/abc", "memory.stat"))

	unified := &Layout{Version: V2, MountRoot: "/sys/fs/cgroup"}
	assert.Equal(t, "/sys/fs/cgroup/system.slice/docker-abc.scope/cpu.stat",
		unified.UnifiedFile("system.slice/docker-abc.scope", "cpu.stat"))
}

func TestEscapeSystemd(t *testing.T) {
	assert.Equal(t, "pod1234_5678", EscapeSystemd("pod1234-5678"))
	assert.Equal(t, "kubepods", EscapeSystemd("kubepods"))
}

func TestSystemdSliceHierarchy(t *testing.T) {
	tests := []struct {
		name       string
		components []string
		want       string
	}{{
		name:       "kubepods pod hierarchy",
		components: []string{"kubepods", "burstable", "pod1234-5678"},
		want:       "kubepods.slice/kubepods-burstable.slice/kubepods-burstable-pod1234_5678.slice",
	}, {
		name:       "single component",
		components: []string{"kubepods"},
		want:       "kubepods.slice",
	}, {
		name:       "empty",
		components: nil,
		want:       "",
	}, {
		name:       "single empty component",
		components: []string{""},
		want:       "",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SystemdSliceHierarchy(tt.components...))
		})
	}
}
