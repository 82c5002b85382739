// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime"
	"testing"
)

func TestInfo(t *testing.T) {
	info := Info()

	// Check that runtime fields are properly set
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %v, want %v", info.GoVersion, runtime.Version())
	}

	if info.GoOS != runtime.GOOS {
		t.Errorf("GoOS = %v, want %v", info.GoOS, runtime.GOOS)
	}

	if info.GoArch != runtime.GOARCH {
		t.Errorf("GoArch = %v, want %v", info.GoArch, runtime.GOARCH)
	}
}

func TestVersionValues(t *testing.T) {
	testCases := []struct {
		name   string
		ver    string
		want   string
		time   string
		branch string
		commit string
	}{
		{
			name: "empty version falls back to unknown",
			ver:  "",
			want: "unknown",
		},
		{
			name:   "typical values",
			ver:    "v1.4.0",
			want:   "v1.4.0",
			time:   "2025-04-01T12:00:00Z",
			branch: "main",
			commit: "abcdef123456",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			version = tc.ver
			buildTime = tc.time
			gitBranch = tc.branch
			gitCommit = tc.commit

			info := Info()

			if info.Version != tc.want {
				t.Errorf("Version = %v, want %v", info.Version, tc.want)
			}

			if info.BuildTime != tc.time {
				t.Errorf("BuildTime = %v, want %v", info.BuildTime, tc.time)
			}

			if info.GitBranch != tc.branch {
				t.Errorf("GitBranch = %v, want %v", info.GitBranch, tc.branch)
			}

			if info.GitCommit != tc.commit {
				t.Errorf("GitCommit = %v, want %v", info.GitCommit, tc.commit)
			}
		})
	}
}
