// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"fmt"
	"io"

	"github.com/elba-docker/radvisor/internal/sysinfo"
	"gopkg.in/yaml.v3"
)

// FileHeader is the YAML front matter written at the top of every log file,
// fenced by `---` lines, before the CSV header row
type FileHeader struct {
	Version       string       `yaml:"Version"`
	Provider      string       `yaml:"Provider"`
	Metadata      any          `yaml:"Metadata,omitempty"`
	PerfTable     Table        `yaml:"PerfTable"`
	System        sysinfo.Info `yaml:"System"`
	Cgroup        string       `yaml:"Cgroup"`
	CgroupDriver  string       `yaml:"CgroupDriver"`
	PolledAt      int64        `yaml:"PolledAt"`
	InitializedAt int64        `yaml:"InitializedAt"`
}

const headerFence = "---\n"

// write emits the fenced YAML front matter. The first bytes of the file are
// `---\n` and exactly two fence lines precede the CSV header row.
func (h *FileHeader) write(w io.Writer) error {
	body, err := yaml.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal log file header: %w", err)
	}

	for _, chunk := range [][]byte{[]byte(headerFence), body, []byte(headerFence)} {
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("failed to write log file header: %w", err)
		}
	}
	return nil
}
