// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"os"

	"github.com/elba-docker/radvisor/internal/cgroup"
)

// Whitelisted keys of the v2 cpu.stat file, in column order
var cpuStatV2Keys = [][]byte{
	[]byte("usage_usec"),
	[]byte("system_usec"),
	[]byte("user_usec"),
	[]byte("nr_periods"),
	[]byte("nr_throttled"),
	[]byte("throttled_usec"),
}

// Whitelisted keys of the v2 memory.stat file, in column order
var memoryStatV2Keys = [][]byte{
	[]byte("anon"),
	[]byte("file"),
	[]byte("kernel_stack"),
	[]byte("pagetables"),
	[]byte("percpu"),
	[]byte("sock"),
	[]byte("shmem"),
	[]byte("file_mapped"),
	[]byte("file_dirty"),
	[]byte("file_writeback"),
	[]byte("swapcached"),
	[]byte("inactive_anon"),
	[]byte("active_anon"),
	[]byte("inactive_file"),
	[]byte("active_file"),
	[]byte("unevictable"),
	[]byte("pgfault"),
	[]byte("pgmajfault"),
}

// Keys summed across devices from the v2 io.stat file, in column order
var ioStatV2Keys = [][]byte{
	[]byte("rbytes"),
	[]byte("wbytes"),
	[]byte("rios"),
	[]byte("wios"),
	[]byte("dbytes"),
	[]byte("dios"),
}

// Keys present in the file but absent from a read default to zero; the
// kernel omits lines for controllers with no activity
func zeroDefaults(n int) []string {
	defaults := make([]string, n)
	for i := range defaults {
		defaults[i] = "0"
	}
	return defaults
}

var (
	cpuStatV2Defaults    = zeroDefaults(len(cpuStatV2Keys))
	memoryStatV2Defaults = zeroDefaults(len(memoryStatV2Keys))
)

var v2Header = makeV2Header()

func makeV2Header() []string {
	header := []string{
		"read",
		"pids.current",
		"pids.max",
	}
	for _, key := range cpuStatV2Keys {
		header = append(header, "cpu.stat/"+string(key))
	}
	header = append(header, "memory.current", "memory.high", "memory.max")
	for _, key := range memoryStatV2Keys {
		header = append(header, "memory.stat/"+string(key))
	}
	for _, key := range ioStatV2Keys {
		header = append(header, "io.stat/"+string(key))
	}
	return header
}

// v2Reader samples a target through the unified cgroup v2 hierarchy.
// Handles that fail to open stay nil and read as empty fields.
type v2Reader struct {
	pidsCurrent   *os.File
	pidsMax       *os.File
	cpuStat       *os.File
	memoryCurrent *os.File
	memoryHigh    *os.File
	memoryMax     *os.File
	memoryStat    *os.File
	ioStat        *os.File
}

func newV2Reader(layout *cgroup.Layout, path string) *v2Reader {
	o := func(file string) *os.File {
		f, err := os.Open(layout.UnifiedFile(path, file))
		if err != nil {
			return nil
		}
		return f
	}

	return &v2Reader{
		pidsCurrent:   o("pids.current"),
		pidsMax:       o("pids.max"),
		cpuStat:       o("cpu.stat"),
		memoryCurrent: o("memory.current"),
		memoryHigh:    o("memory.high"),
		memoryMax:     o("memory.max"),
		memoryStat:    o("memory.stat"),
		ioStat:        o("io.stat"),
	}
}

func (r *v2Reader) columns() []string {
	return v2Header
}

func (r *v2Reader) table() Table {
	return Table{
		Delimiter: ",",
		Columns: map[string]Column{
			"read": {Type: ColumnTypeEpoch19},
		},
	}
}

func (r *v2Reader) read(rec *Record, bufs *Buffers) {
	// pids controller
	readEntry(r.pidsCurrent, rec, bufs)
	readEntry(r.pidsMax, rec, bufs)

	// cpu controller
	readFlatKeyed(r.cpuStat, rec, bufs, cpuStatV2Keys, cpuStatV2Defaults)

	// memory controller
	readEntry(r.memoryCurrent, rec, bufs)
	readEntry(r.memoryHigh, rec, bufs)
	readEntry(r.memoryMax, rec, bufs)
	readFlatKeyed(r.memoryStat, rec, bufs, memoryStatV2Keys, memoryStatV2Defaults)

	// io controller
	readV2IoStat(r.ioStat, rec, bufs, ioStatV2Keys)
}

func (r *v2Reader) close() {
	for _, f := range []*os.File{
		r.pidsCurrent, r.pidsMax, r.cpuStat,
		r.memoryCurrent, r.memoryHigh, r.memoryMax,
		r.memoryStat, r.ioStat,
	} {
		if f != nil {
			f.Close()
		}
	}
}
