// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"os"
	"runtime"

	"github.com/elba-docker/radvisor/internal/cgroup"
)

// memoryStatKeys are the entries of the v1 memory.stat file that map to
// columns, in column order
var memoryStatKeys = [][]byte{
	[]byte("hierarchical_memory_limit"),
	[]byte("hierarchical_memsw_limit"),
	[]byte("total_cache"),
	[]byte("total_rss"),
	[]byte("total_rss_huge"),
	[]byte("total_mapped_file"),
	[]byte("total_swap"),
	[]byte("total_pgpgin"),
	[]byte("total_pgpgout"),
	[]byte("total_pgfault"),
	[]byte("total_pgmajfault"),
	[]byte("total_inactive_anon"),
	[]byte("total_active_anon"),
	[]byte("total_inactive_file"),
	[]byte("total_active_file"),
	[]byte("total_unevictable"),
}

var cpuacctStatKeys = [][]byte{
	[]byte("user"),
	[]byte("system"),
}

var cpuStatV1Keys = [][]byte{
	[]byte("nr_periods"),
	[]byte("nr_throttled"),
	[]byte("throttled_time"),
}

// emptyDefaults returns n empty-string defaults (v1 key/value files degrade
// to empty fields when a key is missing)
func emptyDefaults(n int) []string {
	return make([]string, n)
}

var (
	memoryStatDefaults = emptyDefaults(len(memoryStatKeys))
	cpuacctStatDefault = emptyDefaults(len(cpuacctStatKeys))
	cpuStatV1Defaults  = emptyDefaults(len(cpuStatV1Keys))
)

// ioColumnBases are the v1 blkio statistic groups that expand to four
// per-operation columns each
var ioColumnBases = []string{
	"blkio.service.bytes",
	"blkio.service.ios",
	"blkio.service.time",
	"blkio.queued",
	"blkio.wait",
	"blkio.merged",
	"blkio.throttle.service.bytes",
	"blkio.throttle.service.ios",
	"blkio.bfq.service.bytes",
	"blkio.bfq.service.ios",
}

var v1Header = makeV1Header()

func makeV1Header() []string {
	header := []string{
		"read",
		"pids.current",
		"pids.max",
		"cpu.usage.total",
		"cpu.usage.system",
		"cpu.usage.user",
		"cpu.usage.percpu",
		"cpu.stat.user",
		"cpu.stat.system",
		"cpu.throttling.periods",
		"cpu.throttling.throttled.count",
		"cpu.throttling.throttled.time",
		"memory.usage.current",
		"memory.usage.max",
		"memory.limit.hard",
		"memory.limit.soft",
		"memory.failcnt",
		"memory.hierarchical_limit.memory",
		"memory.hierarchical_limit.memoryswap",
		"memory.cache",
		"memory.rss.all",
		"memory.rss.huge",
		"memory.mapped",
		"memory.swap",
		"memory.paged.in",
		"memory.paged.out",
		"memory.fault.total",
		"memory.fault.major",
		"memory.anon.inactive",
		"memory.anon.active",
		"memory.file.inactive",
		"memory.file.active",
		"memory.unevictable",
		"blkio.time",
		"blkio.sectors",
	}
	for _, base := range ioColumnBases {
		header = append(header,
			base+".read", base+".write", base+".sync", base+".async")
	}
	return header
}

// v1Reader samples a target through the per-subsystem roots of a cgroup v1
// hierarchy. Handles that fail to open stay nil and read as empty fields.
type v1Reader struct {
	pidsCurrent *os.File
	pidsMax     *os.File

	cpuacctUsage       *os.File
	cpuacctUsageSys    *os.File
	cpuacctUsageUser   *os.File
	cpuacctUsagePercpu *os.File
	cpuacctStat        *os.File
	cpuStat            *os.File

	memoryUsage     *os.File
	memoryMaxUsage  *os.File
	memoryLimit     *os.File
	memorySoftLimit *os.File
	memoryFailcnt   *os.File
	memoryStat      *os.File

	blkioTime    *os.File
	blkioSectors *os.File
	blkioIo      []*os.File // one per entry of ioColumnBases
}

func newV1Reader(layout *cgroup.Layout, path string) *v1Reader {
	o := func(subsystem, file string) *os.File {
		f, err := os.Open(layout.SubsystemFile(subsystem, path, file))
		if err != nil {
			return nil
		}
		return f
	}

	return &v1Reader{
		pidsCurrent: o("pids", "pids.current"),
		pidsMax:     o("pids", "pids.max"),

		cpuacctUsage:       o("cpuacct", "cpuacct.usage"),
		cpuacctUsageSys:    o("cpuacct", "cpuacct.usage_sys"),
		cpuacctUsageUser:   o("cpuacct", "cpuacct.usage_user"),
		cpuacctUsagePercpu: o("cpuacct", "cpuacct.usage_percpu"),
		cpuacctStat:        o("cpuacct", "cpuacct.stat"),
		cpuStat:            o("cpu", "cpu.stat"),

		memoryUsage:     o("memory", "memory.usage_in_bytes"),
		memoryMaxUsage:  o("memory", "memory.max_usage_in_bytes"),
		memoryLimit:     o("memory", "memory.limit_in_bytes"),
		memorySoftLimit: o("memory", "memory.soft_limit_in_bytes"),
		memoryFailcnt:   o("memory", "memory.failcnt"),
		memoryStat:      o("memory", "memory.stat"),

		blkioTime:    o("blkio", "blkio.time_recursive"),
		blkioSectors: o("blkio", "blkio.sectors_recursive"),
		blkioIo: []*os.File{
			o("blkio", "blkio.io_service_bytes_recursive"),
			o("blkio", "blkio.io_serviced_recursive"),
			o("blkio", "blkio.io_service_time_recursive"),
			o("blkio", "blkio.io_queued_recursive"),
			o("blkio", "blkio.io_wait_time_recursive"),
			o("blkio", "blkio.io_merged_recursive"),
			o("blkio", "blkio.throttle.io_service_bytes"),
			o("blkio", "blkio.throttle.io_serviced"),
			o("blkio", "blkio.bfq.io_service_bytes_recursive"),
			o("blkio", "blkio.bfq.io_serviced_recursive"),
		},
	}
}

func (r *v1Reader) columns() []string {
	return v1Header
}

func (r *v1Reader) table() Table {
	return Table{
		Delimiter: ",",
		Columns: map[string]Column{
			"read": {Type: ColumnTypeEpoch19},
			// space-delimited vector with one entry per CPU
			"cpu.usage.percpu": {Type: ColumnTypeInt, Count: runtime.NumCPU()},
		},
	}
}

func (r *v1Reader) read(rec *Record, bufs *Buffers) {
	// pids subsystem
	readEntry(r.pidsCurrent, rec, bufs)
	readEntry(r.pidsMax, rec, bufs)

	// cpu/cpuacct subsystems
	readEntry(r.cpuacctUsage, rec, bufs)
	readEntry(r.cpuacctUsageSys, rec, bufs)
	readEntry(r.cpuacctUsageUser, rec, bufs)
	readEntry(r.cpuacctUsagePercpu, rec, bufs)
	readFlatKeyed(r.cpuacctStat, rec, bufs, cpuacctStatKeys, cpuacctStatDefault)
	readFlatKeyed(r.cpuStat, rec, bufs, cpuStatV1Keys, cpuStatV1Defaults)

	// memory subsystem
	readEntry(r.memoryUsage, rec, bufs)
	readEntry(r.memoryMaxUsage, rec, bufs)
	readEntry(r.memoryLimit, rec, bufs)
	readEntry(r.memorySoftLimit, rec, bufs)
	readEntry(r.memoryFailcnt, rec, bufs)
	readFlatKeyed(r.memoryStat, rec, bufs, memoryStatKeys, memoryStatDefaults)

	// blkio subsystem
	readV1SimpleIo(r.blkioTime, rec, bufs)
	readV1SimpleIo(r.blkioSectors, rec, bufs)
	for _, f := range r.blkioIo {
		readV1Io(f, rec, bufs)
	}
}

func (r *v1Reader) close() {
	handles := []*os.File{
		r.pidsCurrent, r.pidsMax,
		r.cpuacctUsage, r.cpuacctUsageSys, r.cpuacctUsageUser,
		r.cpuacctUsagePercpu, r.cpuacctStat, r.cpuStat,
		r.memoryUsage, r.memoryMaxUsage, r.memoryLimit,
		r.memorySoftLimit, r.memoryFailcnt, r.memoryStat,
		r.blkioTime, r.blkioSectors,
	}
	handles = append(handles, r.blkioIo...)
	for _, f := range handles {
		if f != nil {
			f.Close()
		}
	}
}
