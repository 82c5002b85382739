// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

// Package sysinfo gathers the mostly-static host facts recorded in the
// System block of every log file header.
package sysinfo

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// Info is the System block of the log file header
type Info struct {
	OsType         string        `yaml:"OsType,omitempty"`
	OsRelease      string        `yaml:"OsRelease,omitempty"`
	Distribution   *Distribution `yaml:"Distribution,omitempty"`
	MemoryTotal    uint64        `yaml:"MemoryTotal,omitempty"`
	SwapTotal      uint64        `yaml:"SwapTotal"`
	Hostname       string        `yaml:"Hostname,omitempty"`
	CpuCount       int           `yaml:"CpuCount"`
	CpuOnlineCount int           `yaml:"CpuOnlineCount"`
	CpuSpeed       uint64        `yaml:"CpuSpeed,omitempty"`
}

// Distribution mirrors the os-release fields
// (https://www.freedesktop.org/software/systemd/man/os-release.html)
type Distribution struct {
	Id              string `yaml:"Id,omitempty"`
	IdLike          string `yaml:"IdLike,omitempty"`
	Name            string `yaml:"Name,omitempty"`
	PrettyName      string `yaml:"PrettyName,omitempty"`
	Version         string `yaml:"Version,omitempty"`
	VersionId       string `yaml:"VersionId,omitempty"`
	VersionCodename string `yaml:"VersionCodename,omitempty"`
	CpeName         string `yaml:"CpeName,omitempty"`
	BuildId         string `yaml:"BuildId,omitempty"`
	Variant         string `yaml:"Variant,omitempty"`
	VariantId       string `yaml:"VariantId,omitempty"`
}

// Reader gathers host facts from the standard virtual filesystems. Paths are
// parameterized so tests can point it at fixture trees.
type Reader struct {
	procPath      string
	osReleasePath string
	cpuOnlinePath string
}

type OptionFn func(*Reader)

func WithProcPath(path string) OptionFn {
	return func(r *Reader) { r.procPath = path }
}

func WithOsReleasePath(path string) OptionFn {
	return func(r *Reader) { r.osReleasePath = path }
}

func WithCpuOnlinePath(path string) OptionFn {
	return func(r *Reader) { r.cpuOnlinePath = path }
}

func NewReader(opts ...OptionFn) *Reader {
	r := &Reader{
		procPath:      "/proc",
		osReleasePath: "/etc/os-release",
		cpuOnlinePath: "/sys/devices/system/cpu/online",
	}
	for _, apply := range opts {
		apply(r)
	}
	return r
}

// Get collects the current system info, leaving fields at their zero value
// when a source is unavailable. It never fails: the header omits what could
// not be gathered, except SwapTotal, which is always written (0 when unknown).
func (r *Reader) Get() Info {
	osType := runtime.GOOS
	if osType != "" {
		osType = strings.ToUpper(osType[:1]) + osType[1:]
	}
	info := Info{
		OsType:         osType,
		CpuCount:       runtime.NumCPU(),
		CpuOnlineCount: runtime.NumCPU(),
	}

	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		info.OsRelease = unix.ByteSliceToString(uts.Release[:])
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}

	if fs, err := procfs.NewFS(r.procPath); err == nil {
		if meminfo, err := fs.Meminfo(); err == nil {
			if meminfo.MemTotal != nil {
				info.MemoryTotal = *meminfo.MemTotal
			}
			if meminfo.SwapTotal != nil {
				info.SwapTotal = *meminfo.SwapTotal
			}
		}
		if cpus, err := fs.CPUInfo(); err == nil && len(cpus) > 0 {
			info.CpuSpeed = uint64(cpus[0].CPUMHz)
		}
	}

	if online, err := os.ReadFile(r.cpuOnlinePath); err == nil {
		if count := countCpuList(strings.TrimSpace(string(online))); count > 0 {
			info.CpuOnlineCount = count
		}
	}

	info.Distribution = readOsRelease(r.osReleasePath)

	return info
}

// countCpuList counts the cpus in a kernel cpu list string such as "0-3,5"
func countCpuList(list string) int {
	if list == "" {
		return 0
	}
	count := 0
	for _, group := range strings.Split(list, ",") {
		if lo, hi, ok := strings.Cut(group, "-"); ok {
			start, err1 := strconv.Atoi(lo)
			end, err2 := strconv.Atoi(hi)
			if err1 != nil || err2 != nil || end < start {
				continue
			}
			count += end - start + 1
		} else if _, err := strconv.Atoi(group); err == nil {
			count++
		}
	}
	return count
}

func readOsRelease(path string) *Distribution {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	fields := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[key] = strings.Trim(value, `"'`)
	}

	return &Distribution{
		Id:              fields["ID"],
		IdLike:          fields["ID_LIKE"],
		Name:            fields["NAME"],
		PrettyName:      fields["PRETTY_NAME"],
		Version:         fields["VERSION"],
		VersionId:       fields["VERSION_ID"],
		VersionCodename: fields["VERSION_CODENAME"],
		CpeName:         fields["CPE_NAME"],
		BuildId:         fields["BUILD_ID"],
		Variant:         fields["VARIANT"],
		VariantId:       fields["VARIANT_ID"],
	}
}
