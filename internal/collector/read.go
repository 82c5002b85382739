// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"bytes"
	"io"
	"os"
)

// Parsing primitives for the cgroup accounting files. All of them operate on
// file handles that were opened once at collector creation and are re-read at
// offset 0 every sample; a failed or missing read degrades to empty CSV
// fields so that row width is preserved.

// readScratch reads the whole file from offset 0 into the scratch buffer.
// Returns nil when the handle is missing or the read failed or was empty.
func readScratch(f *os.File, bufs *Buffers) []byte {
	if f == nil {
		return nil
	}
	n, err := f.ReadAt(bufs.scratch[:], 0)
	if n == 0 || (err != nil && err != io.EOF) {
		return nil
	}
	return bufs.scratch[:n]
}

// trimValue trims ASCII whitespace from both ends of a raw file value
func trimValue(b []byte) []byte {
	return bytes.TrimSpace(b)
}

// readEntry reads a single-value file (e.g. pids.current) and pushes its
// trimmed contents as one field; missing or empty files push an empty field
func readEntry(f *os.File, rec *Record, bufs *Buffers) {
	content := trimValue(readScratch(f, bufs))
	if len(content) == 0 {
		rec.PushEmpty()
		return
	}
	rec.Push(content)
}

// forEachLine calls fn for every (possibly unterminated) line in data
func forEachLine(data []byte, fn func(line []byte)) {
	for len(data) > 0 {
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			fn(data)
			return
		}
		fn(data[:nl])
		data = data[nl+1:]
	}
}

// splitField cuts line at the first space, returning (token, rest, ok)
func splitField(line []byte) ([]byte, []byte, bool) {
	sp := bytes.IndexByte(line, ' ')
	if sp < 0 {
		return nil, nil, false
	}
	return line[:sp], line[sp+1:], true
}

// readFlatKeyed reads a flat key/value file (e.g. memory.stat) and pushes one
// field per whitelisted key, in whitelist order. When the file is missing or
// unreadable every field is empty; when the file was read but a key is
// absent, the corresponding default is pushed instead.
func readFlatKeyed(f *os.File, rec *Record, bufs *Buffers, keys [][]byte, defaults []string) {
	data := readScratch(f, bufs)
	if data == nil {
		for range keys {
			rec.PushEmpty()
		}
		return
	}

	// Pointers into the scratch buffer, one per key; filled while scanning
	values := bufs.valueScratch(len(keys))
	forEachLine(data, func(line []byte) {
		key, value, ok := splitField(line)
		if !ok {
			return
		}
		for i, target := range keys {
			if bytes.Equal(key, target) {
				values[i] = trimValue(value)
				break
			}
		}
	})

	for i, value := range values {
		if value == nil {
			rec.PushString(defaults[i])
		} else {
			rec.Push(value)
		}
	}
}

// parseUint parses an unsigned decimal without allocating;
// returns false on empty or non-numeric input
func parseUint(b []byte) (uint64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	var v uint64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
	}
	return v, true
}

// quantity lazily aggregates per-device values for one statistic: a single
// textual value is pushed verbatim (no parse), and only when a second device
// row appears are the values parsed and summed.
type quantity struct {
	first []byte
	sum   uint64
	count int
}

func (q *quantity) add(value []byte) {
	switch q.count {
	case 0:
		q.first = value
		q.count = 1
	case 1:
		n, ok := parseUint(q.first)
		if !ok {
			// unparseable first value: fall back to the newest one
			q.first = value
			return
		}
		q.sum = n
		q.addParsed(value)
	default:
		q.addParsed(value)
	}
}

func (q *quantity) addParsed(value []byte) {
	if n, ok := parseUint(value); ok {
		q.sum += n
	}
	q.count++
}

func (q *quantity) push(rec *Record) {
	switch q.count {
	case 0:
		rec.PushString("0")
	case 1:
		rec.Push(q.first)
	default:
		rec.PushUint(q.sum)
	}
}

// v1 blkio per-op columns, in emission order
var v1IoOps = [][]byte{
	[]byte("Read"),
	[]byte("Write"),
	[]byte("Sync"),
	[]byte("Async"),
}

// readV1Io reads a v1 blkio recursive file with per-device rows of the form
//
//	8:0 Read 34787328
//
// summing values across devices per operation and emitting the four
// Read/Write/Sync/Async columns. Total rows (per-device and the trailing
// aggregate) are discarded. A missing or unreadable file emits four empty
// fields.
func readV1Io(f *os.File, rec *Record, bufs *Buffers) {
	data := readScratch(f, bufs)
	if data == nil {
		for range v1IoOps {
			rec.PushEmpty()
		}
		return
	}

	var sums [4]quantity
	forEachLine(data, func(line []byte) {
		device, rest, ok := splitField(line)
		if !ok || !bytes.ContainsRune(device, ':') {
			// the trailing "Total <n>" aggregate row
			return
		}
		op, value, ok := splitField(rest)
		if !ok {
			return
		}
		for i, target := range v1IoOps {
			if bytes.Equal(op, target) {
				sums[i].add(trimValue(value))
				break
			}
		}
	})

	for i := range sums {
		sums[i].push(rec)
	}
}

// readV1SimpleIo reads a v1 blkio file with one value per device row
// (blkio.time_recursive, blkio.sectors_recursive), emitting the sum across
// devices as a single scalar field
func readV1SimpleIo(f *os.File, rec *Record, bufs *Buffers) {
	data := readScratch(f, bufs)
	if data == nil {
		rec.PushEmpty()
		return
	}

	var sum quantity
	forEachLine(data, func(line []byte) {
		device, value, ok := splitField(line)
		if !ok || !bytes.ContainsRune(device, ':') {
			return
		}
		sum.add(trimValue(value))
	})
	sum.push(rec)
}

// readV2IoStat reads the v2 io.stat file with per-device rows of the form
//
//	8:0 rbytes=1459200 wbytes=314773504 rios=192 wios=353 dbytes=0 dios=0
//
// summing each whitelisted key across devices. A missing or unreadable file
// emits one empty field per key.
func readV2IoStat(f *os.File, rec *Record, bufs *Buffers, keys [][]byte) {
	data := readScratch(f, bufs)
	if data == nil {
		for range keys {
			rec.PushEmpty()
		}
		return
	}

	sums := bufs.quantityScratch(len(keys))
	forEachLine(data, func(line []byte) {
		_, rest, ok := splitField(line)
		if !ok {
			return
		}
		for len(rest) > 0 {
			pair := rest
			if sp := bytes.IndexByte(rest, ' '); sp >= 0 {
				pair, rest = rest[:sp], rest[sp+1:]
			} else {
				rest = nil
			}
			key, value, ok := bytes.Cut(pair, []byte("="))
			if !ok {
				continue
			}
			for i, target := range keys {
				if bytes.Equal(key, target) {
					sums[i].add(trimValue(value))
					break
				}
			}
		}
	})

	for i := range sums {
		sums[i].push(rec)
	}
}
