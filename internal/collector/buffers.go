// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package collector

// scratchSize is an upper bound on the size of the cgroup accounting files
// that get read each sample; larger files are truncated to this size
const scratchSize = 8 * 1024

// Buffers are the working buffers shared by every collector on the sampling
// goroutine, allocated once and reused for each sample to keep the hot path
// allocation-free.
type Buffers struct {
	// Record is the in-progress CSV row
	Record *Record
	// scratch receives raw file contents
	scratch [scratchSize]byte
	// values and quantities are reusable scratch slices for the key/value
	// file parsers
	values     [][]byte
	quantities []quantity
}

const maxWhitelistedKeys = 32

func NewBuffers() *Buffers {
	return &Buffers{
		Record:     NewRecord(),
		values:     make([][]byte, 0, maxWhitelistedKeys),
		quantities: make([]quantity, 0, maxWhitelistedKeys),
	}
}

// valueScratch returns a zeroed values slice of length n backed by the
// reusable buffer
func (b *Buffers) valueScratch(n int) [][]byte {
	values := b.values[:0]
	for i := 0; i < n; i++ {
		values = append(values, nil)
	}
	return values
}

// quantityScratch returns a zeroed quantity slice of length n backed by the
// reusable buffer
func (b *Buffers) quantityScratch(n int) []quantity {
	quantities := b.quantities[:0]
	for i := 0; i < n; i++ {
		quantities = append(quantities, quantity{})
	}
	return quantities
}
