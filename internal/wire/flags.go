/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package wire

import "github.com/bits-and-blooms/bitset"

// Bit positions within ExecBody.startup_flags, per spec.
const (
	StartupProcessGroup uint = iota
	StartupSession
	StartupDetachTerminal
	StartupNohup
	StartupControllingTerminal
)

// Bit positions within ExecBody.io_flags, per spec.
const (
	IOIn uint = iota
	IOOut
	IOErr
)

// NewStartupFlags returns an empty startup_flags bitset.
func NewStartupFlags() *bitset.BitSet {
	return bitset.New(32)
}

// NewIOFlags returns an empty io_flags bitset.
func NewIOFlags() *bitset.BitSet {
	return bitset.New(32)
}

func bitsetToUint32(b *bitset.BitSet) uint32 {
	if b == nil {
		return 0
	}

	var v uint32
	for i := uint(0); i < 32; i++ {
		if b.Test(i) {
			v |= 1 << i
		}
	}

	return v
}

func uint32ToBitset(v uint32) *bitset.BitSet {
	b := bitset.New(32)
	for i := uint(0); i < 32; i++ {
		if v&(1<<i) != 0 {
			b.Set(i)
		}
	}

	return b
}

// IOFlagCount returns the number of stdio descriptors io_flags requires,
// i.e. its popcount restricted to the IN/OUT/ERR bits.
func IOFlagCount(io *bitset.BitSet) int {
	if io == nil {
		return 0
	}

	n := 0
	for _, b := range []uint{IOIn, IOOut, IOErr} {
		if io.Test(b) {
			n++
		}
	}

	return n
}
