// Copyright 2016 CoreOS, Inc
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package flate

import (
	"container/heap"
	"sort"
)

// hcode is one entry of an encoding table. code is stored bit-reversed so
// it can be handed straight to bitWriter.writeBits.
type hcode struct {
	code uint16
	len  uint8
}

type hnode struct {
	freq   uint32
	parent int32
}

// nodeHeap orders tree nodes by frequency, then by node index. Leaves are
// numbered in symbol order and internal nodes after them, so on a tie the
// lower symbol wins and leaves win over internal nodes.
type nodeHeap struct {
	idx   []int32
	nodes []hnode
}

func (h *nodeHeap) Len() int { return len(h.idx) }
func (h *nodeHeap) Less(i, j int) bool {
	a, b := h.nodes[h.idx[i]].freq, h.nodes[h.idx[j]].freq
	if a != b {
		return a < b
	}
	return h.idx[i] < h.idx[j]
}
func (h *nodeHeap) Swap(i, j int)      { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }
func (h *nodeHeap) Push(x interface{}) { h.idx = append(h.idx, x.(int32)) }
func (h *nodeHeap) Pop() interface{} {
	n := len(h.idx) - 1
	x := h.idx[n]
	h.idx = h.idx[:n]
	return x
}

// huffmanEncoder builds and holds a length-limited canonical Huffman code.
type huffmanEncoder struct {
	codes []hcode

	// scratch space reused between blocks
	heap   nodeHeap
	syms   []int32 // symbol of each leaf node
	depth  []uint16
	leaves []int32
}

func newHuffmanEncoder(size int) *huffmanEncoder {
	return &huffmanEncoder{codes: make([]hcode, size)}
}

// generate builds a code for freq in which no code is longer than maxBits.
// Symbols with zero frequency get no code. When fewer than two symbols are
// used a second one-bit code is added, so the lengths always describe a
// complete prefix code.
func (h *huffmanEncoder) generate(freq []uint32, maxBits int) {
	for i := range h.codes {
		h.codes[i] = hcode{}
	}

	nodes := h.heap.nodes[:0]
	syms := h.syms[:0]
	for sym, f := range freq {
		if f != 0 {
			nodes = append(nodes, hnode{freq: f, parent: -1})
			syms = append(syms, int32(sym))
		}
	}
	h.syms = syms

	switch len(syms) {
	case 0:
		h.codes[0].len = 1
		h.codes[1].len = 1
		h.heap.nodes = nodes
		h.assignCodes(maxBits)
		return
	case 1:
		other := 0
		if syms[0] == 0 {
			other = 1
		}
		h.codes[syms[0]].len = 1
		h.codes[other].len = 1
		h.heap.nodes = nodes
		h.assignCodes(maxBits)
		return
	}

	nleaves := int32(len(syms))
	h.heap.nodes = nodes
	h.heap.idx = h.heap.idx[:0]
	for i := int32(0); i < nleaves; i++ {
		h.heap.idx = append(h.heap.idx, i)
	}
	heap.Init(&h.heap)
	for h.heap.Len() > 1 {
		a := heap.Pop(&h.heap).(int32)
		b := heap.Pop(&h.heap).(int32)
		id := int32(len(h.heap.nodes))
		h.heap.nodes = append(h.heap.nodes, hnode{
			freq:   h.heap.nodes[a].freq + h.heap.nodes[b].freq,
			parent: -1,
		})
		h.heap.nodes[a].parent = id
		h.heap.nodes[b].parent = id
		heap.Push(&h.heap, id)
	}
	nodes = h.heap.nodes

	// Parents always have a larger index than their children, so one
	// pass from the root down assigns every depth.
	root := len(nodes) - 1
	if cap(h.depth) < len(nodes) {
		h.depth = make([]uint16, len(nodes))
	}
	depth := h.depth[:len(nodes)]
	depth[root] = 0
	for i := root - 1; i >= 0; i-- {
		depth[i] = depth[nodes[i].parent] + 1
	}

	var blCount [maxCodeLen + 1]int
	overflow := false
	for i := int32(0); i < nleaves; i++ {
		d := int(depth[i])
		if d > maxBits {
			d = maxBits
			overflow = true
		}
		blCount[d]++
	}

	if overflow {
		// Clamping made the code over-subscribed. Each round takes one
		// leaf off the deepest level and splits a shallower leaf into two,
		// lowering the Kraft sum by one unit of 2^-maxBits until it is
		// exactly one again.
		total := 0
		for l := 1; l <= maxBits; l++ {
			total += blCount[l] << uint(maxBits-l)
		}
		for total > 1<<uint(maxBits) {
			blCount[maxBits]--
			for l := maxBits - 1; l > 0; l-- {
				if blCount[l] != 0 {
					blCount[l]--
					blCount[l+1] += 2
					break
				}
			}
			total--
		}
	}

	// Hand out the lengths, shortest first, to leaves in order of
	// decreasing frequency.
	leaves := h.leaves[:0]
	for i := int32(0); i < nleaves; i++ {
		leaves = append(leaves, i)
	}
	h.leaves = leaves
	sort.Slice(leaves, func(i, j int) bool {
		a, b := nodes[leaves[i]].freq, nodes[leaves[j]].freq
		if a != b {
			return a > b
		}
		return leaves[i] < leaves[j]
	})
	l := 1
	for _, leaf := range leaves {
		for blCount[l] == 0 {
			l++
		}
		blCount[l]--
		h.codes[syms[leaf]].len = uint8(l)
	}

	h.assignCodes(maxBits)
}

// assignCodes gives every symbol with a nonzero length its canonical code:
// shorter codes first, and within one length in increasing symbol order.
func (h *huffmanEncoder) assignCodes(maxBits int) {
	var blCount [maxCodeLen + 2]uint16
	for _, c := range h.codes {
		blCount[c.len]++
	}
	blCount[0] = 0
	var nextCode [maxCodeLen + 2]uint16
	code := uint16(0)
	for bits := 1; bits <= maxBits; bits++ {
		code = (code + blCount[bits-1]) << 1
		nextCode[bits] = code
	}
	for i, c := range h.codes {
		if c.len == 0 {
			continue
		}
		h.codes[i].code = reverseBits(nextCode[c.len], uint(c.len))
		nextCode[c.len]++
	}
}

// bitLength returns the number of bits needed to code freq with h,
// excluding any extra bits.
func (h *huffmanEncoder) bitLength(freq []uint32) int {
	total := 0
	for i, f := range freq {
		if f != 0 {
			total += int(f) * int(h.codes[i].len)
		}
	}
	return total
}

// The fixed codes of RFC 1951 section 3.2.6.
var fixedLiteralEncoding = generateFixedLiteralEncoding()
var fixedOffsetEncoding = generateFixedOffsetEncoding()

func generateFixedLiteralEncoding() *huffmanEncoder {
	h := newHuffmanEncoder(numLitCodes)
	for ch := range h.codes {
		switch {
		case ch < 144:
			h.codes[ch].len = 8
		case ch < 256:
			h.codes[ch].len = 9
		case ch < 280:
			h.codes[ch].len = 7
		default:
			h.codes[ch].len = 8
		}
	}
	h.assignCodes(maxCodeLen)
	return h
}

func generateFixedOffsetEncoding() *huffmanEncoder {
	h := newHuffmanEncoder(numDistCodes)
	for i := range h.codes {
		h.codes[i].len = 5
	}
	h.assignCodes(maxCodeLen)
	return h
}
