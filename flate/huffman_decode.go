// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flate

import "sync"

// The decoding table follows zlib. There is a lookup table of a fixed bit
// width (huffmanChunkBits). Codes shorter than the table width fill several
// entries, one per combination of trailing bits. Codes longer than the
// table width go through a link to an overflow table whose width is the
// maximum code length minus the chunk width.
//
// A lookup works even when fewer bits than the code length are buffered:
// the missing bits read as zero, and because shorter DEFLATE codes sort
// before longer ones the length found is a lower bound on the real one.
//
// chunk & 15 is the number of bits, chunk >> 4 the symbol or link index.
const (
	huffmanChunkBits  = 9
	huffmanNumChunks  = 1 << huffmanChunkBits
	huffmanCountMask  = 15
	huffmanValueShift = 4
)

type huffmanDecoder struct {
	min      int // the minimum code length, 0 for an empty code
	chunks   [huffmanNumChunks]uint32
	links    [][]uint32
	linkMask uint32
}

// init builds the table from a list of code lengths. Over-subscribed codes
// are always rejected. An incomplete code is only accepted when
// incompleteOK is set and it is a single one-bit code or no code at all,
// the two shapes RFC 1951 permits for the distance alphabet.
func (h *huffmanDecoder) init(lengths []uint8, incompleteOK bool) bool {
	links := h.links[:0]
	*h = huffmanDecoder{}

	var count [maxCodeLen + 1]int
	var min, max int
	for _, n := range lengths {
		if n == 0 {
			continue
		}
		if min == 0 || int(n) < min {
			min = int(n)
		}
		if int(n) > max {
			max = int(n)
		}
		count[n]++
	}
	if max == 0 {
		return incompleteOK
	}

	left := 1
	for l := 1; l <= maxCodeLen; l++ {
		left <<= 1
		left -= count[l]
		if left < 0 {
			return false
		}
	}
	if left > 0 && (!incompleteOK || max != 1) {
		return false
	}

	h.min = min
	var linkBits uint
	var numLinks int
	if max > huffmanChunkBits {
		linkBits = uint(max) - huffmanChunkBits
		numLinks = 1 << linkBits
		h.linkMask = uint32(numLinks - 1)
	}
	code := 0
	var nextcode [maxCodeLen + 1]int
	for i := min; i <= max; i++ {
		if i == huffmanChunkBits+1 {
			// create link tables
			link := code >> 1
			if huffmanNumChunks < link {
				return false
			}
			if cap(links) >= huffmanNumChunks-link {
				links = links[:huffmanNumChunks-link]
			} else {
				links = make([][]uint32, huffmanNumChunks-link)
			}
			for j := uint(link); j < huffmanNumChunks; j++ {
				reverse := int(reverseBits(uint16(j), huffmanChunkBits))
				off := j - uint(link)
				h.chunks[reverse] = uint32(off<<huffmanValueShift | uint(i))
				if cap(links[off]) >= numLinks {
					links[off] = links[off][:numLinks]
					for k := range links[off] {
						links[off][k] = 0
					}
				} else {
					links[off] = make([]uint32, numLinks)
				}
			}
			h.links = links
		}
		n := count[i]
		nextcode[i] = code
		code += n
		code <<= 1
	}

	for i, n := range lengths {
		if n == 0 {
			continue
		}
		code := nextcode[n]
		nextcode[n]++
		chunk := uint32(i<<huffmanValueShift | int(n))
		reverse := int(reverseBits(uint16(code), uint(n)))
		if int(n) <= huffmanChunkBits {
			for off := reverse; off < huffmanNumChunks; off += 1 << n {
				h.chunks[off] = chunk
			}
		} else {
			value := h.chunks[reverse&(huffmanNumChunks-1)] >> huffmanValueShift
			if value >= uint32(len(h.links)) {
				return false
			}
			linktab := h.links[value]
			reverse >>= huffmanChunkBits
			for off := reverse; off < numLinks; off += 1 << (n - huffmanChunkBits) {
				linktab[off] = chunk
			}
		}
	}
	return true
}

// lookup returns the entry for the code at the bottom of bits: its length
// and symbol. A length of 0 means no code starts with these bits.
func (h *huffmanDecoder) lookup(bits uint64) (n uint, sym int) {
	chunk := h.chunks[bits&(huffmanNumChunks-1)]
	n = uint(chunk & huffmanCountMask)
	if n > huffmanChunkBits {
		chunk = h.links[chunk>>huffmanValueShift][uint32(bits>>huffmanChunkBits)&h.linkMask]
		n = uint(chunk & huffmanCountMask)
	}
	return n, int(chunk >> huffmanValueShift)
}

var (
	fixedOnce           sync.Once
	fixedHuffmanDecoder huffmanDecoder
	fixedDistDecoder    huffmanDecoder
)

// fixedDecoders returns the tables of RFC 1951 section 3.2.6, building
// them on first use.
func fixedDecoders() (*huffmanDecoder, *huffmanDecoder) {
	fixedOnce.Do(func() {
		var lens [numLitCodes]uint8
		for i := range lens {
			switch {
			case i < 144:
				lens[i] = 8
			case i < 256:
				lens[i] = 9
			case i < 280:
				lens[i] = 7
			default:
				lens[i] = 8
			}
		}
		fixedHuffmanDecoder.init(lens[:], false)

		var dists [numDistCodes]uint8
		for i := range dists {
			dists[i] = 5
		}
		fixedDistDecoder.init(dists[:], false)
	})
	return &fixedHuffmanDecoder, &fixedDistDecoder
}
