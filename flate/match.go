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

// compressionLevel holds the match finder tuning for one level.
type compressionLevel struct {
	good  int // quarter the chain once the previous match is this long
	lazy  int // slow: skip lazy search past this length; fast: max length whose positions get hashed
	nice  int // stop searching once a match is this long
	chain int // max chain steps
}

// The zlib tuning table. Levels 1-3 use the fast path, 4-9 the lazy one.
var levels = [10]compressionLevel{
	{0, 0, 0, 0}, // stored
	{4, 4, 8, 4},
	{4, 5, 16, 8},
	{4, 6, 32, 32},
	{4, 4, 16, 16},
	{8, 16, 32, 32},
	{8, 16, 128, 128},
	{8, 32, 128, 256},
	{32, 128, 258, 1024},
	{32, 258, 258, 4096},
}

// matchFinder indexes window positions by a hash of the three bytes found
// there. head holds the most recent position for each hash and prev links
// every position to the previous one with the same hash. Both store
// position+1 so that 0 means there is no previous occurrence.
type matchFinder struct {
	head      []uint32
	prev      []uint32
	hashShift uint
	wmask     int
	params    compressionLevel
}

func (m *matchFinder) init(windowBits, hashBits uint, params compressionLevel) {
	if len(m.head) != 1<<hashBits {
		m.head = make([]uint32, 1<<hashBits)
	}
	if len(m.prev) != 1<<windowBits {
		m.prev = make([]uint32, 1<<windowBits)
	}
	m.hashShift = 32 - hashBits
	m.wmask = 1<<windowBits - 1
	m.params = params
	m.reset()
}

// reset forgets every position.
func (m *matchFinder) reset() {
	for i := range m.head {
		m.head[i] = 0
	}
	for i := range m.prev {
		m.prev[i] = 0
	}
}

func (m *matchFinder) hash(b []byte) uint32 {
	return (uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])) * 0x9e3779b1 >> m.hashShift
}

// insert records that window position pos starts the three bytes
// win[pos:pos+3] and returns the previous position that hashed the same,
// or -1.
func (m *matchFinder) insert(win []byte, pos int) int {
	h := m.hash(win[pos:])
	last := m.head[h]
	m.prev[pos&m.wmask] = last
	m.head[h] = uint32(pos + 1)
	return int(last) - 1
}

// longest walks the hash chain starting at cand looking for the longest
// match for the data at cur that is longer than bestLen, at most lookahead
// bytes long and no more than maxDist back. It returns the match length and
// start, or a zero length when nothing beat bestLen.
func (m *matchFinder) longest(win []byte, cur, cand, lookahead, bestLen, maxDist int) (length, start int) {
	chain := m.params.chain
	nice := m.params.nice
	if bestLen >= m.params.good {
		chain >>= 2
	}
	if nice > lookahead {
		nice = lookahead
	}
	end := lookahead
	if end > maxMatchLength {
		end = maxMatchLength
	}
	limit := cur - maxDist - 1
	if limit < -1 {
		limit = -1
	}
	if bestLen >= end {
		return 0, 0
	}

	scan := win[cur : cur+end]
	for ; cand > limit && chain > 0; chain-- {
		match := win[cand : cand+end]
		if match[bestLen] == scan[bestLen] && match[0] == scan[0] && match[1] == scan[1] {
			n := 2
			for n < end && match[n] == scan[n] {
				n++
			}
			if n > bestLen {
				bestLen = n
				length, start = n, cand
				if n >= nice {
					break
				}
				if n == end {
					break
				}
			}
		}
		cand = int(m.prev[cand&m.wmask]) - 1
	}
	return length, start
}

// slide moves every recorded position wsize bytes down, dropping the ones
// that fall off the start of the window.
func (m *matchFinder) slide(wsize int) {
	for i, v := range m.head {
		if int(v) > wsize {
			m.head[i] = v - uint32(wsize)
		} else {
			m.head[i] = 0
		}
	}
	for i, v := range m.prev {
		if int(v) > wsize {
			m.prev[i] = v - uint32(wsize)
		} else {
			m.prev[i] = 0
		}
	}
}
