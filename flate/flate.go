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

// Package flate implements the DEFLATE compressed data format, described in
// RFC 1951, together with the zlib (RFC 1950) and gzip (RFC 1952) framings
// that wrap it.
//
// Both engines are resumable state machines driven by the caller: every
// call to Deflater.Deflate or Inflater.Inflate consumes as much of the
// supplied input and fills as much of the supplied output as it can, then
// returns a Status saying why it stopped. No call blocks and no engine keeps
// a reference to a caller's buffer once it has returned.
package flate

import (
	"strconv"

	"github.com/coreos/pkg/capnslog"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/zflate", "flate")

const (
	NoCompression      = 0
	BestSpeed          = 1
	BestCompression    = 9
	DefaultCompression = -1

	MinWindowBits     = 9
	MaxWindowBits     = 15
	DefaultWindowBits = MaxWindowBits
	MinMemLevel       = 1
	MaxMemLevel       = 9
	DefaultMemLevel   = 8

	maxCodeLen     = 15  // max length of a literal/length or distance code
	maxCodeLenCode = 7   // max length of a code length code
	maxNumLit      = 286 // literal/length codes actually usable in a block
	numLitCodes    = 288 // including the two reserved ones in the fixed code
	maxNumDist     = 30
	numDistCodes   = 32
	numCodes       = 19 // number of codes in Huffman meta-code
	endBlockMarker = 256

	minMatchLength = 3
	maxMatchLength = 258
	maxHist        = 1 << 15 // largest match distance, and inflate history size
	maxStoredBlock = 65535
)

// Format selects the framing around the DEFLATE data.
type Format int

const (
	// Raw is bare DEFLATE data with no header or trailer.
	Raw Format = iota
	// Zlib is RFC 1950: 2 byte header, Adler-32 trailer.
	Zlib
	// Gzip is RFC 1952: 10+ byte header, CRC-32 and length trailer.
	Gzip
	// Auto detects zlib or gzip from the first two bytes. Decoding only.
	Auto
)

func (f Format) String() string {
	switch f {
	case Raw:
		return "raw"
	case Zlib:
		return "zlib"
	case Gzip:
		return "gzip"
	case Auto:
		return "auto"
	}
	return "Format(" + strconv.Itoa(int(f)) + ")"
}

// Strategy tunes the match finder for particular kinds of data.
type Strategy int

const (
	DefaultStrategy Strategy = iota
	// Filtered ignores short matches, for data produced by a filter or
	// predictor whose values are mostly small and randomly distributed.
	Filtered
	// HuffmanOnly never searches for matches.
	HuffmanOnly
	// RLE only looks for matches at distance one.
	RLE
	// Fixed never emits dynamic Huffman blocks.
	Fixed
)

func (s Strategy) String() string {
	switch s {
	case DefaultStrategy:
		return "default"
	case Filtered:
		return "filtered"
	case HuffmanOnly:
		return "huffman-only"
	case RLE:
		return "rle"
	case Fixed:
		return "fixed"
	}
	return "Strategy(" + strconv.Itoa(int(s)) + ")"
}

// Flush controls how much buffered state a call must push out.
type Flush int

const (
	// NoFlush lets the engine decide how much to buffer.
	NoFlush Flush = iota
	// SyncFlush ends the current block and emits an empty stored block so
	// everything written so far can be decoded.
	SyncFlush
	// FullFlush is SyncFlush plus forgetting the match history, so
	// decoding can restart at this point.
	FullFlush
	// Finish ends the stream.
	Finish
	// BlockFlush makes Inflate return BlockEnd at each block boundary.
	BlockFlush
)

// Status reports why a call to Deflate or Inflate returned.
type Status int

const (
	// StatusOK means the requested flush completed and the engine wants
	// more input before it can do anything else.
	StatusOK Status = iota
	// NeedMoreInput means all input was consumed and the stream is not
	// finished.
	NeedMoreInput
	// NeedMoreOutput means the output buffer filled up.
	NeedMoreOutput
	// NeedDictionary means a zlib stream asked for a preset dictionary,
	// see Inflater.SetDictionary and Inflater.DictionaryID.
	NeedDictionary
	// BlockEnd means Inflate stopped at a block boundary, see BlockFlush.
	BlockEnd
	// StreamEnd means the stream is complete, trailer included.
	StreamEnd
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case NeedMoreInput:
		return "need more input"
	case NeedMoreOutput:
		return "need more output"
	case NeedDictionary:
		return "need dictionary"
	case BlockEnd:
		return "block end"
	case StreamEnd:
		return "stream end"
	}
	return "Status(" + strconv.Itoa(int(s)) + ")"
}

// RFC 1951 section 3.2.5.
var lengthBase = [29]uint16{
	3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
	35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258,
}

var lengthExtra = [29]uint8{
	0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
	3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0,
}

var distBase = [maxNumDist]uint16{
	1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193,
	257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145,
	8193, 12289, 16385, 24577,
}

var distExtra = [maxNumDist]uint8{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
	7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
}

// The order in which code length code lengths are transmitted.
var codeOrder = [numCodes]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

// lengthCodes maps match length-3 to its index in lengthBase.
var lengthCodes [maxMatchLength - minMatchLength + 1]uint8

func init() {
	for code := 0; code < len(lengthBase)-1; code++ {
		for j := 0; j < 1<<lengthExtra[code]; j++ {
			lengthCodes[int(lengthBase[code])-minMatchLength+j] = uint8(code)
		}
	}
	// 258 has its own code even though code 27 could also express it.
	lengthCodes[maxMatchLength-minMatchLength] = uint8(len(lengthBase) - 1)
}

// distCode returns the distance code for a match distance in [1, 32768].
func distCode(dist int) int {
	d := dist - 1
	if d < 4 {
		return d
	}
	nb := 0
	for x := d; x > 1; x >>= 1 {
		nb++
	}
	return 2*nb + (d>>(nb-1))&1
}
