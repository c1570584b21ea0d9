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
	"encoding/binary"
	"time"

	"github.com/coreos/zflate/checksum"
)

const (
	gzipID1     = 0x1f
	gzipID2     = 0x8b
	gzipDeflate = 8
	flagText    = 1 << 0
	flagHdrCrc  = 1 << 1
	flagExtra   = 1 << 2
	flagName    = 1 << 3
	flagComment = 1 << 4

	zlibDeflate = 8
	zlibFDict   = 1 << 5

	// OSUnknown is the gzip OS byte written when no other is given.
	OSUnknown = 255

	maxHeaderString = 1 << 12
)

// The gzip file stores a header giving metadata about the compressed file.
// A Deflater writes the fields of the header it was given; an Inflater
// fills one in as it parses the stream.
type GzipHeader struct {
	Text       bool      // the data is probably ASCII text
	ModTime    time.Time // modification time, zero for none
	ExtraFlags byte      // XFL; written from the level when zero
	OS         byte      // operating system type
	Extra      []byte    // "extra data"
	Name       string    // file name, ISO 8859-1
	Comment    string    // comment, ISO 8859-1
	HeaderCRC  bool      // a CRC-16 of the header follows it
}

func zlibLevelFlags(level int, strategy Strategy) byte {
	switch {
	case strategy == HuffmanOnly || strategy == RLE || level < 2:
		return 0
	case level < 6:
		return 1
	case level == 6:
		return 2
	}
	return 3
}

// appendZlibHeader appends the two byte zlib header, plus the dictionary id
// when one was set.
func appendZlibHeader(b []byte, windowBits uint, level int, strategy Strategy, dictID uint32, haveDict bool) []byte {
	cmf := byte(zlibDeflate | (windowBits-8)<<4)
	flg := zlibLevelFlags(level, strategy) << 6
	if haveDict {
		flg |= zlibFDict
	}
	flg += byte(31 - (uint16(cmf)<<8|uint16(flg))%31)
	b = append(b, cmf, flg)
	if haveDict {
		b = binary.BigEndian.AppendUint32(b, dictID)
	}
	return b
}

// latin1 converts s to ISO 8859-1, reporting whether that was possible.
func latin1(s string) ([]byte, bool) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r == 0 || r > 0xff {
			return nil, false
		}
		out = append(out, byte(r))
	}
	return out, true
}

// appendGzipHeader appends the gzip header described by h.
func appendGzipHeader(b []byte, h *GzipHeader, level int, strategy Strategy) ([]byte, error) {
	if h == nil {
		h = &GzipHeader{OS: OSUnknown}
	}
	start := len(b)
	var flg byte
	if h.Text {
		flg |= flagText
	}
	if h.HeaderCRC {
		flg |= flagHdrCrc
	}
	if h.Extra != nil {
		if len(h.Extra) > 0xffff {
			return b, errorf(BadArgument, 0, "gzip extra field too long")
		}
		flg |= flagExtra
	}
	name, ok := latin1(h.Name)
	if !ok {
		return b, errorf(BadArgument, 0, "gzip name is not Latin-1")
	}
	if len(name) > 0 {
		flg |= flagName
	}
	comment, ok := latin1(h.Comment)
	if !ok {
		return b, errorf(BadArgument, 0, "gzip comment is not Latin-1")
	}
	if len(comment) > 0 {
		flg |= flagComment
	}

	var mtime uint32
	if !h.ModTime.IsZero() && h.ModTime.Unix() > 0 {
		mtime = uint32(h.ModTime.Unix())
	}
	xfl := h.ExtraFlags
	if xfl == 0 {
		switch {
		case level == BestCompression:
			xfl = 2
		case level == BestSpeed || strategy == HuffmanOnly || strategy == RLE:
			xfl = 4
		}
	}

	b = append(b, gzipID1, gzipID2, gzipDeflate, flg)
	b = binary.LittleEndian.AppendUint32(b, mtime)
	b = append(b, xfl, h.OS)
	if h.Extra != nil {
		b = binary.LittleEndian.AppendUint16(b, uint16(len(h.Extra)))
		b = append(b, h.Extra...)
	}
	if len(name) > 0 {
		b = append(append(b, name...), 0)
	}
	if len(comment) > 0 {
		b = append(append(b, comment...), 0)
	}
	if h.HeaderCRC {
		crc := checksum.CRC32(0, b[start:])
		b = binary.LittleEndian.AppendUint16(b, uint16(crc))
	}
	return b, nil
}
