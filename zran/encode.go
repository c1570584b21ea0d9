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

package zran

import (
	"bytes"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/coreos/zflate/flate"
)

// Serialized layout: magic, version byte, format byte, then uvarints for
// span, size and the point count, then for each point the uvarints in, out,
// bits, value and window length followed by the window. An 8 byte
// little-endian xxhash64 of everything before it ends the encoding.
var indexMagic = []byte("ZRAN")

const indexVersion = 1

var errCorruptIndex = errors.New("zran: corrupt index")

// MarshalBinary implements encoding.BinaryMarshaler.
func (idx *Index) MarshalBinary() ([]byte, error) {
	b := append([]byte{}, indexMagic...)
	b = append(b, indexVersion, byte(idx.Format))
	b = binary.AppendUvarint(b, uint64(idx.Span))
	b = binary.AppendUvarint(b, uint64(idx.Size))
	b = binary.AppendUvarint(b, uint64(len(idx.Points)))
	for _, pt := range idx.Points {
		b = binary.AppendUvarint(b, uint64(pt.In))
		b = binary.AppendUvarint(b, uint64(pt.Out))
		b = binary.AppendUvarint(b, uint64(pt.Bits))
		b = binary.AppendUvarint(b, uint64(pt.Value))
		b = binary.AppendUvarint(b, uint64(len(pt.Window)))
		b = append(b, pt.Window...)
	}
	return binary.LittleEndian.AppendUint64(b, xxhash.Sum64(b)), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (idx *Index) UnmarshalBinary(data []byte) error {
	if len(data) < len(indexMagic)+2+8 || !bytes.HasPrefix(data, indexMagic) {
		return errCorruptIndex
	}
	body, sum := data[:len(data)-8], binary.LittleEndian.Uint64(data[len(data)-8:])
	if xxhash.Sum64(body) != sum {
		return errors.Wrap(errCorruptIndex, "checksum mismatch")
	}
	if body[len(indexMagic)] != indexVersion {
		return errors.Errorf("zran: unsupported index version %d", body[len(indexMagic)])
	}

	d := decoder{b: body[len(indexMagic)+2:]}
	out := Index{
		Format: flate.Format(body[len(indexMagic)+1]),
		Span:   int64(d.uvarint()),
		Size:   int64(d.uvarint()),
	}
	n := d.uvarint()
	if d.err == nil && n > uint64(len(d.b)) {
		d.err = errCorruptIndex
	}
	for i := uint64(0); i < n && d.err == nil; i++ {
		pt := Point{
			In:    int64(d.uvarint()),
			Out:   int64(d.uvarint()),
			Bits:  uint(d.uvarint()),
			Value: uint32(d.uvarint()),
		}
		pt.Window = d.bytes(d.uvarint())
		out.Points = append(out.Points, pt)
	}
	if d.err != nil {
		return d.err
	}
	if len(d.b) != 0 {
		return errors.Wrap(errCorruptIndex, "trailing bytes")
	}
	*idx = out
	return nil
}

type decoder struct {
	b   []byte
	err error
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.b)
	if n <= 0 {
		d.err = errCorruptIndex
		return 0
	}
	d.b = d.b[n:]
	return v
}

func (d *decoder) bytes(n uint64) []byte {
	if d.err != nil {
		return nil
	}
	if n > uint64(len(d.b)) {
		d.err = errCorruptIndex
		return nil
	}
	b := append([]byte{}, d.b[:n]...)
	d.b = d.b[n:]
	return b
}
