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

// bitWriter packs codes LSB-first into whole bytes appended to out.
type bitWriter struct {
	out   []byte
	off   int // out[:off] has already been handed to the caller
	bits  uint64
	nbits uint
}

// writeBits appends the low n bits of v, n <= 16.
func (w *bitWriter) writeBits(v uint32, n uint) {
	w.bits |= uint64(v) << w.nbits
	w.nbits += n
	if w.nbits >= 32 {
		b := w.bits
		w.out = append(w.out, byte(b), byte(b>>8), byte(b>>16), byte(b>>24))
		w.bits >>= 32
		w.nbits -= 32
	}
}

// flushBytes moves every complete byte of the accumulator to out.
func (w *bitWriter) flushBytes() {
	for w.nbits >= 8 {
		w.out = append(w.out, byte(w.bits))
		w.bits >>= 8
		w.nbits -= 8
	}
}

// alignToByte pads with zero bits up to the next byte boundary and
// flushes the accumulator.
func (w *bitWriter) alignToByte() {
	w.nbits = (w.nbits + 7) &^ 7
	w.flushBytes()
}

// writeBytes appends raw bytes; the writer must be byte aligned.
func (w *bitWriter) writeBytes(p []byte) {
	if w.nbits != 0 {
		panic("flate: writeBytes on unaligned bit writer")
	}
	w.out = append(w.out, p...)
}

// pending reports the bytes ready for the caller.
func (w *bitWriter) pending() int { return len(w.out) - w.off }

// drain copies ready bytes into p and returns how many were copied.
func (w *bitWriter) drain(p []byte) int {
	n := copy(p, w.out[w.off:])
	w.off += n
	if w.off == len(w.out) {
		w.out = w.out[:0]
		w.off = 0
	}
	return n
}

func (w *bitWriter) reset() {
	w.out = w.out[:0]
	w.off = 0
	w.bits = 0
	w.nbits = 0
}

// reverseBits returns the low n bits of code in reverse order, turning a
// canonical Huffman code into the LSB-first form written to the stream.
func reverseBits(code uint16, n uint) uint16 {
	var r uint16
	for i := uint(0); i < n; i++ {
		r = r<<1 | code&1
		code >>= 1
	}
	return r
}
