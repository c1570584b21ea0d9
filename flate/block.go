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

// A token is either a literal byte or a length/distance pair.
//
//	bit 30:     set for a match
//	bits 16-23: match length - 3
//	bits 0-15:  match distance - 1, or the literal byte
type token uint32

const matchType token = 1 << 30

func literalToken(c byte) token { return token(c) }

func matchToken(length, dist int) token {
	return matchType | token(length-minMatchLength)<<16 | token(dist-1)
}

func (t token) length() int { return int(t>>16&0xff) + minMatchLength }
func (t token) dist() int   { return int(t&0xffff) + 1 }

// tallyLit records a literal and reports whether the token buffer is full.
func (d *Deflater) tallyLit(c byte) bool {
	d.tokens = append(d.tokens, literalToken(c))
	d.litFreq[c]++
	return len(d.tokens) >= d.maxTokens
}

// tallyMatch records a match and reports whether the token buffer is full.
func (d *Deflater) tallyMatch(dist, length int) bool {
	d.tokens = append(d.tokens, matchToken(length, dist))
	d.litFreq[endBlockMarker+1+int(lengthCodes[length-minMatchLength])]++
	d.distFreq[distCode(dist)]++
	return len(d.tokens) >= d.maxTokens
}

// flushBlock ends the current block and queues it in the bit writer. The
// block covers window[blockStart:strstart], less the literal the lazy
// matcher is still holding back.
func (d *Deflater) flushBlock(last bool) {
	end := d.strstart
	if d.matchAvailable {
		end--
	}
	var data []byte
	if d.blockStart >= 0 {
		data = d.window[d.blockStart:end]
	}
	d.writeBlock(data, last)
	d.blockStart = end
	d.resetTokens()
}

func (d *Deflater) resetTokens() {
	d.tokens = d.tokens[:0]
	for i := range d.litFreq {
		d.litFreq[i] = 0
	}
	for i := range d.distFreq {
		d.distFreq[i] = 0
	}
}

// storedCost is the size in bits of data written as stored blocks, taking
// the header of the first block to start on the current partial byte.
func (d *Deflater) storedCost(n int) int {
	blocks := (n + maxStoredBlock - 1) / maxStoredBlock
	if blocks == 0 {
		blocks = 1
	}
	return n*8 + blocks*(3+7+32)
}

// extraBits counts the length and distance extra bits of the tallied
// tokens, which are the same whichever code is used.
func (d *Deflater) extraBits() int {
	n := 0
	for i, e := range lengthExtra {
		n += int(d.litFreq[endBlockMarker+1+i]) * int(e)
	}
	for i, e := range distExtra {
		n += int(d.distFreq[i]) * int(e)
	}
	return n
}

// writeBlock picks the cheapest of a stored, a fixed and a dynamic block
// for the tallied tokens and writes it. data is the uncompressed input
// behind the tokens, or nil when it has already left the window, in which
// case a stored block is not an option.
func (d *Deflater) writeBlock(data []byte, last bool) {
	d.litFreq[endBlockMarker] = 1
	extra := d.extraBits()
	fixedBits := 3 + fixedLiteralEncoding.bitLength(d.litFreq[:]) +
		fixedOffsetEncoding.bitLength(d.distFreq[:]) + extra

	dynamicBits := -1
	var numLit, numDist, numCodegens int
	if d.opts.Strategy != Fixed {
		d.litEnc.generate(d.litFreq[:maxNumLit], maxCodeLen)
		d.distEnc.generate(d.distFreq[:maxNumDist], maxCodeLen)
		numLit, numDist = d.codeCounts()
		numCodegens = d.buildCodegen(numLit, numDist)
		dynamicBits = 3 + 5 + 5 + 4 + 3*numCodegens +
			d.codegenEnc.bitLength(d.codegenFreq[:]) +
			int(d.codegenFreq[16])*2 + int(d.codegenFreq[17])*3 + int(d.codegenFreq[18])*7 +
			d.litEnc.bitLength(d.litFreq[:maxNumLit]) + d.distEnc.bitLength(d.distFreq[:maxNumDist]) + extra
	}

	storedBits := -1
	if data != nil {
		storedBits = d.storedCost(len(data))
	}
	plog.Tracef("block: %d tokens, %d bytes, stored=%d fixed=%d dynamic=%d bits",
		len(d.tokens), len(data), storedBits, fixedBits, dynamicBits)

	switch {
	case storedBits >= 0 && storedBits <= fixedBits && (dynamicBits < 0 || storedBits <= dynamicBits):
		d.writeStored(data, last)
	case dynamicBits >= 0 && dynamicBits < fixedBits:
		d.writeDynamic(last, numLit, numDist, numCodegens)
	default:
		d.writeFixed(last)
	}
}

func lastBit(last bool) uint32 {
	if last {
		return 1
	}
	return 0
}

// writeStored writes data as a run of stored blocks of at most 65535 bytes.
// Only the final block of the run carries the last-block bit.
func (d *Deflater) writeStored(data []byte, last bool) {
	for {
		n := len(data)
		if n > maxStoredBlock {
			n = maxStoredBlock
		}
		final := last && n == len(data)
		d.w.writeBits(lastBit(final), 3)
		d.w.alignToByte()
		d.w.writeBits(uint32(n), 16)
		d.w.writeBits(uint32(^uint16(n)), 16)
		d.w.flushBytes()
		d.w.writeBytes(data[:n])
		data = data[n:]
		if len(data) == 0 {
			return
		}
	}
}

// writeEmptyStored writes the empty stored block that ends a sync flush.
func (d *Deflater) writeEmptyStored() {
	d.writeStored(nil, false)
}

func (d *Deflater) writeFixed(last bool) {
	d.w.writeBits(lastBit(last)|1<<1, 3)
	d.writeTokens(fixedLiteralEncoding, fixedOffsetEncoding)
}

func (d *Deflater) writeDynamic(last bool, numLit, numDist, numCodegens int) {
	d.w.writeBits(lastBit(last)|2<<1, 3)
	d.w.writeBits(uint32(numLit-257), 5)
	d.w.writeBits(uint32(numDist-1), 5)
	d.w.writeBits(uint32(numCodegens-4), 4)
	for i := 0; i < numCodegens; i++ {
		d.w.writeBits(uint32(d.codegenEnc.codes[codeOrder[i]].len), 3)
	}
	for i := 0; i+1 < len(d.codegen); i += 2 {
		sym := d.codegen[i]
		c := d.codegenEnc.codes[sym]
		d.w.writeBits(uint32(c.code), uint(c.len))
		switch sym {
		case 16:
			d.w.writeBits(uint32(d.codegen[i+1]), 2)
		case 17:
			d.w.writeBits(uint32(d.codegen[i+1]), 3)
		case 18:
			d.w.writeBits(uint32(d.codegen[i+1]), 7)
		}
	}
	d.writeTokens(d.litEnc, d.distEnc)
}

func (d *Deflater) writeTokens(lit, dist *huffmanEncoder) {
	for _, t := range d.tokens {
		if t < matchType {
			c := lit.codes[t]
			d.w.writeBits(uint32(c.code), uint(c.len))
			continue
		}
		length := t.length()
		lc := int(lengthCodes[length-minMatchLength])
		c := lit.codes[endBlockMarker+1+lc]
		d.w.writeBits(uint32(c.code), uint(c.len))
		if e := lengthExtra[lc]; e > 0 {
			d.w.writeBits(uint32(length-int(lengthBase[lc])), uint(e))
		}
		distance := t.dist()
		dc := distCode(distance)
		c = dist.codes[dc]
		d.w.writeBits(uint32(c.code), uint(c.len))
		if e := distExtra[dc]; e > 0 {
			d.w.writeBits(uint32(distance-int(distBase[dc])), uint(e))
		}
	}
	c := lit.codes[endBlockMarker]
	d.w.writeBits(uint32(c.code), uint(c.len))
}

// codeCounts returns HLIT+257 and HDIST+1: the number of literal/length
// and distance code lengths worth sending.
func (d *Deflater) codeCounts() (numLit, numDist int) {
	numLit = maxNumLit
	for numLit > 257 && d.litEnc.codes[numLit-1].len == 0 {
		numLit--
	}
	numDist = maxNumDist
	for numDist > 1 && d.distEnc.codes[numDist-1].len == 0 {
		numDist--
	}
	return numLit, numDist
}

// buildCodegen run-length codes the literal and distance code lengths with
// the code length alphabet, builds the code length code and returns HCLEN+4.
// Runs may cross from the literal lengths into the distance lengths.
func (d *Deflater) buildCodegen(numLit, numDist int) int {
	lens := d.codeLens[:0]
	for i := 0; i < numLit; i++ {
		lens = append(lens, d.litEnc.codes[i].len)
	}
	for i := 0; i < numDist; i++ {
		lens = append(lens, d.distEnc.codes[i].len)
	}
	d.codeLens = lens

	for i := range d.codegenFreq {
		d.codegenFreq[i] = 0
	}
	d.codegen = d.codegen[:0]
	emit := func(sym, extra uint8) {
		d.codegen = append(d.codegen, sym, extra)
		d.codegenFreq[sym]++
	}

	for i := 0; i < len(lens); {
		cur := lens[i]
		run := 1
		for i+run < len(lens) && lens[i+run] == cur {
			run++
		}
		i += run
		if cur == 0 {
			for run >= 11 {
				r := run
				if r > 138 {
					r = 138
				}
				emit(18, uint8(r-11))
				run -= r
			}
			if run >= 3 {
				emit(17, uint8(run-3))
				run = 0
			}
		} else {
			emit(cur, 0)
			run--
			for run >= 3 {
				r := run
				if r > 6 {
					r = 6
				}
				emit(16, uint8(r-3))
				run -= r
			}
		}
		for ; run > 0; run-- {
			emit(cur, 0)
		}
	}

	d.codegenEnc.generate(d.codegenFreq[:], maxCodeLenCode)
	n := numCodes
	for n > 4 && d.codegenEnc.codes[codeOrder[n-1]].len == 0 {
		n--
	}
	return n
}
