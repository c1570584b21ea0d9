// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flate

import (
	"math/bits"
	"time"

	"github.com/coreos/zflate/checksum"
)

type inflateState int

const (
	headMagic inflateState = iota
	zlibDictID
	zlibDict
	gzipFlags
	gzipTime
	gzipOS
	gzipExtraLen
	gzipExtra
	gzipName
	gzipComment
	gzipHeaderCRC
	blockHeader
	storedLen
	storedCopy
	tableCounts
	codeLenLens
	codeLens
	lenSym
	lenExt
	distSym
	distExt
	match
	trailerCheck
	trailerLength
	done
	bad
)

var stateNames = [...]string{
	"headMagic", "zlibDictID", "zlibDict", "gzipFlags", "gzipTime", "gzipOS",
	"gzipExtraLen", "gzipExtra", "gzipName", "gzipComment", "gzipHeaderCRC",
	"blockHeader", "storedLen", "storedCopy", "tableCounts", "codeLenLens",
	"codeLens", "lenSym", "lenExt", "distSym", "distExt", "match",
	"trailerCheck", "trailerLength", "done", "bad",
}

func (s inflateState) String() string { return stateNames[s] }

// InflateOptions configures an Inflater.
type InflateOptions struct {
	Format Format
	// WindowBits is the largest window a zlib header may ask for, 9..15.
	// Zero means MaxWindowBits. Raw and gzip streams always get a full
	// window.
	WindowBits int
}

// An Inflater decompresses a stream one step at a time. Every call to
// Inflate picks up exactly where the previous one stopped, whatever the
// input and output buffer boundaries were.
type Inflater struct {
	opts   InflateOptions
	format Format // the framing being decoded, resolved from Auto

	state  inflateState
	last   bool // the current block is the final one
	paused bool // BlockEnd was already returned for this boundary
	err    error

	// bit accumulator, LSB first
	hold uint64
	nb   uint

	in  []byte
	ip  int
	out []byte
	op  int

	win window

	lit, dist   *huffmanDecoder
	dynLit      huffmanDecoder
	dynDist     huffmanDecoder
	codeLenDec  huffmanDecoder
	lens        [maxNumLit + maxNumDist]uint8
	codeLenLens [numCodes]uint8
	nlit, ndist int
	ncode, have int

	length     int // match length, or bytes left in a stored block
	distance   int
	extra      uint // extra bits wanted by lenExt / distExt
	headerLeft int  // bytes left in the gzip extra field

	check     uint32
	checkedTo int // out[:checkedTo] is already in check
	hcrc      uint32
	header    *GzipHeader
	gzFlags   byte
	field     []byte
	dictID    uint32

	totalIn  int64
	totalOut int64
}

// NewInflater returns an Inflater for opts.
func NewInflater(opts InflateOptions) (*Inflater, error) {
	if opts.Format < Raw || opts.Format > Auto {
		return nil, errorf(BadArgument, 0, "unknown format")
	}
	if opts.WindowBits == 0 {
		opts.WindowBits = MaxWindowBits
	}
	if opts.WindowBits < MinWindowBits || opts.WindowBits > MaxWindowBits {
		return nil, errorf(BadArgument, 0, "window bits out of range")
	}
	f := &Inflater{opts: opts}
	f.Reset()
	return f, nil
}

// Reset discards all state, including any dictionary, and starts a new
// stream with the same options.
func (f *Inflater) Reset() {
	f.format = f.opts.Format
	f.state = headMagic
	if f.format == Raw {
		f.state = blockHeader
	}
	f.last, f.paused = false, false
	f.err = nil
	f.hold, f.nb = 0, 0
	f.win.init()
	f.header = nil
	f.field = f.field[:0]
	f.dictID = 0
	f.totalIn, f.totalOut = 0, 0
	f.check = 0
	if f.format == Zlib {
		f.check = checksum.AdlerInit
	}
}

// Format is the framing being decoded. For Auto it is Zlib or Gzip once
// the first two bytes have been read.
func (f *Inflater) Format() Format { return f.format }

// Header returns the gzip header once it has been parsed, or nil.
func (f *Inflater) Header() *GzipHeader { return f.header }

// DictionaryID returns the dictionary id from the zlib header.
func (f *Inflater) DictionaryID() uint32 { return f.dictID }

// TotalIn is the number of input bytes consumed so far.
func (f *Inflater) TotalIn() int64 { return f.totalIn }

// TotalOut is the number of bytes produced so far.
func (f *Inflater) TotalOut() int64 { return f.totalOut }

// Checksum is the running Adler-32 (zlib) or CRC-32 (raw and gzip) of the
// output produced so far.
func (f *Inflater) Checksum() uint32 { return f.check }

// Pending returns the bits buffered in the accumulator but not yet used,
// and their count. At a BlockEnd these are the low bits of the last byte
// consumed.
func (f *Inflater) Pending() (value uint32, n uint) {
	return uint32(f.hold & (1<<f.nb - 1)), f.nb
}

// Window returns a copy of the decoded history, at most 32 KiB, oldest
// byte first.
func (f *Inflater) Window() []byte { return f.win.bytes() }

// Prime inserts the low n bits of value into the accumulator, as if they
// were read ahead of the next input byte. It is used to restart decoding in
// the middle of a byte, before the first block header.
func (f *Inflater) Prime(n uint, value uint32) error {
	if n > 32 || f.nb+n > 64 {
		return errorf(BadArgument, f.totalIn, "too many bits to prime")
	}
	f.hold |= uint64(value&(1<<n-1)) << f.nb
	f.nb += n
	return nil
}

// SetDictionary supplies the preset dictionary. For a zlib stream it has
// to be called after Inflate returned NeedDictionary, and dict must match
// the id in the header. For a raw stream it can be called at any block
// boundary and simply becomes the history.
func (f *Inflater) SetDictionary(dict []byte) error {
	switch {
	case f.state == zlibDict:
		if checksum.Adler32(checksum.AdlerInit, dict) != f.dictID {
			return errorf(BadArgument, f.totalIn, "incorrect dictionary")
		}
		f.state = blockHeader
	case f.format == Raw && f.state == blockHeader:
	default:
		return errorf(BadArgument, f.totalIn, "dictionary not expected now")
	}
	f.win.update(dict)
	return nil
}

func (f *Inflater) fail(kind Kind, msg string) {
	f.err = errorf(kind, f.totalIn+int64(f.ip), msg)
	f.state = bad
	plog.Debugf("inflater: %v", f.err)
}

// needBits makes sure at least n bits are buffered, pulling input one
// byte at a time. It reports false when the input runs out first.
func (f *Inflater) needBits(n uint) bool {
	for f.nb < n {
		if f.ip == len(f.in) {
			return false
		}
		f.hold |= uint64(f.in[f.ip]) << f.nb
		f.ip++
		f.nb += 8
	}
	return true
}

func (f *Inflater) bits(n uint) uint32 { return uint32(f.hold & (1<<n - 1)) }

func (f *Inflater) dropBits(n uint) {
	f.hold >>= n
	f.nb -= n
}

// takeBits returns and consumes n buffered bits.
func (f *Inflater) takeBits(n uint) uint32 {
	v := f.bits(n)
	f.dropBits(n)
	return v
}

func (f *Inflater) dropToByte() { f.dropBits(f.nb & 7) }

// headerByte consumes one byte of a gzip header, folding it into the
// header CRC.
func (f *Inflater) headerByte() (byte, bool) {
	if !f.needBits(8) {
		return 0, false
	}
	b := byte(f.takeBits(8))
	f.hcrc = checksum.CRC32(f.hcrc, []byte{b})
	return b, true
}

// headerBytes consumes n bytes of a gzip header, little endian.
func (f *Inflater) headerBytes(n int) (uint32, bool) {
	if !f.needBits(uint(8 * n)) {
		return 0, false
	}
	var v uint32
	var buf [4]byte
	for i := 0; i < n; i++ {
		buf[i] = byte(f.takeBits(8))
		v |= uint32(buf[i]) << (8 * uint(i))
	}
	f.hcrc = checksum.CRC32(f.hcrc, buf[:n])
	return v, true
}

// peekSym makes sure the next code of h is buffered and returns its length
// and symbol without consuming it. A zero length means the bits start no
// valid code. ok is false when the input ran out first.
func (f *Inflater) peekSym(h *huffmanDecoder) (n uint, sym int, ok bool) {
	for {
		n, sym = h.lookup(f.hold)
		if n == 0 || n <= f.nb {
			return n, sym, true
		}
		if f.ip == len(f.in) {
			return 0, 0, false
		}
		f.hold |= uint64(f.in[f.ip]) << f.nb
		f.ip++
		f.nb += 8
	}
}

func (f *Inflater) updateCheck() {
	if f.checkedTo == f.op {
		return
	}
	p := f.out[f.checkedTo:f.op]
	if f.format == Zlib {
		f.check = checksum.Adler32(f.check, p)
	} else {
		f.check = checksum.CRC32(f.check, p)
	}
	f.checkedTo = f.op
}

// Inflate decompresses from in into out. It returns the number of bytes
// consumed and produced and a Status:
//
//	NeedMoreInput   all input was consumed; call again with more
//	NeedMoreOutput  out is full; call again with more room
//	NeedDictionary  call SetDictionary, then Inflate again
//	BlockEnd        flush was BlockFlush and a block boundary was reached
//	StreamEnd       the stream and its trailer are complete; any input
//	                after the trailer is left unconsumed
//
// Data errors are returned as *Error and are sticky until Reset.
func (f *Inflater) Inflate(in, out []byte, flush Flush) (nIn, nOut int, st Status, err error) {
	if f.err != nil {
		return 0, 0, StatusOK, f.err
	}
	if flush != NoFlush && flush != SyncFlush && flush != Finish && flush != BlockFlush {
		return 0, 0, StatusOK, errorf(BadArgument, f.totalIn, "invalid flush for inflate")
	}
	f.in, f.ip = in, 0
	f.out, f.op = out, 0
	f.checkedTo = 0

	st = f.run(flush)

	f.updateCheck()
	f.win.update(out[:f.op])
	nIn, nOut = f.ip, f.op
	f.totalIn += int64(nIn)
	f.totalOut += int64(nOut)
	f.in, f.out = nil, nil
	if f.err != nil {
		return nIn, nOut, st, f.err
	}
	return nIn, nOut, st, nil
}

func (f *Inflater) run(flush Flush) Status {
	for {
		switch f.state {
		case headMagic:
			if !f.needBits(16) {
				return NeedMoreInput
			}
			if f.format == Auto {
				if f.bits(16) == gzipID2<<8|gzipID1 {
					f.format = Gzip
				} else {
					f.format = Zlib
					f.check = checksum.AdlerInit
				}
			}
			if f.format == Gzip {
				f.hcrc = 0
				if v, _ := f.headerBytes(2); v != gzipID2<<8|gzipID1 {
					f.fail(BadHeader, "incorrect gzip magic")
					continue
				}
				f.header = &GzipHeader{}
				f.state = gzipFlags
				continue
			}
			cmf, flg := f.bits(8), f.bits(16)>>8
			switch {
			case (cmf<<8|flg)%31 != 0:
				f.fail(BadHeader, "incorrect header check")
				continue
			case cmf&0x0f != zlibDeflate:
				f.fail(BadHeader, "unknown compression method")
				continue
			case int(cmf>>4)+8 > f.opts.WindowBits:
				f.fail(BadHeader, "invalid window size")
				continue
			}
			f.dropBits(16)
			if flg&zlibFDict != 0 {
				f.state = zlibDictID
			} else {
				f.state = blockHeader
			}

		case zlibDictID:
			if !f.needBits(32) {
				return NeedMoreInput
			}
			f.dictID = bits.ReverseBytes32(f.takeBits(32))
			f.state = zlibDict

		case zlibDict:
			return NeedDictionary

		case gzipFlags:
			v, ok := f.headerBytes(2)
			if !ok {
				return NeedMoreInput
			}
			if v&0xff != gzipDeflate {
				f.fail(BadHeader, "unknown compression method")
				continue
			}
			f.gzFlags = byte(v >> 8)
			if f.gzFlags&0xe0 != 0 {
				f.fail(BadHeader, "unknown header flags set")
				continue
			}
			f.header.Text = f.gzFlags&flagText != 0
			f.header.HeaderCRC = f.gzFlags&flagHdrCrc != 0
			f.state = gzipTime

		case gzipTime:
			v, ok := f.headerBytes(4)
			if !ok {
				return NeedMoreInput
			}
			if v > 0 {
				f.header.ModTime = time.Unix(int64(v), 0)
			}
			f.state = gzipOS

		case gzipOS:
			v, ok := f.headerBytes(2)
			if !ok {
				return NeedMoreInput
			}
			f.header.ExtraFlags = byte(v)
			f.header.OS = byte(v >> 8)
			f.state = gzipExtraLen

		case gzipExtraLen:
			if f.gzFlags&flagExtra == 0 {
				f.state = gzipName
				continue
			}
			v, ok := f.headerBytes(2)
			if !ok {
				return NeedMoreInput
			}
			f.headerLeft = int(v)
			f.header.Extra = make([]byte, 0, v)
			f.state = gzipExtra

		case gzipExtra:
			for f.headerLeft > 0 {
				b, ok := f.headerByte()
				if !ok {
					return NeedMoreInput
				}
				f.header.Extra = append(f.header.Extra, b)
				f.headerLeft--
			}
			f.state = gzipName

		case gzipName, gzipComment:
			flag := byte(flagName)
			if f.state == gzipComment {
				flag = flagComment
			}
			if f.gzFlags&flag != 0 {
				for {
					b, ok := f.headerByte()
					if !ok {
						return NeedMoreInput
					}
					if b == 0 {
						break
					}
					if len(f.field) == maxHeaderString {
						f.fail(BadHeader, "gzip header string too long")
						return StatusOK
					}
					f.field = append(f.field, b)
				}
				s := latin1String(f.field)
				f.field = f.field[:0]
				if f.state == gzipName {
					f.header.Name = s
				} else {
					f.header.Comment = s
				}
			}
			if f.state == gzipName {
				f.state = gzipComment
			} else {
				f.state = gzipHeaderCRC
			}

		case gzipHeaderCRC:
			if f.gzFlags&flagHdrCrc != 0 {
				want := uint16(f.hcrc)
				if !f.needBits(16) {
					return NeedMoreInput
				}
				if uint16(f.takeBits(16)) != want {
					f.fail(BadHeader, "header crc mismatch")
					continue
				}
			}
			plog.Debugf("inflater: gzip header name=%q os=%d", f.header.Name, f.header.OS)
			f.check = 0
			f.state = blockHeader

		case blockHeader:
			if flush == BlockFlush && !f.paused {
				f.paused = true
				return BlockEnd
			}
			if !f.needBits(3) {
				return NeedMoreInput
			}
			f.paused = false
			f.last = f.takeBits(1) == 1
			switch f.takeBits(2) {
			case 0:
				f.dropToByte()
				f.state = storedLen
			case 1:
				f.lit, f.dist = fixedDecoders()
				f.state = lenSym
			case 2:
				f.state = tableCounts
			default:
				f.fail(BadBlockType, "invalid block type")
			}

		case storedLen:
			if !f.needBits(32) {
				return NeedMoreInput
			}
			v := f.takeBits(32)
			if v&0xffff != ^v>>16 {
				f.fail(BadStoredLength, "invalid stored block lengths")
				continue
			}
			f.length = int(v & 0xffff)
			f.state = storedCopy

		case storedCopy:
			if f.length == 0 {
				f.endBlock()
				continue
			}
			room := len(f.out) - f.op
			if room == 0 {
				return NeedMoreOutput
			}
			avail := len(f.in) - f.ip
			if avail == 0 {
				return NeedMoreInput
			}
			n := f.length
			if n > room {
				n = room
			}
			if n > avail {
				n = avail
			}
			copy(f.out[f.op:], f.in[f.ip:f.ip+n])
			f.op += n
			f.ip += n
			f.length -= n

		case tableCounts:
			if !f.needBits(14) {
				return NeedMoreInput
			}
			f.nlit = int(f.takeBits(5)) + 257
			f.ndist = int(f.takeBits(5)) + 1
			f.ncode = int(f.takeBits(4)) + 4
			if f.nlit > maxNumLit || f.ndist > maxNumDist {
				f.fail(BadHuffmanTable, "too many length or distance symbols")
				continue
			}
			f.have = 0
			f.codeLenLens = [numCodes]uint8{}
			f.state = codeLenLens

		case codeLenLens:
			for f.have < f.ncode {
				if !f.needBits(3) {
					return NeedMoreInput
				}
				f.codeLenLens[codeOrder[f.have]] = uint8(f.takeBits(3))
				f.have++
			}
			if !f.codeLenDec.init(f.codeLenLens[:], false) {
				f.fail(BadHuffmanTable, "invalid code lengths set")
				continue
			}
			f.have = 0
			f.state = codeLens

		case codeLens:
			if st, ok := f.readCodeLens(); !ok {
				return st
			}

		case lenSym:
			if len(f.in)-f.ip >= 8 && len(f.out)-f.op >= maxMatchLength {
				f.inflateFast()
				continue
			}
			n, sym, ok := f.peekSym(f.lit)
			if !ok {
				return NeedMoreInput
			}
			switch {
			case n == 0:
				f.fail(BadHuffmanTable, "invalid literal/length code")
			case sym < endBlockMarker:
				if f.op == len(f.out) {
					return NeedMoreOutput
				}
				f.dropBits(n)
				f.out[f.op] = byte(sym)
				f.op++
			case sym == endBlockMarker:
				f.dropBits(n)
				f.endBlock()
			case sym < maxNumLit:
				f.dropBits(n)
				sym -= endBlockMarker + 1
				f.length = int(lengthBase[sym])
				f.extra = uint(lengthExtra[sym])
				f.state = lenExt
			default:
				f.fail(BadHuffmanTable, "invalid literal/length code")
			}

		case lenExt:
			if !f.needBits(f.extra) {
				return NeedMoreInput
			}
			f.length += int(f.takeBits(f.extra))
			f.state = distSym

		case distSym:
			n, sym, ok := f.peekSym(f.dist)
			if !ok {
				return NeedMoreInput
			}
			if n == 0 || sym >= maxNumDist {
				f.fail(BadDistance, "invalid distance code")
				continue
			}
			f.dropBits(n)
			f.distance = int(distBase[sym])
			f.extra = uint(distExtra[sym])
			f.state = distExt

		case distExt:
			if !f.needBits(f.extra) {
				return NeedMoreInput
			}
			f.distance += int(f.takeBits(f.extra))
			if f.distance > f.win.have+f.op {
				f.fail(BadDistance, "invalid distance too far back")
				continue
			}
			f.state = match

		case match:
			if f.op == len(f.out) {
				return NeedMoreOutput
			}
			f.op = f.copyMatch(f.op, len(f.out))
			if f.length == 0 {
				f.state = lenSym
			}

		case trailerCheck:
			if f.format == Raw {
				f.state = done
				continue
			}
			f.dropToByte()
			if !f.needBits(32) {
				return NeedMoreInput
			}
			f.updateCheck()
			v := f.takeBits(32)
			if f.format == Zlib {
				v = bits.ReverseBytes32(v)
			}
			if v != f.check {
				f.fail(TrailerMismatch, "incorrect data check")
				continue
			}
			f.state = trailerLength

		case trailerLength:
			if f.format == Gzip {
				if !f.needBits(32) {
					return NeedMoreInput
				}
				if f.takeBits(32) != uint32(f.totalOut+int64(f.op)) {
					f.fail(TrailerMismatch, "incorrect length check")
					continue
				}
			}
			f.state = done

		case done:
			return StreamEnd

		case bad:
			return StatusOK
		}
	}
}

// endBlock moves on after the end of a block.
func (f *Inflater) endBlock() {
	if f.last {
		f.state = trailerCheck
		return
	}
	f.state = blockHeader
}

// readCodeLens decodes the literal/length and distance code lengths and
// builds both tables. ok is false when the caller has to return st.
func (f *Inflater) readCodeLens() (st Status, ok bool) {
	total := f.nlit + f.ndist
	for f.have < total {
		n, sym, more := f.peekSym(&f.codeLenDec)
		if !more {
			return NeedMoreInput, false
		}
		if n == 0 {
			f.fail(BadHuffmanTable, "invalid code lengths set")
			return StatusOK, true
		}
		if sym < 16 {
			f.dropBits(n)
			f.lens[f.have] = uint8(sym)
			f.have++
			continue
		}
		var extra uint
		var base int
		var val uint8
		switch sym {
		case 16:
			if f.have == 0 {
				f.fail(BadHuffmanTable, "invalid bit length repeat")
				return StatusOK, true
			}
			extra, base, val = 2, 3, f.lens[f.have-1]
		case 17:
			extra, base = 3, 3
		default:
			extra, base = 7, 11
		}
		if !f.needBits(n + extra) {
			return NeedMoreInput, false
		}
		f.dropBits(n)
		rep := base + int(f.takeBits(extra))
		if f.have+rep > total {
			f.fail(BadHuffmanTable, "invalid bit length repeat")
			return StatusOK, true
		}
		for ; rep > 0; rep-- {
			f.lens[f.have] = val
			f.have++
		}
	}

	if f.lens[endBlockMarker] == 0 {
		f.fail(BadHuffmanTable, "invalid code -- missing end-of-block")
		return StatusOK, true
	}
	if !f.dynLit.init(f.lens[:f.nlit], true) {
		f.fail(BadHuffmanTable, "invalid literal/lengths set")
		return StatusOK, true
	}
	if !f.dynDist.init(f.lens[f.nlit:total], true) {
		f.fail(BadHuffmanTable, "invalid distances set")
		return StatusOK, true
	}
	f.lit, f.dist = &f.dynLit, &f.dynDist
	f.state = lenSym
	return StatusOK, true
}

// copyMatch copies the pending match into out[op:end], first from the
// window for the part that was produced by earlier calls, then from out
// itself. It returns the new output position.
func (f *Inflater) copyMatch(op, end int) int {
	out := f.out
	n := f.length
	if n > end-op {
		n = end - op
	}
	f.length -= n
	if f.distance > op {
		back := f.distance - op
		k := n
		if k > back {
			k = back
		}
		f.win.read(out[op:op+k], back)
		op += k
		n -= k
	}
	if n == 0 {
		return op
	}
	src := op - f.distance
	if f.distance >= n {
		copy(out[op:op+n], out[src:src+n])
		return op + n
	}
	for i := 0; i < n; i++ {
		out[op+i] = out[src+i]
	}
	return op + n
}

func latin1String(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}
