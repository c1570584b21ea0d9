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

	"github.com/coreos/zflate/checksum"
)

const (
	// minLookahead is the lookahead the matchers keep so that a full length
	// match plus the next hash can always be examined.
	minLookahead = maxMatchLength + minMatchLength + 1

	// tooFar is the distance past which a three byte match costs more than
	// the literals it replaces.
	tooFar = 4096
)

type deflatePhase int

const (
	phaseHeader deflatePhase = iota
	phaseBody
	phaseFinishing
	phaseDone
)

// compressResult says why a strategy loop returned.
type compressResult int

const (
	needInput    compressResult = iota // input ran out before a flush point
	blockEmitted                       // a block is queued in the bit writer
	inputDone                          // everything is tallied, ready to flush
)

// DeflateOptions configures a Deflater. The zero value is a raw stream at
// NoCompression; callers normally set Level to DefaultCompression.
type DeflateOptions struct {
	Format   Format
	Level    int
	Strategy Strategy
	// WindowBits is the base two log of the window size, 9..15. Zero
	// means DefaultWindowBits.
	WindowBits int
	// MemLevel sets the hash table and token buffer sizes, 1..9. Zero
	// means DefaultMemLevel.
	MemLevel int
	// Header is written as the gzip header. Nil writes a minimal header.
	Header *GzipHeader
}

func (o *DeflateOptions) validate() error {
	if o.Format != Raw && o.Format != Zlib && o.Format != Gzip {
		return errorf(BadArgument, 0, "deflate format must be raw, zlib or gzip")
	}
	if o.Level == DefaultCompression {
		o.Level = 6
	}
	if o.Level < NoCompression || o.Level > BestCompression {
		return errorf(BadArgument, 0, "compression level out of range")
	}
	if o.Strategy < DefaultStrategy || o.Strategy > Fixed {
		return errorf(BadArgument, 0, "unknown strategy")
	}
	if o.WindowBits == 0 {
		o.WindowBits = DefaultWindowBits
	}
	if o.WindowBits < MinWindowBits || o.WindowBits > MaxWindowBits {
		return errorf(BadArgument, 0, "window bits out of range")
	}
	if o.MemLevel == 0 {
		o.MemLevel = DefaultMemLevel
	}
	if o.MemLevel < MinMemLevel || o.MemLevel > MaxMemLevel {
		return errorf(BadArgument, 0, "memory level out of range")
	}
	return nil
}

// A Deflater compresses a stream one step at a time. It never blocks and
// never allocates output: every call reads from the input it is given,
// writes into the output it is given, and reports how far it got.
type Deflater struct {
	opts  DeflateOptions
	level int

	phase   deflatePhase
	flushed bool // a sync flush point was written and nothing came after
	err     error

	w bitWriter
	m matchFinder

	// window holds two window sizes of input. Matches may reach back
	// maxDist bytes from strstart, and the upper half slides down once
	// strstart gets too close to the end.
	window     []byte
	wsize      int
	strstart   int // next byte to process
	lookahead  int // bytes after strstart in the window
	blockStart int // start of the current block, negative once slid out

	matchLength    int
	matchStart     int
	prevLength     int
	prevMatch      int
	matchAvailable bool // window[strstart-1] is a literal not yet tallied

	// stored holds pending input at level 0.
	stored []byte

	tokens    []token
	maxTokens int
	litFreq   [numLitCodes]uint32
	distFreq  [numDistCodes]uint32

	litEnc      *huffmanEncoder
	distEnc     *huffmanEncoder
	codegenEnc  *huffmanEncoder
	codeLens    []uint8
	codegen     []uint8
	codegenFreq [numCodes]uint32

	check    uint32
	dictID   uint32
	haveDict bool
	totalIn  int64
	totalOut int64

	in []byte // the caller's input for the current call
	ip int
}

// NewDeflater returns a Deflater for opts.
func NewDeflater(opts DeflateOptions) (*Deflater, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	d := &Deflater{opts: opts, level: opts.Level}
	wbits := uint(opts.WindowBits)
	d.wsize = 1 << wbits
	litBufSize := 1 << uint(opts.MemLevel+6)
	d.maxTokens = litBufSize - 1
	if d.level == NoCompression {
		d.stored = make([]byte, 0, maxStoredBlock)
	} else {
		d.window = make([]byte, 2*d.wsize)
		d.tokens = make([]token, 0, litBufSize)
		d.litEnc = newHuffmanEncoder(maxNumLit)
		d.distEnc = newHuffmanEncoder(maxNumDist)
		d.codegenEnc = newHuffmanEncoder(numCodes)
		d.m.init(wbits, uint(opts.MemLevel+7), levels[d.level])
	}
	d.Reset()
	plog.Debugf("deflater: format=%v level=%d strategy=%v window=%d memlevel=%d",
		opts.Format, opts.Level, opts.Strategy, opts.WindowBits, opts.MemLevel)
	return d, nil
}

// Reset discards all state and starts a new stream with the same options.
// A dictionary set before Reset is forgotten.
func (d *Deflater) Reset() {
	d.phase = phaseHeader
	d.flushed = false
	d.err = nil
	d.w.reset()
	d.strstart, d.lookahead, d.blockStart = 0, 0, 0
	d.matchLength, d.matchStart = minMatchLength-1, 0
	d.prevLength, d.prevMatch = minMatchLength-1, 0
	d.matchAvailable = false
	d.stored = d.stored[:0]
	if d.level != NoCompression {
		d.m.reset()
		d.resetTokens()
	}
	d.haveDict = false
	d.dictID = 0
	d.totalIn, d.totalOut = 0, 0
	d.check = d.initCheck()
}

func (d *Deflater) initCheck() uint32 {
	if d.opts.Format == Zlib {
		return checksum.AdlerInit
	}
	return 0
}

// SetDictionary preloads the window with dict so that the first bytes of
// input can refer to it. It must be called before the first Deflate. Only
// the last window size of dict matters. A zlib stream records the
// dictionary's Adler-32 in its header; gzip streams cannot carry one.
func (d *Deflater) SetDictionary(dict []byte) error {
	if d.opts.Format == Gzip {
		return errorf(BadArgument, 0, "gzip streams do not support a dictionary")
	}
	if d.phase != phaseHeader || d.totalIn != 0 {
		return errorf(BadArgument, 0, "dictionary must be set before compressing")
	}
	d.dictID = checksum.Adler32(checksum.AdlerInit, dict)
	d.haveDict = true
	if d.level == NoCompression {
		return nil
	}
	if len(dict) > d.wsize-minLookahead {
		dict = dict[len(dict)-(d.wsize-minLookahead):]
	}
	n := copy(d.window, dict)
	for i := 0; i+minMatchLength <= n; i++ {
		d.m.insert(d.window, i)
	}
	d.strstart = n
	d.blockStart = n
	return nil
}

// DictionaryID returns the Adler-32 of the dictionary set, or zero.
func (d *Deflater) DictionaryID() uint32 { return d.dictID }

// TotalIn is the number of input bytes consumed so far.
func (d *Deflater) TotalIn() int64 { return d.totalIn }

// TotalOut is the number of output bytes produced so far.
func (d *Deflater) TotalOut() int64 { return d.totalOut }

// Checksum is the running Adler-32 (zlib) or CRC-32 (raw and gzip) of the
// input consumed so far.
func (d *Deflater) Checksum() uint32 { return d.check }

// Pending is the number of compressed bytes waiting for output space.
func (d *Deflater) Pending() int { return d.w.pending() }

// Bound returns the largest output Deflate can produce from n input bytes
// when finishing the stream in one go.
func (d *Deflater) Bound(n int) int {
	wrap := 0
	switch d.opts.Format {
	case Zlib:
		wrap = 6
		if d.haveDict {
			wrap += 4
		}
	case Gzip:
		wrap = 18
		if h := d.opts.Header; h != nil {
			if h.Extra != nil {
				wrap += 2 + len(h.Extra)
			}
			if h.Name != "" {
				wrap += len(h.Name) + 1
			}
			if h.Comment != "" {
				wrap += len(h.Comment) + 1
			}
			if h.HeaderCRC {
				wrap += 2
			}
		}
	}
	if d.level == NoCompression {
		blocks := n/maxStoredBlock + 1
		return n + 5*blocks + wrap
	}
	return n + (n+7)>>3 + (n+63)>>6 + 5 + wrap
}

func (d *Deflater) maxDist() int { return d.wsize - minLookahead }

// Deflate compresses from in into out. It returns the number of bytes
// consumed and produced and a Status:
//
//	NeedMoreInput   all input was consumed; call again with more
//	NeedMoreOutput  out filled up; call again with more room
//	StatusOK        a SyncFlush or FullFlush completed
//	StreamEnd       a Finish completed; the stream is done
//
// Errors are sticky except for BadArgument, which leaves the stream as it
// was.
func (d *Deflater) Deflate(in, out []byte, flush Flush) (nIn, nOut int, st Status, err error) {
	if d.err != nil {
		return 0, 0, StatusOK, d.err
	}
	if flush < NoFlush || flush > Finish {
		return 0, 0, StatusOK, errorf(BadArgument, d.totalIn, "invalid flush for deflate")
	}
	if d.phase == phaseDone {
		if len(in) > 0 {
			return 0, 0, StreamEnd, errorf(BadArgument, d.totalIn, "input after end of stream")
		}
		return 0, 0, StreamEnd, nil
	}
	if d.phase == phaseFinishing {
		flush = Finish
	}

	d.in, d.ip = in, 0
	defer func() {
		d.in = nil
		nIn = d.ip
		d.totalOut += int64(nOut)
	}()

	if d.phase == phaseHeader {
		if err := d.writeHeader(); err != nil {
			d.err = err
			return 0, 0, StatusOK, err
		}
		d.phase = phaseBody
	}

	for {
		nOut += d.w.drain(out[nOut:])
		if d.w.pending() > 0 {
			return 0, nOut, NeedMoreOutput, nil
		}
		if d.phase == phaseFinishing {
			d.phase = phaseDone
			plog.Debugf("deflater: stream end, %d bytes in, %d bytes out", d.totalIn, d.totalOut+int64(nOut))
			return 0, nOut, StreamEnd, nil
		}

		switch d.compress(flush) {
		case blockEmitted:
			continue
		case needInput:
			return 0, nOut, NeedMoreInput, nil
		}

		if flush == Finish {
			d.finishBlocks()
			d.writeTrailer()
			d.phase = phaseFinishing
			continue
		}
		if !d.flushed {
			d.flushPending()
			d.writeEmptyStored()
			if flush == FullFlush && d.level != NoCompression {
				d.m.reset()
			}
			d.flushed = true
		}
		nOut += d.w.drain(out[nOut:])
		if d.w.pending() > 0 {
			return 0, nOut, NeedMoreOutput, nil
		}
		return 0, nOut, StatusOK, nil
	}
}

func (d *Deflater) compress(flush Flush) compressResult {
	if d.level == NoCompression {
		return d.compressStored(flush)
	}
	switch d.opts.Strategy {
	case HuffmanOnly:
		return d.compressHuff(flush)
	case RLE:
		return d.compressRLE(flush)
	}
	if d.level <= 3 {
		return d.compressFast(flush)
	}
	return d.compressSlow(flush)
}

// flushPending writes whatever has been tallied as a non-final block.
func (d *Deflater) flushPending() {
	if d.level == NoCompression {
		if len(d.stored) > 0 {
			d.writeStored(d.stored, false)
			d.stored = d.stored[:0]
		}
		return
	}
	d.emitHeldLiteral()
	if len(d.tokens) > 0 {
		d.flushBlock(false)
	}
}

// finishBlocks writes the final block.
func (d *Deflater) finishBlocks() {
	if d.level == NoCompression {
		d.writeStored(d.stored, true)
		d.stored = d.stored[:0]
		return
	}
	d.emitHeldLiteral()
	d.flushBlock(true)
}

func (d *Deflater) emitHeldLiteral() {
	if d.matchAvailable {
		d.tallyLit(d.window[d.strstart-1])
		d.matchAvailable = false
	}
}

func (d *Deflater) writeHeader() error {
	var hdr []byte
	switch d.opts.Format {
	case Zlib:
		hdr = appendZlibHeader(nil, uint(d.opts.WindowBits), d.level, d.opts.Strategy, d.dictID, d.haveDict)
	case Gzip:
		var err error
		hdr, err = appendGzipHeader(nil, d.opts.Header, d.level, d.opts.Strategy)
		if err != nil {
			return err
		}
	}
	d.w.writeBytes(hdr)
	return nil
}

func (d *Deflater) writeTrailer() {
	d.w.alignToByte()
	var b [8]byte
	switch d.opts.Format {
	case Zlib:
		binary.BigEndian.PutUint32(b[:], d.check)
		d.w.writeBytes(b[:4])
	case Gzip:
		binary.LittleEndian.PutUint32(b[:], d.check)
		binary.LittleEndian.PutUint32(b[4:], uint32(d.totalIn))
		d.w.writeBytes(b[:8])
	}
}

// consume takes up to len(dst) bytes of the caller's input into dst and
// folds them into the running checksum.
func (d *Deflater) consume(dst []byte) int {
	n := copy(dst, d.in[d.ip:])
	if n == 0 {
		return 0
	}
	p := dst[:n]
	if d.opts.Format == Zlib {
		d.check = checksum.Adler32(d.check, p)
	} else {
		d.check = checksum.CRC32(d.check, p)
	}
	d.ip += n
	d.totalIn += int64(n)
	d.flushed = false
	return n
}

// fillWindow slides the window when strstart nears its end and reads
// input until the lookahead reaches minLookahead or input runs out.
func (d *Deflater) fillWindow() {
	for d.lookahead < minLookahead && d.ip < len(d.in) {
		if d.strstart >= d.wsize+d.maxDist() {
			copy(d.window, d.window[d.wsize:2*d.wsize])
			d.matchStart -= d.wsize
			d.prevMatch -= d.wsize
			d.strstart -= d.wsize
			d.blockStart -= d.wsize
			d.m.slide(d.wsize)
		}
		end := d.strstart + d.lookahead
		d.lookahead += d.consume(d.window[end:])
	}
}

// refill tops up the lookahead and reports what the strategy loop should
// do when it is short: keep going, wait for input, or flush.
func (d *Deflater) refill(want int, flush Flush) (compressResult, bool) {
	if d.lookahead >= want {
		return 0, true
	}
	d.fillWindow()
	if d.lookahead < want && flush == NoFlush {
		return needInput, false
	}
	if d.lookahead == 0 {
		return inputDone, false
	}
	return 0, true
}

// compressStored copies input into stored blocks of at most 65535 bytes.
// A full block is only written once more input shows it is not the last.
func (d *Deflater) compressStored(flush Flush) compressResult {
	for {
		if len(d.stored) == maxStoredBlock {
			if d.ip == len(d.in) {
				if flush == NoFlush {
					return needInput
				}
				return inputDone
			}
			d.writeStored(d.stored, false)
			d.stored = d.stored[:0]
			return blockEmitted
		}
		n := d.consume(d.stored[len(d.stored):maxStoredBlock])
		d.stored = d.stored[:len(d.stored)+n]
		if n == 0 {
			if flush == NoFlush {
				return needInput
			}
			return inputDone
		}
	}
}

func (d *Deflater) compressHuff(flush Flush) compressResult {
	for {
		if r, ok := d.refill(1, flush); !ok {
			return r
		}
		full := d.tallyLit(d.window[d.strstart])
		d.lookahead--
		d.strstart++
		if full {
			d.flushBlock(false)
			return blockEmitted
		}
	}
}

// compressRLE only looks for runs of the previous byte.
func (d *Deflater) compressRLE(flush Flush) compressResult {
	for {
		if r, ok := d.refill(minLookahead, flush); !ok {
			return r
		}
		n := 0
		if d.lookahead >= minMatchLength && d.strstart > 0 {
			prev := d.window[d.strstart-1]
			end := d.lookahead
			if end > maxMatchLength {
				end = maxMatchLength
			}
			for n < end && d.window[d.strstart+n] == prev {
				n++
			}
		}
		var full bool
		if n >= minMatchLength {
			full = d.tallyMatch(1, n)
			d.lookahead -= n
			d.strstart += n
		} else {
			full = d.tallyLit(d.window[d.strstart])
			d.lookahead--
			d.strstart++
		}
		if full {
			d.flushBlock(false)
			return blockEmitted
		}
	}
}

// compressFast takes the first match it finds and only hashes the inside
// of short matches.
func (d *Deflater) compressFast(flush Flush) compressResult {
	for {
		if r, ok := d.refill(minLookahead, flush); !ok {
			return r
		}
		head := -1
		if d.lookahead >= minMatchLength {
			head = d.m.insert(d.window, d.strstart)
		}
		length := 0
		if head >= 0 && d.strstart-head <= d.maxDist() {
			length, d.matchStart = d.m.longest(d.window, d.strstart, head, d.lookahead, minMatchLength-1, d.maxDist())
		}

		var full bool
		if length >= minMatchLength {
			full = d.tallyMatch(d.strstart-d.matchStart, length)
			d.lookahead -= length
			if length <= d.m.params.lazy && d.lookahead >= minMatchLength {
				for i := 1; i < length; i++ {
					d.strstart++
					d.m.insert(d.window, d.strstart)
				}
				d.strstart++
			} else {
				d.strstart += length
			}
		} else {
			full = d.tallyLit(d.window[d.strstart])
			d.lookahead--
			d.strstart++
		}
		if full {
			d.flushBlock(false)
			return blockEmitted
		}
	}
}

// compressSlow is the lazy matcher: a match is only taken once the match
// at the next byte turned out no longer.
func (d *Deflater) compressSlow(flush Flush) compressResult {
	for {
		if r, ok := d.refill(minLookahead, flush); !ok {
			if r == inputDone {
				d.emitHeldLiteral()
			}
			return r
		}
		head := -1
		if d.lookahead >= minMatchLength {
			head = d.m.insert(d.window, d.strstart)
		}
		d.prevLength, d.prevMatch = d.matchLength, d.matchStart
		d.matchLength = minMatchLength - 1
		if head >= 0 && d.prevLength < d.m.params.lazy && d.strstart-head <= d.maxDist() {
			length, start := d.m.longest(d.window, d.strstart, head, d.lookahead, d.prevLength, d.maxDist())
			if length > 0 {
				d.matchLength, d.matchStart = length, start
				if length <= 5 && (d.opts.Strategy == Filtered ||
					length == minMatchLength && d.strstart-start > tooFar) {
					d.matchLength = minMatchLength - 1
				}
			}
		}

		switch {
		case d.prevLength >= minMatchLength && d.matchLength <= d.prevLength:
			maxInsert := d.strstart + d.lookahead - minMatchLength
			full := d.tallyMatch(d.strstart-1-d.prevMatch, d.prevLength)
			d.lookahead -= d.prevLength - 1
			for n := d.prevLength - 2; n > 0; n-- {
				d.strstart++
				if d.strstart <= maxInsert {
					d.m.insert(d.window, d.strstart)
				}
			}
			d.matchAvailable = false
			d.matchLength = minMatchLength - 1
			d.strstart++
			if full {
				d.flushBlock(false)
				return blockEmitted
			}
		case d.matchAvailable:
			full := d.tallyLit(d.window[d.strstart-1])
			d.strstart++
			d.lookahead--
			if full {
				d.flushBlock(false)
				return blockEmitted
			}
		default:
			d.matchAvailable = true
			d.strstart++
			d.lookahead--
		}
	}
}
