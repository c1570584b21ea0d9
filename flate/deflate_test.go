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
	"bytes"
	stdflate "compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"testing"
	"time"
)

var allStrategies = []Strategy{DefaultStrategy, Filtered, HuffmanOnly, RLE, Fixed}

// stdlibDecode decodes with the standard library, as an independent check
// of the encoder.
func stdlibDecode(format Format, data []byte) ([]byte, error) {
	var r io.Reader
	var err error
	switch format {
	case Raw:
		r = stdflate.NewReader(bytes.NewReader(data))
	case Zlib:
		r, err = zlib.NewReader(bytes.NewReader(data))
	case Gzip:
		r, err = gzip.NewReader(bytes.NewReader(data))
	}
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func TestRoundTrip(t *testing.T) {
	inputs := map[string][]byte{
		"empty":  nil,
		"byte":   []byte("a"),
		"run":    bytes.Repeat([]byte("a"), 20),
		"text":   textish(50000, 1),
		"zeros":  make([]byte, 70000),
		"random": randomBytes(10000, 2),
	}
	for name, data := range inputs {
		for _, format := range []Format{Raw, Zlib, Gzip} {
			for level := NoCompression; level <= BestCompression; level++ {
				for _, strategy := range allStrategies {
					opts := DeflateOptions{Format: format, Level: level, Strategy: strategy}
					comp := compress(t, opts, data)

					got, err := decompress(InflateOptions{Format: format}, comp)
					if err != nil {
						t.Fatalf("%s %v level %d %v: inflate: %v", name, format, level, strategy, err)
					}
					if !bytes.Equal(got, data) {
						t.Fatalf("%s %v level %d %v: round trip mismatch", name, format, level, strategy)
					}

					got, err = stdlibDecode(format, comp)
					if err != nil {
						t.Fatalf("%s %v level %d %v: stdlib decode: %v", name, format, level, strategy, err)
					}
					if !bytes.Equal(got, data) {
						t.Fatalf("%s %v level %d %v: stdlib decode mismatch", name, format, level, strategy)
					}
				}
			}
		}
	}
}

func TestRoundTripRandomLarge(t *testing.T) {
	data := randomBytes(100000, 42)
	for level := NoCompression; level <= BestCompression; level++ {
		for _, strategy := range allStrategies {
			opts := DeflateOptions{Format: Zlib, Level: level, Strategy: strategy}
			comp := compress(t, opts, data)
			got, err := decompress(InflateOptions{Format: Zlib}, comp)
			if err != nil {
				t.Fatalf("level %d %v: %v", level, strategy, err)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("level %d %v: round trip mismatch", level, strategy)
			}
		}
	}
}

func TestRoundTripWindowBits(t *testing.T) {
	data := textish(200000, 3)
	for wbits := MinWindowBits; wbits <= MaxWindowBits; wbits++ {
		for _, memLevel := range []int{1, 4, 9} {
			for _, level := range []int{1, 6, 9} {
				opts := DeflateOptions{Format: Zlib, Level: level, WindowBits: wbits, MemLevel: memLevel}
				comp := compress(t, opts, data)
				if got := int(comp[0]>>4) + 8; got != wbits {
					t.Errorf("wbits %d: header says %d", wbits, got)
				}
				got, err := decompress(InflateOptions{Format: Zlib, WindowBits: wbits}, comp)
				if err != nil {
					t.Fatalf("wbits %d memlevel %d level %d: %v", wbits, memLevel, level, err)
				}
				if !bytes.Equal(got, data) {
					t.Fatalf("wbits %d memlevel %d level %d: round trip mismatch", wbits, memLevel, level)
				}
			}
		}
	}
}

func TestStreamingChunks(t *testing.T) {
	data := textish(30000, 4)
	tests := []struct {
		in, out int
	}{
		{1, 1},
		{1, 1 << 16},
		{1 << 16, 1},
		{7, 13},
		{4096, 100},
	}
	for i, tt := range tests {
		for _, level := range []int{0, 1, 6, 9} {
			opts := DeflateOptions{Format: Gzip, Level: level}
			comp := compressChunked(t, opts, data, tt.in, tt.out)
			got, err := decompressChunked(InflateOptions{Format: Gzip}, comp, tt.in, tt.out)
			if err != nil {
				t.Fatalf("case %d level %d: %v", i, level, err)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("case %d level %d: round trip mismatch", i, level)
			}
		}
	}
}

func TestEmptyZlibStream(t *testing.T) {
	got := compress(t, DeflateOptions{Format: Zlib, Level: DefaultCompression}, nil)
	want := []byte{0x78, 0x9c, 0x03, 0x00, 0x00, 0x00, 0x00, 0x01}
	if !bytes.Equal(got, want) {
		t.Errorf("empty stream = % x, want % x", got, want)
	}
}

func TestRunCompresses(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 20)
	got := compress(t, DeflateOptions{Format: Zlib, Level: DefaultCompression}, data)
	if len(got) >= len(data) {
		t.Errorf("20 bytes of 'a' compressed to %d bytes", len(got))
	}
}

func TestStoredBlockSplit(t *testing.T) {
	tests := []struct {
		n    int
		hdrs [][5]byte
	}{
		{65535, [][5]byte{{0x01, 0xff, 0xff, 0x00, 0x00}}},
		{65536, [][5]byte{{0x00, 0xff, 0xff, 0x00, 0x00}, {0x01, 0x01, 0x00, 0xfe, 0xff}}},
	}
	for _, tt := range tests {
		data := textish(tt.n, 5)
		comp := compress(t, DeflateOptions{Format: Raw, Level: NoCompression}, data)
		rest := comp
		for i, hdr := range tt.hdrs {
			if len(rest) < 5 || !bytes.Equal(rest[:5], hdr[:]) {
				t.Fatalf("%d bytes: block %d header wrong: % x", tt.n, i, rest[:5])
			}
			n := int(hdr[1]) | int(hdr[2])<<8
			rest = rest[5+n:]
		}
		if len(rest) != 0 {
			t.Errorf("%d bytes: %d trailing bytes", tt.n, len(rest))
		}
		got, err := decompress(InflateOptions{Format: Raw}, comp)
		if err != nil || !bytes.Equal(got, data) {
			t.Errorf("%d bytes: round trip failed: %v", tt.n, err)
		}
	}
}

func TestBound(t *testing.T) {
	for _, n := range []int{0, 1, 1000, 70000} {
		data := randomBytes(n, int64(n))
		for level := NoCompression; level <= BestCompression; level++ {
			for _, format := range []Format{Raw, Zlib, Gzip} {
				d, err := NewDeflater(DeflateOptions{Format: format, Level: level})
				if err != nil {
					t.Fatal(err)
				}
				bound := d.Bound(n)
				out := make([]byte, bound)
				_, nOut, st, err := d.Deflate(data, out, Finish)
				if err != nil {
					t.Fatal(err)
				}
				if st != StreamEnd {
					t.Errorf("n=%d level %d %v: output did not fit in Bound=%d (status %v)", n, level, format, bound, st)
				}
				if nOut > bound {
					t.Errorf("n=%d level %d %v: wrote %d > %d", n, level, format, nOut, bound)
				}
			}
		}
	}
}

func TestSyncFlush(t *testing.T) {
	for _, flush := range []Flush{SyncFlush, FullFlush} {
		for _, level := range []int{0, 1, 6} {
			d, err := NewDeflater(DeflateOptions{Format: Raw, Level: level})
			if err != nil {
				t.Fatal(err)
			}
			first := textish(5000, 6)
			out := make([]byte, 2*len(first)+100)
			nIn, nOut, st, err := d.Deflate(first, out, flush)
			if err != nil {
				t.Fatal(err)
			}
			if nIn != len(first) || st != StatusOK {
				t.Fatalf("%v level %d: consumed %d, status %v", flush, level, nIn, st)
			}
			part := out[:nOut]
			if !bytes.HasSuffix(part, []byte{0x00, 0x00, 0xff, 0xff}) {
				t.Fatalf("%v level %d: flushed data does not end in an empty stored block", flush, level)
			}

			// Everything written so far decodes without the rest of the stream.
			got, err := decompress(InflateOptions{Format: Raw}, part)
			if err != io.ErrUnexpectedEOF {
				t.Fatalf("%v level %d: partial decode: %v", flush, level, err)
			}
			if !bytes.Equal(got, first) {
				t.Fatalf("%v level %d: partial decode mismatch", flush, level)
			}

			// A second flush with nothing new writes nothing.
			_, n, st, err := d.Deflate(nil, out, flush)
			if err != nil || n != 0 || st != StatusOK {
				t.Fatalf("%v level %d: repeated flush wrote %d bytes, %v, %v", flush, level, n, st, err)
			}

			second := textish(5000, 7)
			rest := compressTail(t, d, second)
			whole := append(append([]byte{}, part...), rest...)
			got, err = decompress(InflateOptions{Format: Raw}, whole)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, append(append([]byte{}, first...), second...)) {
				t.Fatalf("%v level %d: full decode mismatch", flush, level)
			}
		}
	}
}

func compressTail(t *testing.T, d *Deflater, data []byte) []byte {
	t.Helper()
	return drive(t, d, data, len(data)+1, 1024)
}

func TestFullFlushRestart(t *testing.T) {
	first := textish(20000, 8)
	second := textish(20000, 8)
	d, err := NewDeflater(DeflateOptions{Format: Raw, Level: 6})
	if err != nil {
		t.Fatal(err)
	}
	out := make([]byte, 2*len(first)+100)
	_, nOut, _, err := d.Deflate(first, out, FullFlush)
	if err != nil {
		t.Fatal(err)
	}
	head := append([]byte{}, out[:nOut]...)
	tail := compressTail(t, d, second)

	// After a full flush the rest decodes without any history.
	got, err := decompress(InflateOptions{Format: Raw}, tail)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, second) {
		t.Error("stream after full flush needs earlier history")
	}
	got, err = decompress(InflateOptions{Format: Raw}, append(head, tail...))
	if err != nil || !bytes.Equal(got, append(append([]byte{}, first...), second...)) {
		t.Errorf("whole stream decode failed: %v", err)
	}
}

func TestDeflateDictionary(t *testing.T) {
	dict := []byte("the quick brown fox jumps over the lazy dog")
	data := bytes.Repeat([]byte("the lazy dog jumps over the quick brown fox "), 3)

	d, err := NewDeflater(DeflateOptions{Format: Zlib, Level: 6})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SetDictionary(dict); err != nil {
		t.Fatal(err)
	}
	comp := drive(t, d, data, len(data)+1, 1024)
	if comp[1]&zlibFDict == 0 {
		t.Fatal("FDICT not set")
	}

	// The standard library agrees on the format.
	r, err := zlib.NewReaderDict(bytes.NewReader(comp), dict)
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(r)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("stdlib decode with dictionary failed: %v", err)
	}

	if _, err := decompress(InflateOptions{Format: Zlib}, comp); err != errNeedDict {
		t.Fatalf("decode without dictionary: %v", err)
	}

	f, err := NewInflater(InflateOptions{Format: Zlib})
	if err != nil {
		t.Fatal(err)
	}
	out := make([]byte, 1024)
	nIn, _, st, err := f.Inflate(comp, out, NoFlush)
	if err != nil || st != NeedDictionary {
		t.Fatalf("got %v, %v; want NeedDictionary", st, err)
	}
	if f.DictionaryID() != d.DictionaryID() {
		t.Errorf("dictionary id %08x, want %08x", f.DictionaryID(), d.DictionaryID())
	}
	if err := f.SetDictionary([]byte("wrong")); KindOf(err) != BadArgument {
		t.Errorf("wrong dictionary: %v", err)
	}
	if err := f.SetDictionary(dict); err != nil {
		t.Fatal(err)
	}
	_, nOut, st, err := f.Inflate(comp[nIn:], out, NoFlush)
	if err != nil || st != StreamEnd || !bytes.Equal(out[:nOut], data) {
		t.Fatalf("decode with dictionary: %v, %v", st, err)
	}

	g, err := NewDeflater(DeflateOptions{Format: Gzip, Level: 6})
	if err != nil {
		t.Fatal(err)
	}
	if err := g.SetDictionary(dict); KindOf(err) != BadArgument {
		t.Errorf("gzip dictionary: %v", err)
	}
}

func TestGzipHeaderRoundTrip(t *testing.T) {
	hdr := &GzipHeader{
		Text:      true,
		ModTime:   time.Unix(1500000000, 0),
		OS:        3,
		Extra:     []byte{'A', 'B', 2, 0, 'h', 'i'},
		Name:      "caf\u00e9.txt",
		Comment:   "a comment",
		HeaderCRC: true,
	}
	data := textish(1000, 9)
	comp := compress(t, DeflateOptions{Format: Gzip, Level: 9, Header: hdr}, data)

	zr, err := gzip.NewReader(bytes.NewReader(comp))
	if err != nil {
		t.Fatal(err)
	}
	if zr.Name != hdr.Name || zr.Comment != hdr.Comment || !zr.ModTime.Equal(hdr.ModTime) ||
		zr.OS != hdr.OS || !bytes.Equal(zr.Extra, hdr.Extra) {
		t.Errorf("stdlib read header %+v", zr.Header)
	}

	f, err := NewInflater(InflateOptions{Format: Auto})
	if err != nil {
		t.Fatal(err)
	}
	out := make([]byte, 2000)
	_, n, st, err := f.Inflate(comp, out, NoFlush)
	if err != nil || st != StreamEnd || !bytes.Equal(out[:n], data) {
		t.Fatalf("inflate: %v, %v", st, err)
	}
	if f.Format() != Gzip {
		t.Errorf("detected %v", f.Format())
	}
	got := f.Header()
	if got == nil {
		t.Fatal("no header")
	}
	if got.Name != hdr.Name || got.Comment != hdr.Comment || !got.ModTime.Equal(hdr.ModTime) ||
		got.OS != hdr.OS || !bytes.Equal(got.Extra, hdr.Extra) || !got.Text || !got.HeaderCRC {
		t.Errorf("parsed header %+v", got)
	}
	if got.ExtraFlags != 2 {
		t.Errorf("XFL = %d, want 2 for best compression", got.ExtraFlags)
	}
}

func TestGzipHeaderRejectsNonLatin1(t *testing.T) {
	d, err := NewDeflater(DeflateOptions{Format: Gzip, Level: 6, Header: &GzipHeader{Name: "\u4e16"}})
	if err != nil {
		t.Fatal(err)
	}
	_, _, _, err = d.Deflate(nil, make([]byte, 100), Finish)
	if KindOf(err) != BadArgument {
		t.Errorf("got %v, want BadArgument", err)
	}
}

func TestDeflateOptionsValidate(t *testing.T) {
	tests := []DeflateOptions{
		{Format: Auto},
		{Level: 10},
		{Level: -2},
		{Strategy: Strategy(9)},
		{WindowBits: 8},
		{WindowBits: 16},
		{MemLevel: 10},
	}
	for i, tt := range tests {
		if _, err := NewDeflater(tt); KindOf(err) != BadArgument {
			t.Errorf("case %d: err=%v, want BadArgument", i, err)
		}
	}
}

func TestDeflateAfterEnd(t *testing.T) {
	d, err := NewDeflater(DeflateOptions{Format: Zlib, Level: 6})
	if err != nil {
		t.Fatal(err)
	}
	out := make([]byte, 100)
	if _, _, st, err := d.Deflate([]byte("abc"), out, Finish); err != nil || st != StreamEnd {
		t.Fatalf("finish: %v, %v", st, err)
	}
	if _, _, st, err := d.Deflate(nil, out, Finish); err != nil || st != StreamEnd {
		t.Errorf("finish again: %v, %v", st, err)
	}
	if _, _, _, err := d.Deflate([]byte("x"), out, NoFlush); KindOf(err) != BadArgument {
		t.Errorf("input after end: %v", err)
	}
	if _, _, _, err := d.Deflate(nil, out, BlockFlush); KindOf(err) != BadArgument {
		t.Errorf("block flush: %v", err)
	}

	d.Reset()
	comp := drive(t, d, []byte("hello, hello"), 100, 100)
	got, err := decompress(InflateOptions{Format: Zlib}, comp)
	if err != nil || string(got) != "hello, hello" {
		t.Errorf("after Reset: %q, %v", got, err)
	}
}

func TestDeflateChecksum(t *testing.T) {
	data := textish(10000, 10)
	for _, format := range []Format{Zlib, Gzip} {
		d, err := NewDeflater(DeflateOptions{Format: format, Level: 6})
		if err != nil {
			t.Fatal(err)
		}
		comp := drive(t, d, data, 333, 1000)
		f, err := NewInflater(InflateOptions{Format: format})
		if err != nil {
			t.Fatal(err)
		}
		out := make([]byte, len(data))
		if _, _, st, err := f.Inflate(comp, out, NoFlush); err != nil || st != StreamEnd {
			t.Fatalf("%v: %v, %v", format, st, err)
		}
		if d.Checksum() != f.Checksum() {
			t.Errorf("%v: deflate checksum %08x, inflate %08x", format, d.Checksum(), f.Checksum())
		}
		if d.TotalIn() != int64(len(data)) || f.TotalOut() != int64(len(data)) {
			t.Errorf("%v: totals %d, %d", format, d.TotalIn(), f.TotalOut())
		}
		if d.TotalOut() != int64(len(comp)) || f.TotalIn() != int64(len(comp)) {
			t.Errorf("%v: compressed totals %d, %d, want %d", format, d.TotalOut(), f.TotalIn(), len(comp))
		}
	}
}

// blockTypes walks a raw deflate stream and returns the BTYPE of each block.
func blockTypes(t *testing.T, comp []byte) []int {
	t.Helper()
	f, err := NewInflater(InflateOptions{Format: Raw})
	if err != nil {
		t.Fatal(err)
	}
	out := make([]byte, 1<<16)
	var types []int
	pos := 0
	for {
		nIn, _, st, err := f.Inflate(comp[pos:], out, BlockFlush)
		pos += nIn
		if err != nil {
			t.Fatal(err)
		}
		switch st {
		case BlockEnd:
			value, n := f.Pending()
			v := uint64(value)
			for i := 0; i < 2 && pos+i < len(comp); i++ {
				v |= uint64(comp[pos+i]) << (n + uint(8*i))
			}
			types = append(types, int(v>>1&3))
		case StreamEnd:
			return types
		case NeedMoreInput:
			t.Fatal("stream truncated")
		}
	}
}

func TestFixedStrategyBlockTypes(t *testing.T) {
	data := textish(200000, 11)

	types := blockTypes(t, compress(t, DeflateOptions{Format: Raw, Level: 6, Strategy: Fixed}, data))
	if len(types) < 2 {
		t.Fatalf("got %d blocks, want several", len(types))
	}
	for i, bt := range types {
		if bt != 1 {
			t.Errorf("fixed strategy: block %d has type %d, want 1", i, bt)
		}
	}

	single := compress(t, DeflateOptions{Format: Raw, Level: 6, Strategy: Fixed}, data[:4000])
	if bt := single[0] >> 1 & 3; bt != 1 {
		t.Errorf("fixed strategy: single block has type %d, want 1", bt)
	}

	dynamic := false
	for _, bt := range blockTypes(t, compress(t, DeflateOptions{Format: Raw, Level: 6}, data)) {
		dynamic = dynamic || bt == 2
	}
	if !dynamic {
		t.Error("default strategy emitted no dynamic blocks")
	}
}
