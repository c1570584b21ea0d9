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
	"fmt"
	"io"
	"math/rand"
	"sync"
	"testing"

	kgzip "github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/coreos/zflate/flate"
	"github.com/coreos/zflate/zstream"
)

const testSpan = 64 << 10

var words = []string{"the", "quick", "brown", "fox", "jumps", "over", "lazy", "dog",
	"Tom", "Sawyer", "fence", "whitewash", "river", "island", "cave", "aunt", "Polly"}

func testText(n int, seed int64) []byte {
	rnd := rand.New(rand.NewSource(seed))
	var b bytes.Buffer
	for b.Len() < n {
		b.WriteString(words[rnd.Intn(len(words))])
		if rnd.Intn(12) == 0 {
			b.WriteString(".\n")
		} else {
			b.WriteByte(' ')
		}
		if rnd.Intn(50) == 0 {
			// a run of noise keeps some blocks from compressing well
			for i := 0; i < 64; i++ {
				b.WriteByte(byte(rnd.Intn(256)))
			}
		}
	}
	return b.Bytes()[:n]
}

type testStream struct {
	name   string
	format flate.Format // format to index with
	comp   []byte
}

func testStreams(t *testing.T, data []byte) []testStream {
	var streams []testStream
	for _, level := range []int{0, 1, 6, 9} {
		for _, format := range []flate.Format{flate.Raw, flate.Zlib, flate.Gzip} {
			comp, err := zstream.CompressConfig(data, zstream.Config{Mode: zstream.Deflate, Format: format, Level: level})
			if err != nil {
				t.Fatalf("compress %v level %d: %v", format, level, err)
			}
			idxFormat := format
			if format != flate.Raw {
				idxFormat = flate.Auto
			}
			streams = append(streams, testStream{name: fmt.Sprintf("%v level %d", format, level), format: idxFormat, comp: comp})
		}
	}

	var buf bytes.Buffer
	w, err := kgzip.NewWriterLevel(&buf, kgzip.BestCompression)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return append(streams, testStream{name: "klauspost gzip", format: flate.Auto, comp: buf.Bytes()})
}

func TestExtract(t *testing.T) {
	data := testText(600000, 1)
	for _, s := range testStreams(t, data) {
		idx, err := BuildIndexFormat(bytes.NewReader(s.comp), s.format, testSpan)
		if err != nil {
			t.Errorf("%s: BuildIndex: %v", s.name, err)
			continue
		}
		if idx.Size != int64(len(data)) {
			t.Errorf("%s: Size = %d, want %d", s.name, idx.Size, len(data))
		}
		if len(idx.Points) == 0 || idx.Points[0].Out != 0 {
			t.Errorf("%s: first access point missing", s.name)
			continue
		}
		for i := 1; i < len(idx.Points); i++ {
			if idx.Points[i].Out-idx.Points[i-1].Out < testSpan {
				t.Errorf("%s: points %d and %d closer than span", s.name, i-1, i)
			}
		}

		for _, off := range []int64{0, 1, testSpan - 1, testSpan, 123457, 300000, int64(len(data)) - 4000} {
			p := make([]byte, 4000)
			n, err := idx.Extract(bytes.NewReader(s.comp), off, p)
			if err != nil || n != len(p) {
				t.Errorf("%s: Extract(%d) = %d, %v", s.name, off, n, err)
				continue
			}
			if !bytes.Equal(p, data[off:off+int64(len(p))]) {
				t.Errorf("%s: Extract(%d) returned wrong data", s.name, off)
			}
		}

		p := make([]byte, 100)
		n, err := idx.Extract(bytes.NewReader(s.comp), int64(len(data))-10, p)
		if n != 10 || err != io.EOF {
			t.Errorf("%s: Extract near end = %d, %v, want 10, EOF", s.name, n, err)
		}
		if n, err := idx.Extract(bytes.NewReader(s.comp), int64(len(data)), p); n != 0 || err != io.EOF {
			t.Errorf("%s: Extract at end = %d, %v, want 0, EOF", s.name, n, err)
		}
	}
}

func TestIndexPoints(t *testing.T) {
	data := testText(600000, 2)
	comp, err := zstream.Compress(data, 6)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := BuildIndex(bytes.NewReader(comp), testSpan)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Format != flate.Zlib {
		t.Errorf("Format = %v, want zlib", idx.Format)
	}
	if len(idx.Points) < 3 {
		t.Fatalf("got %d access points, want several", len(idx.Points))
	}
	for i, pt := range idx.Points {
		want := pt.Out
		if want > 32<<10 {
			want = 32 << 10
		}
		if int64(len(pt.Window)) != want {
			t.Errorf("point %d: window is %d bytes, want %d", i, len(pt.Window), want)
		}
		if !bytes.Equal(pt.Window, data[pt.Out-int64(len(pt.Window)):pt.Out]) {
			t.Errorf("point %d: window does not match the preceding output", i)
		}
		if pt.Bits > 7 {
			t.Errorf("point %d: %d leftover bits", i, pt.Bits)
		}
	}
}

func TestReaderAt(t *testing.T) {
	data := testText(500000, 3)
	comp, err := zstream.Compress(data, 9)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := BuildIndex(bytes.NewReader(comp), testSpan)
	if err != nil {
		t.Fatal(err)
	}
	ra := NewReaderAt(bytes.NewReader(comp), idx, 4)
	if ra.Size() != int64(len(data)) {
		t.Fatalf("Size = %d, want %d", ra.Size(), len(data))
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for i := 0; i < 40; i++ {
				off := rnd.Int63n(int64(len(data)))
				p := make([]byte, rnd.Intn(3*testSpan)+1)
				n, err := ra.ReadAt(p, off)
				want := data[off:]
				if len(want) > len(p) {
					want = want[:len(p)]
				}
				if n != len(want) || (n < len(p) && err != io.EOF) || (n == len(p) && err != nil) {
					t.Errorf("ReadAt(%d, %d) = %d, %v", off, len(p), n, err)
					return
				}
				if !bytes.Equal(p[:n], want) {
					t.Errorf("ReadAt(%d, %d) returned wrong data", off, len(p))
					return
				}
			}
		}(int64(g))
	}
	wg.Wait()

	if _, err := ra.ReadAt(make([]byte, 1), -1); err == nil {
		t.Error("ReadAt with negative offset succeeded")
	}
}

func TestIndexEncoding(t *testing.T) {
	data := testText(300000, 4)
	comp, err := zstream.CompressConfig(data, zstream.Config{Mode: zstream.Deflate, Format: flate.Gzip, Level: 6})
	if err != nil {
		t.Fatal(err)
	}
	idx, err := BuildIndex(bytes.NewReader(comp), testSpan)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := idx.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	var got Index
	if err := got.UnmarshalBinary(enc); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got.Format != idx.Format || got.Span != idx.Span || got.Size != idx.Size || len(got.Points) != len(idx.Points) {
		t.Fatalf("decoded index %v/%d/%d/%d, want %v/%d/%d/%d", got.Format, got.Span, got.Size, len(got.Points),
			idx.Format, idx.Span, idx.Size, len(idx.Points))
	}
	for i := range got.Points {
		a, b := got.Points[i], idx.Points[i]
		if a.In != b.In || a.Out != b.Out || a.Bits != b.Bits || a.Value != b.Value || !bytes.Equal(a.Window, b.Window) {
			t.Errorf("point %d: got %+v, want %+v", i, a, b)
		}
	}
	p := make([]byte, 1000)
	if _, err := got.Extract(bytes.NewReader(comp), 200000, p); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p, data[200000:201000]) {
		t.Error("decoded index extracted wrong data")
	}

	for _, bad := range [][]byte{
		nil,
		enc[:len(enc)-1],
		append([]byte("ZRAX"), enc[4:]...),
		func() []byte { b := append([]byte{}, enc...); b[len(b)/2] ^= 1; return b }(),
	} {
		var idx Index
		if err := idx.UnmarshalBinary(bad); err == nil {
			t.Errorf("UnmarshalBinary accepted %d corrupt bytes", len(bad))
		}
	}
}

func TestBuildIndexErrors(t *testing.T) {
	data := testText(200000, 5)
	comp, err := zstream.Compress(data, 6)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := BuildIndex(bytes.NewReader(comp[:len(comp)/2]), testSpan); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated stream: got %v, want unexpected EOF", err)
	}
	if _, err := BuildIndex(bytes.NewReader([]byte("not compressed at all")), testSpan); flate.KindOf(err) != flate.BadHeader {
		t.Errorf("garbage: got %v, want a header error", err)
	}
}
