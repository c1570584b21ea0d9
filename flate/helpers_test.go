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
	"errors"
	"io"
	"math/rand"
	"testing"
)

// compressChunked drives a Deflater with input and output buffers of at
// most inChunk and outChunk bytes, finishing the stream with the last
// input chunk.
func compressChunked(t testing.TB, opts DeflateOptions, data []byte, inChunk, outChunk int) []byte {
	t.Helper()
	d, err := NewDeflater(opts)
	if err != nil {
		t.Fatalf("NewDeflater(%+v): %v", opts, err)
	}
	return drive(t, d, data, inChunk, outChunk)
}

func drive(t testing.TB, d *Deflater, data []byte, inChunk, outChunk int) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, outChunk)
	for i := 0; ; i++ {
		if i > 50000000 {
			t.Fatalf("deflate made no progress")
		}
		in := data
		if len(in) > inChunk {
			in = in[:inChunk]
		}
		flush := NoFlush
		if len(in) == len(data) {
			flush = Finish
		}
		nIn, nOut, st, err := d.Deflate(in, buf, flush)
		if err != nil {
			t.Fatalf("Deflate: %v", err)
		}
		out = append(out, buf[:nOut]...)
		data = data[nIn:]
		if st == StreamEnd {
			if len(data) != 0 {
				t.Fatalf("stream ended with %d bytes unconsumed", len(data))
			}
			return out
		}
	}
}

func compress(t testing.TB, opts DeflateOptions, data []byte) []byte {
	t.Helper()
	return compressChunked(t, opts, data, len(data)+1, 1<<16)
}

// decompressChunked drives an Inflater the same way. Running out of input
// before the end of the stream is reported as io.ErrUnexpectedEOF.
func decompressChunked(opts InflateOptions, data []byte, inChunk, outChunk int) ([]byte, error) {
	f, err := NewInflater(opts)
	if err != nil {
		return nil, err
	}
	var out []byte
	buf := make([]byte, outChunk)
	for {
		in := data
		if len(in) > inChunk {
			in = in[:inChunk]
		}
		nIn, nOut, st, err := f.Inflate(in, buf, NoFlush)
		out = append(out, buf[:nOut]...)
		data = data[nIn:]
		if err != nil {
			return out, err
		}
		switch st {
		case StreamEnd:
			return out, nil
		case NeedMoreInput:
			if len(data) == 0 {
				return out, io.ErrUnexpectedEOF
			}
		case NeedDictionary:
			return out, errNeedDict
		}
	}
}

var errNeedDict = errors.New("need dictionary")

func decompress(opts InflateOptions, data []byte) ([]byte, error) {
	return decompressChunked(opts, data, len(data)+1, 1<<16)
}

func randomBytes(n int, seed int64) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

// textish returns compressible data: words drawn from a small vocabulary.
func textish(n int, seed int64) []byte {
	words := []string{"the ", "quick ", "brown ", "fox ", "jumps ", "over ", "lazy ", "dog ", "\n", "zlib ", "deflate "}
	r := rand.New(rand.NewSource(seed))
	var buf bytes.Buffer
	for buf.Len() < n {
		buf.WriteString(words[r.Intn(len(words))])
	}
	return buf.Bytes()[:n]
}
