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

// Package zran provides random access into zlib, gzip and raw deflate
// streams, after zran.c by Mark Adler. BuildIndex decodes the stream once
// and records an access point at a block boundary about every span bytes of
// uncompressed output. Each access point holds enough decoder state (the
// compressed offset, the bits left over in the last byte, and the preceding
// 32 KiB of output) to resume decoding there with a fresh raw inflater, so a
// read only has to decompress, on average, span/2 bytes before reaching the
// requested data.
//
// Only the first member of a multi-member gzip file is indexed.
package zran

import (
	"io"
	"math"
	"sort"

	"github.com/coreos/pkg/capnslog"
	"github.com/pkg/errors"

	"github.com/coreos/zflate/flate"
)

const (
	// DefaultSpan is the desired distance between access points in
	// uncompressed output.
	DefaultSpan = 1 << 20
	chunk       = 1 << 14 // compressed input buffer size
)

var plog = capnslog.NewPackageLogger("github.com/coreos/zflate", "zran")

// Point is a place in the stream where decoding can resume.
type Point struct {
	In     int64  // offset of the first unread compressed byte
	Out    int64  // uncompressed offset
	Bits   uint   // bits of the byte before In not yet consumed
	Value  uint32 // those bits, low bit first
	Window []byte // up to 32 KiB of output preceding Out
}

// Index stores the access points of one compressed stream. Span sets the
// balance between the speed of random access and the memory the index
// needs.
type Index struct {
	Format flate.Format // format the stream was read as
	Span   int64
	Size   int64 // total uncompressed length
	Points []Point
}

// BuildIndex reads a zlib or gzip stream from r and indexes it.
func BuildIndex(r io.Reader, span int64) (*Index, error) {
	return BuildIndexFormat(r, flate.Auto, span)
}

// BuildIndexFormat is BuildIndex for a stream of the given format, which
// may be Raw.
func BuildIndexFormat(r io.Reader, format flate.Format, span int64) (*Index, error) {
	if span <= 0 {
		span = DefaultSpan
	}
	f, err := flate.NewInflater(flate.InflateOptions{Format: format})
	if err != nil {
		return nil, err
	}

	idx := &Index{Span: span}
	in := make([]byte, chunk)
	out := make([]byte, 32<<10)
	var buf []byte
	eof := false
	for {
		if len(buf) == 0 && !eof {
			n, err := r.Read(in)
			buf = in[:n]
			if err == io.EOF {
				eof = true
			} else if err != nil {
				return nil, errors.Wrap(err, "zran: reading compressed data")
			}
		}

		// The output is only needed for the window the inflater keeps.
		nIn, _, st, err := f.Inflate(buf, out, flate.BlockFlush)
		buf = buf[nIn:]
		if err != nil {
			return nil, errors.Wrap(err, "zran: building index")
		}

		switch st {
		case flate.BlockEnd:
			if len(idx.Points) == 0 || f.TotalOut()-idx.Points[len(idx.Points)-1].Out >= span {
				idx.addPoint(f)
			}
		case flate.StreamEnd:
			idx.Format = f.Format()
			idx.Size = f.TotalOut()
			plog.Debugf("indexed %d bytes with %d access points", idx.Size, len(idx.Points))
			return idx, nil
		case flate.NeedMoreInput:
			if eof && len(buf) == 0 {
				return nil, errors.Wrap(io.ErrUnexpectedEOF, "zran: building index")
			}
		}
	}
}

func (idx *Index) addPoint(f *flate.Inflater) {
	value, bits := f.Pending()
	idx.Points = append(idx.Points, Point{
		In:     f.TotalIn(),
		Out:    f.TotalOut(),
		Bits:   bits,
		Value:  value,
		Window: f.Window(),
	})
}

// find returns the index of the last access point at or before off.
func (idx *Index) find(off int64) int {
	return sort.Search(len(idx.Points), func(i int) bool {
		return idx.Points[i].Out > off
	}) - 1
}

// resume returns a raw inflater in the state recorded at pt.
func (pt *Point) resume() (*flate.Inflater, error) {
	f, err := flate.NewInflater(flate.InflateOptions{Format: flate.Raw})
	if err != nil {
		return nil, err
	}
	if pt.Bits > 0 {
		if err := f.Prime(pt.Bits, pt.Value); err != nil {
			return nil, err
		}
	}
	if len(pt.Window) > 0 {
		if err := f.SetDictionary(pt.Window); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Extract reads len(p) bytes starting at uncompressed offset off of the
// stream in r into p. It returns io.EOF if the data ends before p is full.
func (idx *Index) Extract(r io.ReaderAt, off int64, p []byte) (int, error) {
	if off < 0 {
		return 0, errors.New("zran: negative offset")
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= idx.Size {
		return 0, io.EOF
	}
	i := idx.find(off)
	if i < 0 {
		return 0, errors.New("zran: index has no access points")
	}
	pt := &idx.Points[i]
	f, err := pt.resume()
	if err != nil {
		return 0, err
	}

	src := io.NewSectionReader(r, pt.In, math.MaxInt64-pt.In)
	in := make([]byte, chunk)
	var scratch []byte
	var buf []byte
	eof := false
	skip := off - pt.Out
	if skip > 0 {
		scratch = make([]byte, 32<<10)
	}
	n := 0
	for n < len(p) {
		if len(buf) == 0 && !eof {
			m, err := src.Read(in)
			buf = in[:m]
			if err == io.EOF {
				eof = true
			} else if err != nil {
				return n, errors.Wrap(err, "zran: reading compressed data")
			}
		}

		out := p[n:]
		if skip > 0 {
			out = scratch
			if int64(len(out)) > skip {
				out = out[:skip]
			}
		}
		nIn, nOut, st, err := f.Inflate(buf, out, flate.NoFlush)
		buf = buf[nIn:]
		if err != nil {
			return n, errors.Wrapf(err, "zran: extracting at offset %d", off)
		}
		if skip > 0 {
			skip -= int64(nOut)
		} else {
			n += nOut
		}

		switch st {
		case flate.StreamEnd:
			if n < len(p) {
				return n, io.EOF
			}
		case flate.NeedMoreInput:
			if eof && len(buf) == 0 {
				return n, io.ErrUnexpectedEOF
			}
		}
	}
	return n, nil
}
