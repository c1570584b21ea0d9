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

package zstream

import (
	"io"

	"github.com/pkg/errors"

	"github.com/coreos/zflate/flate"
)

// A Reader is an io.Reader that decompresses the data read from an
// underlying reader.
//
// A gzip file can be a concatenation of gzip members, each with its own
// header. By default Reads return the concatenation of the uncompressed
// data of each; only the first header is kept. Data decompressed by Read
// is only known to be good once Read returns io.EOF, which is when the
// trailer checksum and length have been verified.
type Reader struct {
	s           *Stream
	r           io.Reader
	buf         []byte
	in          []byte // unconsumed part of buf
	eof         bool   // r is exhausted
	err         error
	header      *flate.GzipHeader
	multistream bool
	total       int64
	limit       int64
}

// NewReader returns a Reader decompressing r as described by cfg.
// cfg.Mode is ignored.
func NewReader(r io.Reader, cfg Config) (*Reader, error) {
	cfg.Mode = Inflate
	s, err := Init(cfg)
	if err != nil {
		return nil, err
	}
	return &Reader{
		s:           s,
		r:           r,
		buf:         make([]byte, bufSize),
		multistream: true,
		limit:       cfg.MaxOutput,
	}, nil
}

// Multistream controls whether concatenated gzip members are read as one
// stream (the default). With it off Read returns io.EOF at the end of the
// first member, and bytes after it stay unread in the Reader's buffer.
func (z *Reader) Multistream(ok bool) { z.multistream = ok }

// Header returns the header of the first gzip member, once it has been
// read.
func (z *Reader) Header() *flate.GzipHeader {
	if z.header == nil {
		z.header = z.s.Header()
	}
	return z.header
}

func (z *Reader) fill() error {
	if len(z.in) > 0 || z.eof {
		return nil
	}
	n, err := z.r.Read(z.buf)
	z.in = z.buf[:n]
	if err == io.EOF {
		z.eof = true
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "zstream: reading compressed data")
	}
	return nil
}

// nextMember reports whether more input follows a finished gzip member,
// and if so readies the stream for it.
func (z *Reader) nextMember() (bool, error) {
	for len(z.in) == 0 && !z.eof {
		if err := z.fill(); err != nil {
			return false, err
		}
	}
	if len(z.in) == 0 {
		return false, nil
	}
	z.Header()
	return true, z.s.Reset()
}

// Read decompresses into p.
func (z *Reader) Read(p []byte) (int, error) {
	if z.err != nil {
		return 0, z.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if err := z.fill(); err != nil {
			z.err = err
			return 0, err
		}
		out := p
		if z.limit > 0 && int64(len(out)) > z.limit-z.total {
			out = out[:z.limit-z.total]
		}
		r, err := z.s.Step(z.in, out, flate.NoFlush)
		z.in = z.in[r.Consumed:]
		z.total += int64(r.Produced)
		if err != nil {
			plog.Warningf("rejecting compressed input: %v", err)
			z.err = err
			return r.Produced, err
		}

		switch r.Status {
		case flate.StreamEnd:
			if z.multistream && z.s.Format() == flate.Gzip {
				more, err := z.nextMember()
				if err != nil {
					z.err = err
					return r.Produced, err
				}
				if more {
					if r.Produced > 0 {
						return r.Produced, nil
					}
					continue
				}
			}
			z.Header()
			z.err = io.EOF
			if r.Produced > 0 {
				return r.Produced, nil
			}
			return 0, io.EOF
		case flate.NeedMoreInput:
			if z.eof && len(z.in) == 0 {
				z.err = io.ErrUnexpectedEOF
				return r.Produced, z.err
			}
		case flate.NeedDictionary:
			z.err = &flate.Error{Kind: flate.BadArgument, Offset: z.s.TotalIn(), Msg: "stream needs a dictionary"}
			return r.Produced, z.err
		case flate.NeedMoreOutput:
			if len(out) == 0 {
				z.err = &flate.Error{Kind: flate.OutOfMemory, Offset: z.s.TotalIn(), Msg: "output exceeds limit"}
				plog.Warningf("decompressed output exceeds %d bytes", z.limit)
				return 0, z.err
			}
		}
		if r.Produced > 0 {
			return r.Produced, nil
		}
	}
}

// Close releases the decoder. It does not close the underlying reader.
func (z *Reader) Close() error {
	if z.s.ended {
		return nil
	}
	return z.s.End()
}

// Reset discards the Reader's state and makes it read a new stream from r.
func (z *Reader) Reset(r io.Reader) error {
	z.r = r
	z.in = nil
	z.eof = false
	z.err = nil
	z.header = nil
	z.total = 0
	return z.s.Reset()
}
