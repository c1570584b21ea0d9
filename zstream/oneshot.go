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

// Compress returns b compressed as a zlib stream at the given level.
func Compress(b []byte, level int) ([]byte, error) {
	cfg := DefaultConfig(Deflate)
	cfg.Level = level
	return CompressConfig(b, cfg)
}

// CompressConfig returns b compressed as described by cfg. cfg.Mode is
// ignored.
func CompressConfig(b []byte, cfg Config) ([]byte, error) {
	cfg.Mode = Deflate
	s, err := Init(cfg)
	if err != nil {
		return nil, err
	}
	defer s.End()

	out := make([]byte, s.Bound(len(b)))
	n := 0
	for {
		if n == len(out) {
			out = append(out, make([]byte, len(out)/2+64)...)
		}
		r, err := s.Step(b, out[n:], flate.Finish)
		if err != nil {
			return nil, err
		}
		b = b[r.Consumed:]
		n += r.Produced
		if r.Status == flate.StreamEnd {
			return out[:n], nil
		}
	}
}

// Decompress decodes a zlib or gzip stream, detecting which from its
// header. Concatenated gzip members are decoded one after the other.
func Decompress(b []byte) ([]byte, error) {
	return DecompressConfig(b, DefaultConfig(Inflate))
}

// DecompressConfig decodes b as described by cfg. cfg.Mode is ignored.
// Output beyond cfg.MaxOutput fails with OutOfMemory. Input that ends
// before the stream does fails with io.ErrUnexpectedEOF. Data after the
// end of the stream is ignored, unless it is another gzip member.
func DecompressConfig(b []byte, cfg Config) ([]byte, error) {
	cfg.Mode = Inflate
	s, err := Init(cfg)
	if err != nil {
		return nil, err
	}
	defer s.End()

	size := int64(4*len(b) + 64)
	if cfg.MaxOutput > 0 && size > cfg.MaxOutput {
		size = cfg.MaxOutput
	}
	out := make([]byte, size)
	n := 0
	for {
		if n == len(out) && (cfg.MaxOutput == 0 || int64(n) < cfg.MaxOutput) {
			grow := int64(len(out))
			if cfg.MaxOutput > 0 && int64(n)+grow > cfg.MaxOutput {
				grow = cfg.MaxOutput - int64(n)
			}
			out = append(out, make([]byte, grow)...)
		}
		r, err := s.Step(b, out[n:], flate.NoFlush)
		b = b[r.Consumed:]
		n += r.Produced
		if err != nil {
			return nil, err
		}
		switch r.Status {
		case flate.StreamEnd:
			if s.Format() == flate.Gzip && len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b {
				if err := s.Reset(); err != nil {
					return nil, err
				}
				continue
			}
			return out[:n], nil
		case flate.NeedMoreInput:
			return nil, errors.Wrap(io.ErrUnexpectedEOF, "zstream: compressed data truncated")
		case flate.NeedDictionary:
			return nil, &flate.Error{Kind: flate.BadArgument, Offset: s.TotalIn(), Msg: "stream needs a dictionary"}
		case flate.NeedMoreOutput:
			if cfg.MaxOutput > 0 && int64(n) >= cfg.MaxOutput {
				plog.Warningf("decompressed output exceeds %d bytes", cfg.MaxOutput)
				return nil, &flate.Error{Kind: flate.OutOfMemory, Offset: s.TotalIn(), Msg: "output exceeds limit"}
			}
		}
	}
}
