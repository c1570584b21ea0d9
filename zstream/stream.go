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
	"github.com/coreos/zflate/flate"
)

// Result reports what one Step did.
type Result struct {
	Consumed int
	Produced int
	Status   flate.Status
}

// A Stream is a compression or decompression handle. Exactly one of its
// engines is populated, chosen by Config.Mode. A Stream is not safe for
// concurrent use.
type Stream struct {
	cfg   Config
	def   *flate.Deflater
	inf   *flate.Inflater
	err   error
	ended bool
}

func errEnded() error {
	return &flate.Error{Kind: flate.BadArgument, Msg: "stream already ended"}
}

// Init validates cfg and returns a Stream ready for its first Step.
func Init(cfg Config) (*Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Stream{cfg: cfg}
	var err error
	switch cfg.Mode {
	case Deflate:
		s.def, err = flate.NewDeflater(flate.DeflateOptions{
			Format:     cfg.Format,
			Level:      cfg.Level,
			Strategy:   cfg.Strategy,
			WindowBits: cfg.WindowBits,
			MemLevel:   cfg.MemLevel,
			Header:     cfg.Header,
		})
	case Inflate:
		s.inf, err = flate.NewInflater(flate.InflateOptions{
			Format:     cfg.Format,
			WindowBits: cfg.WindowBits,
		})
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadDictionary(); err != nil {
		return nil, err
	}
	plog.Debugf("init %v stream: format=%v level=%d", cfg.Mode, cfg.Format, cfg.Level)
	return s, nil
}

// loadDictionary sets the configured dictionary where it is known up
// front. A zlib decoder gets it later, when the header asks.
func (s *Stream) loadDictionary() error {
	if s.cfg.Dictionary == nil {
		return nil
	}
	if s.def != nil {
		return s.def.SetDictionary(s.cfg.Dictionary)
	}
	if s.cfg.Format == flate.Raw {
		return s.inf.SetDictionary(s.cfg.Dictionary)
	}
	return nil
}

// Step runs the engine over in and out. See flate.Deflater.Deflate and
// flate.Inflater.Inflate for the meaning of flush and of the status. A
// decoder configured with a Dictionary answers NeedDictionary itself.
//
// After a fatal error every Step returns that error until Reset. After End
// every call fails with BadArgument.
func (s *Stream) Step(in, out []byte, flush flate.Flush) (Result, error) {
	if s.ended {
		return Result{}, errEnded()
	}
	if s.err != nil {
		return Result{}, s.err
	}

	var r Result
	var err error
	if s.def != nil {
		r.Consumed, r.Produced, r.Status, err = s.def.Deflate(in, out, flush)
	} else {
		r.Consumed, r.Produced, r.Status, err = s.inf.Inflate(in, out, flush)
		if err == nil && r.Status == flate.NeedDictionary && s.cfg.Dictionary != nil {
			if err = s.inf.SetDictionary(s.cfg.Dictionary); err == nil {
				var more Result
				more.Consumed, more.Produced, more.Status, err = s.inf.Inflate(in[r.Consumed:], out[r.Produced:], flush)
				r.Consumed += more.Consumed
				r.Produced += more.Produced
				r.Status = more.Status
			} else {
				s.err = err
			}
		}
	}
	if err != nil && flate.KindOf(err) != flate.BadArgument {
		s.err = err
	}
	return r, err
}

// SetDictionary hands dict to the engine; see flate.Deflater.SetDictionary
// and flate.Inflater.SetDictionary.
func (s *Stream) SetDictionary(dict []byte) error {
	switch {
	case s.ended:
		return errEnded()
	case s.def != nil:
		return s.def.SetDictionary(dict)
	}
	return s.inf.SetDictionary(dict)
}

// Reset starts a new stream with the same Config, clearing any error.
func (s *Stream) Reset() error {
	if s.ended {
		return errEnded()
	}
	s.err = nil
	if s.def != nil {
		s.def.Reset()
	} else {
		s.inf.Reset()
	}
	return s.loadDictionary()
}

// End releases the engine. Every later call fails with BadArgument.
func (s *Stream) End() error {
	if s.ended {
		return errEnded()
	}
	s.ended = true
	s.def, s.inf = nil, nil
	return nil
}

// Mode is the direction the stream was configured with.
func (s *Stream) Mode() Mode { return s.cfg.Mode }

// TotalIn is the number of bytes consumed since Init or Reset.
func (s *Stream) TotalIn() int64 {
	switch {
	case s.def != nil:
		return s.def.TotalIn()
	case s.inf != nil:
		return s.inf.TotalIn()
	}
	return 0
}

// TotalOut is the number of bytes produced since Init or Reset.
func (s *Stream) TotalOut() int64 {
	switch {
	case s.def != nil:
		return s.def.TotalOut()
	case s.inf != nil:
		return s.inf.TotalOut()
	}
	return 0
}

// Checksum is the running Adler-32 or CRC-32 of the uncompressed data.
func (s *Stream) Checksum() uint32 {
	switch {
	case s.def != nil:
		return s.def.Checksum()
	case s.inf != nil:
		return s.inf.Checksum()
	}
	return 0
}

// Header returns the gzip header parsed by a decoder, or nil.
func (s *Stream) Header() *flate.GzipHeader {
	if s.inf == nil {
		return nil
	}
	return s.inf.Header()
}

// Format is the framing in use. For an Auto decoder it is the detected one
// once the header has been read.
func (s *Stream) Format() flate.Format {
	if s.inf != nil {
		return s.inf.Format()
	}
	return s.cfg.Format
}

// Bound is the worst case compressed size of n bytes. It is only
// meaningful for a compressing stream.
func (s *Stream) Bound(n int) int {
	if s.def == nil {
		return 0
	}
	return s.def.Bound(n)
}

// Err returns the fatal error that stopped the stream, if any.
func (s *Stream) Err() error { return s.err }

// Msg describes the fatal error, or is empty.
func (s *Stream) Msg() string {
	if s.err == nil {
		return ""
	}
	if e, ok := s.err.(*flate.Error); ok {
		return e.Msg
	}
	return s.err.Error()
}
