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

const bufSize = 32 << 10

// A Writer compresses everything written to it into an underlying
// io.Writer. Bytes only reach the underlying writer once the engine has
// produced them; call Flush to force everything written so far out, and
// Close to finish the stream.
type Writer struct {
	s      *Stream
	w      io.Writer
	buf    []byte
	err    error
	closed bool
}

// NewWriter returns a Writer compressing to w as described by cfg.
// cfg.Mode is ignored.
func NewWriter(w io.Writer, cfg Config) (*Writer, error) {
	cfg.Mode = Deflate
	s, err := Init(cfg)
	if err != nil {
		return nil, err
	}
	return &Writer{s: s, w: w, buf: make([]byte, bufSize)}, nil
}

// step runs the engine until want is reached, writing out what it
// produces, and returns the input consumed.
func (z *Writer) step(p []byte, flush flate.Flush, want flate.Status) (int, error) {
	consumed := 0
	for {
		r, err := z.s.Step(p[consumed:], z.buf, flush)
		consumed += r.Consumed
		if err != nil {
			plog.Warningf("compression failed: %v", err)
			return consumed, err
		}
		if r.Produced > 0 {
			if _, err := z.w.Write(z.buf[:r.Produced]); err != nil {
				return consumed, errors.Wrap(err, "zstream: writing compressed data")
			}
		}
		if r.Status == want {
			return consumed, nil
		}
	}
}

// Write compresses p.
func (z *Writer) Write(p []byte) (int, error) {
	if z.err != nil {
		return 0, z.err
	}
	if z.closed {
		return 0, errors.New("zstream: write to closed Writer")
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := z.step(p, flate.NoFlush, flate.NeedMoreInput)
	z.err = err
	return n, err
}

// Flush writes out everything written so far, ending the current block
// with a sync flush point.
func (z *Writer) Flush() error {
	if z.err != nil {
		return z.err
	}
	if z.closed {
		return nil
	}
	_, z.err = z.step(nil, flate.SyncFlush, flate.StatusOK)
	return z.err
}

// Close finishes the stream. It does not close the underlying writer.
func (z *Writer) Close() error {
	if z.err != nil {
		return z.err
	}
	if z.closed {
		return nil
	}
	z.closed = true
	_, z.err = z.step(nil, flate.Finish, flate.StreamEnd)
	return z.err
}

// Reset discards the Writer's state and makes it write a new stream to w,
// with the same Config.
func (z *Writer) Reset(w io.Writer) error {
	z.w = w
	z.err = nil
	z.closed = false
	return z.s.Reset()
}
