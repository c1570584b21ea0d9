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

// Package zstream wraps the flate engines in a single stream handle, the
// way zlib's z_stream does: one Config picks compression or decompression,
// Step drives the engine, and End releases it. It also provides one-shot
// helpers and io.Reader/io.Writer adapters.
package zstream

import (
	"strings"

	"github.com/coreos/pkg/capnslog"

	"github.com/coreos/zflate/flate"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/zflate", "zstream")

// Mode selects the engine a Stream drives.
type Mode int

const (
	Deflate Mode = iota
	Inflate
)

func (m Mode) String() string {
	switch m {
	case Deflate:
		return "deflate"
	case Inflate:
		return "inflate"
	}
	return "unknown"
}

// ParseMode accepts "deflate"/"compress" and "inflate"/"decompress".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "deflate", "compress":
		return Deflate, nil
	case "inflate", "decompress":
		return Inflate, nil
	}
	return 0, &flate.Error{Kind: flate.BadArgument, Msg: "unknown mode " + s}
}

// ParseFormat accepts "raw", "zlib", "gzip" and "auto".
func ParseFormat(s string) (flate.Format, error) {
	for _, f := range []flate.Format{flate.Raw, flate.Zlib, flate.Gzip, flate.Auto} {
		if strings.EqualFold(s, f.String()) {
			return f, nil
		}
	}
	return 0, &flate.Error{Kind: flate.BadArgument, Msg: "unknown format " + s}
}

// ParseStrategy accepts the names printed by flate.Strategy.String.
func ParseStrategy(s string) (flate.Strategy, error) {
	for _, st := range []flate.Strategy{flate.DefaultStrategy, flate.Filtered, flate.HuffmanOnly, flate.RLE, flate.Fixed} {
		if strings.EqualFold(s, st.String()) {
			return st, nil
		}
	}
	return 0, &flate.Error{Kind: flate.BadArgument, Msg: "unknown strategy " + s}
}

// Config describes a stream.
type Config struct {
	Mode   Mode
	Format flate.Format

	// Compression only.
	Level    int
	Strategy flate.Strategy
	MemLevel int
	Header   *flate.GzipHeader

	// WindowBits is the window size when compressing and the largest
	// window accepted from a zlib header when decompressing.
	WindowBits int

	// Dictionary is the preset dictionary. When decompressing a zlib
	// stream it answers the header's request for one; for raw streams
	// it is loaded up front.
	Dictionary []byte

	// MaxOutput bounds the output of the one-shot and io.Reader
	// decompressors. Zero means no limit.
	MaxOutput int64
}

// DefaultConfig returns the zlib defaults: zlib framing, level 6, a 32 KiB
// window and memory level 8.
func DefaultConfig(mode Mode) Config {
	c := Config{
		Mode:       mode,
		Format:     flate.Zlib,
		Level:      flate.DefaultCompression,
		WindowBits: flate.DefaultWindowBits,
		MemLevel:   flate.DefaultMemLevel,
	}
	if mode == Inflate {
		c.Format = flate.Auto
	}
	return c
}

// Validate checks the fields that apply to c.Mode.
func (c *Config) Validate() error {
	bad := func(msg string) error {
		return &flate.Error{Kind: flate.BadArgument, Msg: msg}
	}
	switch c.Mode {
	case Deflate:
		if c.Format == flate.Auto {
			return bad("auto format is only valid when decompressing")
		}
		if c.Level != flate.DefaultCompression && (c.Level < flate.NoCompression || c.Level > flate.BestCompression) {
			return bad("compression level out of range")
		}
		if c.Strategy < flate.DefaultStrategy || c.Strategy > flate.Fixed {
			return bad("unknown strategy")
		}
		if c.MemLevel != 0 && (c.MemLevel < flate.MinMemLevel || c.MemLevel > flate.MaxMemLevel) {
			return bad("memory level out of range")
		}
		if c.Format == flate.Gzip && c.Dictionary != nil {
			return bad("gzip streams do not support a dictionary")
		}
	case Inflate:
	default:
		return bad("unknown mode")
	}
	if c.Format < flate.Raw || c.Format > flate.Auto {
		return bad("unknown format")
	}
	if c.WindowBits != 0 && (c.WindowBits < flate.MinWindowBits || c.WindowBits > flate.MaxWindowBits) {
		return bad("window bits out of range")
	}
	if c.MaxOutput < 0 {
		return bad("negative output limit")
	}
	return nil
}
