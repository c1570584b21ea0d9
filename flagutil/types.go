// Package flagutil binds stream settings to a flag.FlagSet.
package flagutil

import (
	"errors"
	"flag"
	"strconv"
	"strings"

	"github.com/coreos/zflate/flate"
	"github.com/coreos/zflate/zstream"
)

var levelNames = map[string]int{
	"default": flate.DefaultCompression,
	"none":    flate.NoCompression,
	"speed":   flate.BestSpeed,
	"best":    flate.BestCompression,
}

// LevelFlag parses a compression level, either a number from -1 to 9 or
// one of "default", "none", "speed" and "best". This type implements the
// flag.Value interface.
type LevelFlag int

func (f *LevelFlag) Level() int {
	return int(*f)
}

func (f *LevelFlag) Set(v string) error {
	if l, ok := levelNames[strings.ToLower(v)]; ok {
		*f = LevelFlag(l)
		return nil
	}
	l, err := strconv.Atoi(v)
	if err != nil || l < flate.DefaultCompression || l > flate.BestCompression {
		return errors.New("not a compression level")
	}
	*f = LevelFlag(l)
	return nil
}

func (f *LevelFlag) String() string {
	return strconv.Itoa(int(*f))
}

// StrategyFlag parses a strategy name such as "filtered" or "rle".
type StrategyFlag flate.Strategy

func (f *StrategyFlag) Strategy() flate.Strategy {
	return flate.Strategy(*f)
}

func (f *StrategyFlag) Set(v string) error {
	s, err := zstream.ParseStrategy(v)
	if err != nil {
		return err
	}
	*f = StrategyFlag(s)
	return nil
}

func (f *StrategyFlag) String() string {
	return flate.Strategy(*f).String()
}

// FormatFlag parses one of "raw", "zlib", "gzip" and "auto".
type FormatFlag flate.Format

func (f *FormatFlag) Format() flate.Format {
	return flate.Format(*f)
}

func (f *FormatFlag) Set(v string) error {
	format, err := zstream.ParseFormat(v)
	if err != nil {
		return err
	}
	*f = FormatFlag(format)
	return nil
}

func (f *FormatFlag) String() string {
	return flate.Format(*f).String()
}

// ModeFlag parses "deflate" or "inflate".
type ModeFlag zstream.Mode

func (f *ModeFlag) Set(v string) error {
	m, err := zstream.ParseMode(v)
	if err != nil {
		return err
	}
	*f = ModeFlag(m)
	return nil
}

func (f *ModeFlag) String() string {
	return zstream.Mode(*f).String()
}

// RegisterConfigFlags defines flags on fs that write into cfg. The current
// values of cfg become the flag defaults.
func RegisterConfigFlags(fs *flag.FlagSet, cfg *zstream.Config) {
	fs.Var((*ModeFlag)(&cfg.Mode), "mode", "deflate or inflate")
	fs.Var((*FormatFlag)(&cfg.Format), "format", "raw, zlib, gzip or auto")
	fs.Var((*LevelFlag)(&cfg.Level), "level", "compression level, -1 to 9")
	fs.Var((*StrategyFlag)(&cfg.Strategy), "strategy", "default, filtered, huffman-only, rle or fixed")
	fs.IntVar(&cfg.WindowBits, "window-bits", cfg.WindowBits, "base two logarithm of the window size")
	fs.IntVar(&cfg.MemLevel, "mem-level", cfg.MemLevel, "memory level, 1 to 9")
	fs.Int64Var(&cfg.MaxOutput, "max-output", cfg.MaxOutput, "largest decompressed size accepted, 0 for no limit")
}
