package flagutil

import (
	"flag"
	"io"
	"testing"

	"github.com/coreos/zflate/flate"
	"github.com/coreos/zflate/zstream"
)

func TestLevelFlagSetInvalidArgument(t *testing.T) {
	tests := []string{
		"",
		"foo",
		"10",
		"-2",
		"6x",
	}

	for i, tt := range tests {
		var f LevelFlag
		if err := f.Set(tt); err == nil {
			t.Errorf("case %d: expected non-nil error", i)
		}
	}
}

func TestLevelFlagSetValidArgument(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"0", 0},
		{"9", 9},
		{"-1", -1},
		{"best", 9},
		{"Speed", 1},
		{"none", 0},
		{"default", -1},
	}

	for i, tt := range tests {
		var f LevelFlag
		if err := f.Set(tt.in); err != nil {
			t.Errorf("case %d: err=%v", i, err)
			continue
		}
		if f.Level() != tt.want {
			t.Errorf("case %d: level=%d, want %d", i, f.Level(), tt.want)
		}
	}
}

func TestStrategyAndFormatFlags(t *testing.T) {
	var s StrategyFlag
	if err := s.Set("huffman-only"); err != nil || s.Strategy() != flate.HuffmanOnly {
		t.Errorf("strategy=%v err=%v", s.Strategy(), err)
	}
	if err := s.Set("fastest"); err == nil {
		t.Error("expected error for unknown strategy")
	}

	var f FormatFlag
	if err := f.Set("GZIP"); err != nil || f.Format() != flate.Gzip {
		t.Errorf("format=%v err=%v", f.Format(), err)
	}
	if f.String() != "gzip" {
		t.Errorf("String()=%q", f.String())
	}
	if err := f.Set("zip"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestRegisterConfigFlags(t *testing.T) {
	cfg := zstream.DefaultConfig(zstream.Deflate)
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterConfigFlags(fs, &cfg)

	if got := fs.Lookup("level").DefValue; got != "-1" {
		t.Errorf("level default=%q, want -1", got)
	}
	args := []string{"-format", "raw", "-level", "best", "-strategy", "rle", "-window-bits", "12", "-max-output", "4096"}
	if err := fs.Parse(args); err != nil {
		t.Fatal(err)
	}
	if cfg.Format != flate.Raw || cfg.Level != 9 || cfg.Strategy != flate.RLE || cfg.WindowBits != 12 || cfg.MaxOutput != 4096 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	RegisterConfigFlags(fs, &cfg)
	if err := fs.Parse([]string{"-mode", "unzip"}); err == nil {
		t.Error("expected error for unknown mode")
	}
}
