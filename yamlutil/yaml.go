// Package yamlutil loads stream settings from YAML.
package yamlutil

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/coreos/zflate/zstream"
)

type rawConfig struct {
	Mode       string `yaml:"mode"`
	Format     string `yaml:"format"`
	Level      *int   `yaml:"level"`
	Strategy   string `yaml:"strategy"`
	WindowBits *int   `yaml:"window_bits"`
	MemLevel   *int   `yaml:"mem_level"`
	MaxOutput  int64  `yaml:"max_output"`
}

// LoadConfig decodes a stream configuration such as
//
//	mode: inflate
//	format: gzip
//	window_bits: 15
//	max_output: 1048576
//
// Keys that are absent keep the zstream.DefaultConfig value for the mode,
// which itself defaults to deflate. Unknown keys are rejected and the
// result is validated.
func LoadConfig(raw []byte) (zstream.Config, error) {
	var rc rawConfig
	if err := yaml.UnmarshalStrict(raw, &rc); err != nil {
		return zstream.Config{}, errors.Wrap(err, "yamlutil: decoding config")
	}

	mode := zstream.Deflate
	if rc.Mode != "" {
		m, err := zstream.ParseMode(rc.Mode)
		if err != nil {
			return zstream.Config{}, err
		}
		mode = m
	}
	cfg := zstream.DefaultConfig(mode)

	if rc.Format != "" {
		f, err := zstream.ParseFormat(rc.Format)
		if err != nil {
			return zstream.Config{}, err
		}
		cfg.Format = f
	}
	if rc.Strategy != "" {
		s, err := zstream.ParseStrategy(rc.Strategy)
		if err != nil {
			return zstream.Config{}, err
		}
		cfg.Strategy = s
	}
	if rc.Level != nil {
		cfg.Level = *rc.Level
	}
	if rc.WindowBits != nil {
		cfg.WindowBits = *rc.WindowBits
	}
	if rc.MemLevel != nil {
		cfg.MemLevel = *rc.MemLevel
	}
	cfg.MaxOutput = rc.MaxOutput

	if err := cfg.Validate(); err != nil {
		return zstream.Config{}, errors.Wrap(err, "yamlutil: invalid config")
	}
	return cfg, nil
}

// LoadConfigFile reads and decodes the YAML file at path.
func LoadConfigFile(path string) (zstream.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return zstream.Config{}, errors.Wrap(err, "yamlutil: reading config")
	}
	return LoadConfig(raw)
}
