package main

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"go.yaml.in/yaml/v3"

	"github.com/clktmr/mxs/drivers/nand"
)

type simConfig struct {
	MemSize   int   `yaml:"mem_size"`
	BadBlocks []int `yaml:"bad_blocks"` // factory bad blocks on every chip
	Flips     int   `yaml:"flips"`      // bitflips injected per chunk
}

type config struct {
	NAND     nand.Config `yaml:"nand"`
	Sim      simConfig   `yaml:"sim"`
	LogLevel string      `yaml:"log_level"`
}

var defaults = config{
	NAND: nand.Config{
		Geometry: nand.Geometry{
			PageSize:      2048,
			OOBSize:       64,
			PagesPerBlock: 64,
			Blocks:        32,
		},
	},
	Sim: simConfig{
		MemSize: 1 << 20,
	},
	LogLevel: "info",
}

// loadConfig reads the YAML config at path. Unset values keep their
// defaults, an empty path returns the defaults.
func loadConfig(path string) (cfg config, err error) {
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := mergo.Merge(&cfg, defaults); err != nil {
		return cfg, err
	}
	return cfg, nil
}
