package nand

import (
	"errors"
	"fmt"
	"time"

	"dario.cat/mergo"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/clktmr/mxs/soc"
	"github.com/clktmr/mxs/soc/apbh"
	"github.com/clktmr/mxs/soc/gpmi"
)

// Geometry of the attached NAND devices. All chips must be identical.
type Geometry struct {
	PageSize      int `yaml:"page_size"`
	OOBSize       int `yaml:"oob_size"`
	PagesPerBlock int `yaml:"pages_per_block"`
	Blocks        int `yaml:"blocks"` // erase blocks per chip
}

// Pages returns the number of pages per chip.
func (g Geometry) Pages() int {
	return g.PagesPerBlock * g.Blocks
}

type Config struct {
	Geometry Geometry `yaml:"geometry"`
	Chips    int      `yaml:"chips"`

	// Protect the metadata with a separate ECC chunk.
	MetadataOnlyBlock0 bool `yaml:"metadata_only_block0"`

	// Keep the data byte at the factory bad block mark position in place.
	// Only useful for devices written by firmware that doesn't swap.
	DisableBlockMarkSwap bool `yaml:"disable_block_mark_swap"`

	// Bounds every DMA transaction and every wait for the ready line.
	Timeout time.Duration `yaml:"timeout"`

	// Descriptor slots per DMA channel.
	Slots int `yaml:"slots"`

	Timing gpmi.Timing `yaml:"timing"`

	APBHBase uint32 `yaml:"apbh_base"`
	GPMIBase uint32 `yaml:"gpmi_base"`
	BCHBase  uint32 `yaml:"bch_base"`

	Logger  logrus.FieldLogger `yaml:"-"`
	Metrics metrics.Registry   `yaml:"-"`
}

var defaultConfig = Config{
	Chips:    1,
	Timeout:  time.Second,
	Slots:    apbh.DefaultSlots,
	Timing:   gpmi.DefaultTiming,
	APBHBase: soc.APBHBase,
	GPMIBase: soc.GPMIBase,
	BCHBase:  soc.BCHBase,
}

var ErrConfig = errors.New("invalid configuration")

// withDefaults returns cfg with all unset fields set to their defaults.
func withDefaults(cfg Config) (Config, error) {
	if err := mergo.Merge(&cfg, defaultConfig); err != nil {
		return cfg, err
	}
	g := cfg.Geometry
	switch {
	case g.PageSize <= 0 || g.OOBSize <= 0:
		return cfg, fmt.Errorf("%w: page size %d+%d", ErrConfig, g.PageSize, g.OOBSize)
	case g.PagesPerBlock <= 0 || g.Blocks <= 0:
		return cfg, fmt.Errorf("%w: %d blocks of %d pages", ErrConfig, g.Blocks, g.PagesPerBlock)
	case cfg.Chips < 1 || cfg.Chips > gpmi.MaxChips || cfg.Chips > apbh.NumChannels:
		return cfg, fmt.Errorf("%w: %d chips", ErrConfig, cfg.Chips)
	case cfg.Slots < 3:
		return cfg, fmt.Errorf("%w: %d descriptor slots", ErrConfig, cfg.Slots)
	case cfg.Timeout < 0:
		return cfg, fmt.Errorf("%w: timeout %v", ErrConfig, cfg.Timeout)
	}
	return cfg, nil
}
