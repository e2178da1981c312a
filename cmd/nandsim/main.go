package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/sigurn/crc8"
	"github.com/sirupsen/logrus"

	"github.com/clktmr/mxs/drivers/nand"
	"github.com/clktmr/mxs/soc/bch"
	"github.com/clktmr/mxs/testing/socsim"
)

func must[T any](ret T, err error) T {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return ret
}

const usageString = `Simulated i.MX28 NAND Flash Utility.

Usage:

	%s [flags] <command> [arguments]

The commands are:

	id		print the ID of every chip
	scan		print the factory bad blocks
	write <file>	write file to flash, read it back and compare
	layout		print the ECC layout

The flags are:

`

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), usageString, os.Args[0])
	flag.PrintDefaults()
}

var (
	flagConfig = flag.String("config", "", "YAML `file` with driver and simulator settings")
	flagImage  = flag.String("image", "", "dump the raw flash of chip 0 to `file`")
	flagStats  = flag.Bool("stats", false, "print driver metrics on exit")
)

var imageCRC8 = crc8.MakeTable(crc8.Params{0x07, 0x00, false, false, 0x00, 0xF4, "CRC-8"})

func checksum(data []byte) uint8 {
	csum := crc8.Init(imageCRC8)
	csum = crc8.Update(csum, data, imageCRC8)
	return crc8.Complete(csum, imageCRC8)
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg := must(loadConfig(*flagConfig))
	log := logrus.New()
	log.SetLevel(must(logrus.ParseLevel(cfg.LogLevel)))

	registry := metrics.NewRegistry()
	cfg.NAND.Logger = log
	cfg.NAND.Metrics = registry

	g := cfg.NAND.Geometry
	sim := socsim.New(socsim.Config{
		Geometry: socsim.Geometry{
			PageSize:      g.PageSize,
			OOBSize:       g.OOBSize,
			PagesPerBlock: g.PagesPerBlock,
			Blocks:        g.Blocks,
		},
		Chips:   max(cfg.NAND.Chips, 1),
		MemSize: cfg.Sim.MemSize,
		Logger:  log,
	})
	for cs := range max(cfg.NAND.Chips, 1) {
		for _, b := range cfg.Sim.BadBlocks {
			sim.Chip(cs).MarkBad(b)
		}
	}

	d := must(nand.New(sim, sim.Memory().Region(), cfg.NAND))

	switch flag.Arg(0) {
	case "id":
		for cs := range d.Chips() {
			must(0, d.Select(cs))
			must(0, d.Reset())
			fmt.Printf("chip %d: % x\n", cs, must(d.ReadID()))
		}
	case "scan":
		bbt := must(d.ScanBadBlocks())
		for cs := range d.Chips() {
			for b := range g.Blocks {
				if bbt.IsBad(cs, b) {
					fmt.Printf("chip %d: block %d bad\n", cs, b)
				}
			}
		}
		fmt.Printf("%d bad blocks\n", bbt.Count())
	case "write":
		if flag.NArg() < 2 {
			flag.Usage()
			os.Exit(1)
		}
		data := must(os.ReadFile(flag.Arg(1)))
		must(0, roundtrip(d, sim, cfg, data))
	case "layout":
		printLayout(d.Layout())
	default:
		fmt.Fprintf(flag.CommandLine.Output(), "%s: unknown command\n", flag.Arg(0))
		flag.Usage()
		os.Exit(1)
	}

	if *flagImage != "" {
		must(0, dumpImage(*flagImage, sim.Chip(0), g))
	}
	if *flagStats {
		s := d.Stats()
		fmt.Printf("ecc: %d corrected, %d failed, %d max bitflips\n", s.Corrected, s.Failed, s.MaxBitflips)
		metrics.WriteOnce(registry, os.Stdout)
	}
}

func printLayout(l bch.Layout) {
	fmt.Printf("geometry:  %v\n", l.Geometry)
	fmt.Printf("chunks:    %d (block0 %d bytes, blockN %d bytes)\n", l.Chunks, l.Block0Size, l.BlockNSize)
	fmt.Printf("strength:  %d/%d bits\n", l.Block0Strength, l.BlockNStrength)
	fmt.Printf("ecc bytes: %d\n", l.EccBytes)
	fmt.Printf("mark:      byte %d bit %d\n", l.BlockMarkByteOffset, l.BlockMarkBitOffset)
}

// roundtrip writes data to the good blocks of chip 0, injects bitflips and
// verifies the data read back.
func roundtrip(d *nand.NAND, sim *socsim.SoC, cfg config, data []byte) error {
	g := d.Geometry()
	if err := d.Select(0); err != nil {
		return err
	}
	if err := d.Reset(); err != nil {
		return err
	}
	bbt, err := d.ScanBadBlocks()
	if err != nil {
		return err
	}

	start := time.Now()
	var pages []int
	page := make([]byte, g.PageSize)
	for off, block := 0, 0; off < len(data); block++ {
		if block >= g.Blocks {
			return fmt.Errorf("%d bytes don't fit into flash", len(data))
		}
		if bbt.IsBad(0, block) {
			continue
		}
		if err := d.EraseBlock(block); err != nil {
			return err
		}
		for p := range g.PagesPerBlock {
			if off >= len(data) {
				break
			}
			for i := range page {
				page[i] = 0xff
			}
			off += copy(page, data[off:])
			n := block*g.PagesPerBlock + p
			if err := d.ProgramPage(n, page, nil); err != nil {
				return err
			}
			pages = append(pages, n)
		}
	}
	written := time.Since(start)

	l := d.Layout()
	for _, n := range pages {
		for chunk := range l.Chunks {
			var bits []int
			for f := range cfg.Sim.Flips {
				bits = append(bits, sim.ChunkBit(0, chunk, f*37))
			}
			sim.Chip(0).FlipBits(n, bits...)
		}
	}

	start = time.Now()
	var readback bytes.Buffer
	for _, n := range pages {
		if _, err := d.ReadPage(n, page, nil); err != nil {
			return err
		}
		readback.Write(page)
	}
	read := time.Since(start)

	want := checksum(data)
	got := checksum(readback.Bytes()[:len(data)])
	fmt.Printf("wrote %d pages in %v, read in %v\n", len(pages), written, read)
	if want != got {
		return fmt.Errorf("checksum mismatch: wrote %#02x, read %#02x", want, got)
	}
	fmt.Printf("checksum %#02x ok\n", got)
	return nil
}

func dumpImage(path string, c *socsim.Chip, g nand.Geometry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	erased := bytes.Repeat([]byte{0xff}, g.PageSize+g.OOBSize)
	for p := range g.Pages() {
		raw := c.RawPage(p)
		if raw == nil {
			raw = erased
		}
		if _, err := f.Write(raw); err != nil {
			return err
		}
	}
	return f.Close()
}
