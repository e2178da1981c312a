// Package socsim simulates the NAND subsystem of an i.MX28 on the host.
//
// The simulator implements the register bus of the APBH DMA, the GPMI and
// the BCH engine. Writing a channel's semaphore executes its descriptor chain
// synchronously, so a chain is complete once the store returns. Attached NAND
// chips and the BCH engine are modeled closely enough to run the drivers
// unmodified, including bad block marks and bitflips.
//
// Faults can be injected to test error paths: stalled channels never
// complete, and bus errors abort the next chain.
package socsim

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/clktmr/mxs/soc"
	"github.com/clktmr/mxs/soc/apbh"
	"github.com/clktmr/mxs/soc/bch"
	"github.com/clktmr/mxs/soc/cpu"
	"github.com/clktmr/mxs/soc/gpmi"
	"github.com/clktmr/mxs/soc/mmio"
)

type Config struct {
	Geometry Geometry `yaml:"geometry"`
	Chips    int      `yaml:"chips"`
	MemSize  int      `yaml:"mem_size"` // bytes of DMA memory

	Logger logrus.FieldLogger `yaml:"-"`
}

// SoC is a simulated register bus with DMA memory and NAND chips.
type SoC struct {
	regs   map[uint32]uint32
	mem    *Memory
	chips  []*Chip
	bch    bchEngine
	log    logrus.FieldLogger
	stores int

	stall   [apbh.NumChannels]bool
	failBus [apbh.NumChannels]bool
}

// New returns a simulator with the peripherals at their i.MX28 addresses
// and DMA memory at the start of DRAM.
func New(cfg Config) *SoC {
	if cfg.Chips <= 0 {
		cfg.Chips = 1
	}
	if cfg.MemSize <= 0 {
		cfg.MemSize = 1 << 20
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.Logger = l
	}
	s := &SoC{
		regs: make(map[uint32]uint32),
		mem:  NewMemory(cpu.Addr(soc.DRAMBase), cfg.MemSize),
		log:  cfg.Logger.WithField("component", "socsim"),
	}
	s.bch = bchEngine{sim: s, base: soc.BCHBase}
	for cs := range cfg.Chips {
		s.chips = append(s.chips, newChip(cfg.Geometry, s.log.WithField("chip", cs)))
	}

	// reset values, all blocks in reset with gated clocks
	for _, base := range []uint32{soc.APBHBase, soc.GPMIBase, soc.BCHBase} {
		s.regs[base] = soc.CtrlSftrst | soc.CtrlClkgate
	}
	return s
}

// Memory returns the DMA memory.
func (s *SoC) Memory() *Memory { return s.mem }

// Chip returns the chip at chip select cs.
func (s *SoC) Chip(cs int) *Chip { return s.chips[cs] }

// Stores returns the number of register writes so far.
func (s *SoC) Stores() int { return s.stores }

// Register returns the value of the register at addr without side effects.
func (s *SoC) Register(addr uint32) uint32 { return s.regs[addr] }

// Stall makes chains on channel ch hang until the channel is reset.
func (s *SoC) Stall(ch int, stall bool) { s.stall[ch] = stall }

// FailBus makes the next chain on channel ch fail with an AHB error.
func (s *SoC) FailBus(ch int) { s.failBus[ch] = true }

// ChunkBit returns the raw bit of page data holding bit n of ECC chunk i,
// as laid out by the BCH engine for chip select cs.
func (s *SoC) ChunkBit(cs, i, n int) int {
	l := s.bch.layout(cs)
	return l.chunkBit(i, n)
}

// Decoded returns the payload as the BCH engine would decode page from the
// chip at cs.
func (s *SoC) Decoded(cs, page int) (payload, aux []byte) {
	l := s.bch.layout(cs)
	c := s.chips[cs]
	raw := c.RawPage(page)
	if raw == nil {
		raw = make([]byte, l.raw)
		fill(raw, 0xff)
	}
	return l.decode(raw, c.Pristine(page))
}

func (s *SoC) Load32(addr uint32) uint32 {
	if addr == soc.GPMIBase+gpmi.RegStat {
		return s.stat()
	}
	return s.regs[addr]
}

func (s *SoC) Store32(addr uint32, v uint32) {
	s.stores++
	reg := addr &^ 0xf
	old := s.regs[reg]
	switch addr & 0xf {
	case 0:
		s.regs[reg] = v
	case mmio.SetOffset:
		s.regs[reg] |= v
	case mmio.ClrOffset:
		s.regs[reg] &^= v
	case mmio.TogOffset:
		s.regs[reg] ^= v
	}
	s.effects(reg, old, v)
}

func (s *SoC) effects(reg, old, v uint32) {
	switch reg {
	case soc.APBHBase + apbh.RegCtrl0, soc.GPMIBase + gpmi.RegCtrl0, soc.BCHBase + bch.RegCtrl:
		// the reset completes immediately and gates the clock
		if s.regs[reg]&soc.CtrlSftrst != 0 {
			s.regs[reg] |= soc.CtrlClkgate
		}
		return
	case soc.APBHBase + apbh.RegChannelCtrl:
		rst := uint32(apbh.ChannelCtrlReset.Mask())
		for ch := range apbh.NumChannels {
			if s.regs[reg]&uint32(apbh.ChannelCtrlReset.Bit(ch)) != 0 {
				s.resetChannel(ch)
			}
		}
		s.regs[reg] &^= rst
		return
	}

	for ch := range apbh.NumChannels {
		if reg != apbh.ChannelRegister(soc.APBHBase, ch, apbh.RegSema) {
			continue
		}
		inc := apbh.SemaIncrement.Get(apbh.Sema(v))
		phore := apbh.SemaPhore.Get(apbh.Sema(old)) + inc
		s.regs[reg] = uint32(apbh.SemaPhore.Val(min(phore, 0xff)))
		if inc > 0 {
			s.run(ch)
		}
	}
}

func (s *SoC) resetChannel(ch int) {
	s.log.WithField("channel", ch).Debug("channel reset")
	s.regs[apbh.ChannelRegister(soc.APBHBase, ch, apbh.RegSema)] = 0
	s.failBus[ch] = false
}

// stat returns GPMI STAT. Every read advances the chips' busy time.
func (s *SoC) stat() uint32 {
	var v gpmi.Stat
	for cs, c := range s.chips {
		if c.busy > 0 {
			c.busy--
		}
		if c.Ready() {
			v |= gpmi.StatReadyBusy.Bit(cs)
		}
	}
	return uint32(v)
}

func (s *SoC) chip(cs int) (*Chip, error) {
	if cs < 0 || cs >= len(s.chips) {
		return nil, fmt.Errorf("no chip at cs %d", cs)
	}
	return s.chips[cs], nil
}
