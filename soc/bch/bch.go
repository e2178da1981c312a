// Package bch drives the BCH error correction engine and calculates the
// page layouts it uses.
//
// The engine sits between the GPMI and memory. On writes it fetches page
// data and metadata, and feeds the GPMI with the encoded page. On reads it
// decodes the page, writes the corrected data and metadata back to memory
// and appends one status byte per chunk to the metadata. Its completion is
// signaled independently of the DMA chain that started the read.
package bch

import (
	"fmt"

	"github.com/clktmr/mxs/soc"
	"github.com/clktmr/mxs/soc/mmio"
)

type Controller struct {
	bus  mmio.Bus
	base uint32
	regs *registers
}

func New(bus mmio.Bus, base uint32) *Controller {
	return &Controller{bus: bus, base: base, regs: newRegisters(bus, base)}
}

// Init resets the engine.
func (b *Controller) Init() error {
	if err := soc.ResetBlock(mmio.NewR32[uint32](b.bus, b.base+RegCtrl)); err != nil {
		return fmt.Errorf("bch: %w", err)
	}
	return nil
}

// Program writes layout l to the engine's layout n, selects it for all chip
// selects and enables the completion interrupt.
func (b *Controller) Program(n int, l Layout) error {
	if n < 0 || n >= NumLayouts {
		return fmt.Errorf("bch: layout %d out of range", n)
	}

	l0 := Layout0NBlocks.Val(uint32(l.Chunks-1)) |
		Layout0MetaSize.Val(uint32(l.MetadataSize)) |
		Layout0ECC0.Val(uint32(l.Block0Strength/2)) |
		Layout0Data0Size.Val(uint32(l.Block0Size))
	l1 := Layout1PageSize.Val(uint32(l.RawSize())) |
		Layout1ECCN.Val(uint32(l.BlockNStrength/2)) |
		Layout1DataNSize.Val(uint32(l.BlockNSize))

	a0, a1 := LayoutRegisters(b.base, n)
	mmio.NewR32[Layout0](b.bus, a0).Store(l0)
	mmio.NewR32[Layout1](b.bus, a1).Store(l1)

	// two bits per chip select
	sel := uint32(0)
	for cs := 0; cs < 16; cs++ {
		sel |= uint32(n) << (2 * cs)
	}
	b.regs.layoutSelect.Store(sel)

	b.regs.ctrl.Set(CtrlCompleteIRQEn)
	return nil
}

// Done reports if the engine has completed a page.
func (b *Controller) Done() bool {
	return b.regs.ctrl.LoadBits(CtrlCompleteIRQ) != 0
}

// Ack clears the completion flag.
func (b *Controller) Ack() {
	b.regs.ctrl.Clear(CtrlCompleteIRQ)
}
