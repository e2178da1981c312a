// Package gpmi drives the general purpose media interface, the command
// sequencer between the APBH DMA and the NAND bus.
//
// The sequencer is programmed almost exclusively through PIO words, which
// the DMA writes into its registers as part of a descriptor chain. This
// package builds these words and provides the few direct register accesses
// needed for setup and ready/busy polling.
package gpmi

import (
	"fmt"

	"github.com/clktmr/mxs/soc"
	"github.com/clktmr/mxs/soc/mmio"
)

// MaxChips is the number of chip selects.
const MaxChips = 8

// Timing in GPMI clock cycles.
type Timing struct {
	AddressSetup uint8 `yaml:"address_setup"`
	DataSetup    uint8 `yaml:"data_setup"`
	DataHold     uint8 `yaml:"data_hold"`
}

// DefaultTiming is slow enough for any ONFI mode 0 device.
var DefaultTiming = Timing{AddressSetup: 1, DataSetup: 2, DataHold: 1}

type Controller struct {
	bus  mmio.Bus
	base uint32
	regs *registers
}

func New(bus mmio.Bus, base uint32) *Controller {
	return &Controller{bus: bus, base: base, regs: newRegisters(bus, base)}
}

// Init resets the sequencer and configures it for NAND operation with
// hardware ECC.
func (g *Controller) Init(t Timing) error {
	if err := soc.ResetBlock(mmio.NewR32[uint32](g.bus, g.base+RegCtrl0)); err != nil {
		return fmt.Errorf("gpmi: %w", err)
	}

	g.regs.ctrl1.Clear(Ctrl1GPMIModeATA)
	g.regs.ctrl1.Set(Ctrl1ATAIRQRdyPolarity | Ctrl1DevReset | Ctrl1BCHMode)
	g.regs.timing0.Store(
		Timing0AddressSetup.Val(uint32(t.AddressSetup)) |
			Timing0DataSetup.Val(uint32(t.DataSetup)) |
			Timing0DataHold.Val(uint32(t.DataHold)))
	return nil
}

// Ready reports the ready/busy line of chip select cs. It never blocks.
func (g *Controller) Ready(cs int) bool {
	return g.regs.stat.LoadBits(StatReadyBusy.Bit(cs)) != 0
}

// PIOCtrl0 returns a CTRL0 PIO word for an 8-bit bus cycle sequence.
func PIOCtrl0(mode Mode, cs int, addr Address, count int) uint32 {
	return uint32(Ctrl0WordLength8 |
		Ctrl0CommandMode.Val(uint32(mode)) |
		Ctrl0CS.Val(uint32(cs)) |
		Ctrl0Address.Val(uint32(addr)) |
		Ctrl0XferCount.Val(uint32(count)))
}

// PIOCommand returns the CTRL0 PIO word for writing a command byte followed
// by n-1 address bytes. The address increment switches from CLE to ALE
// after the first byte.
func PIOCommand(cs int, n int) uint32 {
	return PIOCtrl0(ModeWrite, cs, AddressCLE, n) |
		uint32(Ctrl0LockCS|Ctrl0AddressIncrement)
}

// PIOWaitForReady returns the CTRL0 PIO word that makes the sequencer wait
// for the ready line of cs.
func PIOWaitForReady(cs int) uint32 {
	return PIOCtrl0(ModeWaitForReady, cs, AddressData, 0)
}

// PIOECCCtrl returns an ECCCTRL PIO word enabling the BCH engine for cmd,
// one of ECCDecode or ECCEncode.
func PIOECCCtrl(cmd uint32, mask uint32) uint32 {
	return uint32(ECCCtrlEnable | ECCCtrlCmd.Val(cmd) | ECCCtrlBufferMask.Val(mask))
}
