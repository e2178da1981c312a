package gpmi

import "github.com/clktmr/mxs/soc/mmio"

// Register offsets relative to the block's base address. The APBH writes PIO
// words to consecutive registers starting at RegCtrl0.
const (
	RegCtrl0     = 0x000
	RegCompare   = 0x010
	RegECCCtrl   = 0x020
	RegECCCount  = 0x030
	RegPayload   = 0x040
	RegAuxiliary = 0x050
	RegCtrl1     = 0x060
	RegTiming0   = 0x070
	RegTiming1   = 0x080
	RegData      = 0x0a0
	RegStat      = 0x0b0
	RegDebug     = 0x0c0
)

// RegisterStride is the distance of consecutive registers in PIO order.
const RegisterStride = 0x10

type Ctrl0 uint32

const (
	Ctrl0Sftrst           Ctrl0 = 1 << 31
	Ctrl0Clkgate          Ctrl0 = 1 << 30
	Ctrl0Run              Ctrl0 = 1 << 29
	Ctrl0DevIRQEn         Ctrl0 = 1 << 28
	Ctrl0LockCS           Ctrl0 = 1 << 27
	Ctrl0UDMA             Ctrl0 = 1 << 26
	Ctrl0WordLength8      Ctrl0 = 1 << 23
	Ctrl0AddressIncrement Ctrl0 = 1 << 16
)

var (
	Ctrl0CommandMode = mmio.Field[Ctrl0]{Shift: 24, Width: 2}
	Ctrl0CS          = mmio.Field[Ctrl0]{Shift: 20, Width: 3}
	Ctrl0Address     = mmio.Field[Ctrl0]{Shift: 17, Width: 3}
	Ctrl0XferCount   = mmio.Field[Ctrl0]{Shift: 0, Width: 16}
)

// Mode is the command mode of CTRL0.
type Mode uint32

const (
	ModeWrite Mode = iota
	ModeRead
	ModeReadAndCompare
	ModeWaitForReady
)

// Address selects the NAND bus cycle type in CTRL0.
type Address uint32

const (
	AddressData Address = iota
	AddressCLE
	AddressALE
)

type ECCCtrl uint32

const ECCCtrlEnable ECCCtrl = 1 << 12

var (
	ECCCtrlCmd        = mmio.Field[ECCCtrl]{Shift: 13, Width: 2}
	ECCCtrlBufferMask = mmio.Field[ECCCtrl]{Shift: 0, Width: 9}
)

// ECC commands
const (
	ECCDecode = 0
	ECCEncode = 1
)

// Buffer masks
const (
	BufferMaskPage    = 0x1ff // data and auxiliary
	BufferMaskAuxOnly = 0x100
)

type Ctrl1 uint32

const (
	Ctrl1GPMIModeATA       Ctrl1 = 1 << 0
	Ctrl1ATAIRQRdyPolarity Ctrl1 = 1 << 2
	Ctrl1DevReset          Ctrl1 = 1 << 3
	Ctrl1BCHMode           Ctrl1 = 1 << 18
)

type Stat uint32

var StatReadyBusy = mmio.Field[Stat]{Shift: 24, Width: 8}

var (
	Timing0AddressSetup = mmio.Field[uint32]{Shift: 16, Width: 8}
	Timing0DataHold     = mmio.Field[uint32]{Shift: 8, Width: 8}
	Timing0DataSetup    = mmio.Field[uint32]{Shift: 0, Width: 8}
)

type registers struct {
	ctrl0   mmio.R32[Ctrl0]
	ctrl1   mmio.R32[Ctrl1]
	timing0 mmio.U32
	stat    mmio.R32[Stat]
}

func newRegisters(bus mmio.Bus, base uint32) *registers {
	return &registers{
		ctrl0:   mmio.NewR32[Ctrl0](bus, base+RegCtrl0),
		ctrl1:   mmio.NewR32[Ctrl1](bus, base+RegCtrl1),
		timing0: mmio.NewR32[uint32](bus, base+RegTiming0),
		stat:    mmio.NewR32[Stat](bus, base+RegStat),
	}
}
