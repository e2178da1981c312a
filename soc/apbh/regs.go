package apbh

import "github.com/clktmr/mxs/soc/mmio"

// Register offsets relative to the block's base address.
const (
	RegCtrl0       = 0x000
	RegCtrl1       = 0x010
	RegCtrl2       = 0x020
	RegChannelCtrl = 0x030

	RegChannelBase = 0x100 // first channel's register bank
	ChannelStride  = 0x70  // distance between channel register banks

	RegCurCmdAr = 0x00 // current CCW, read-only
	RegNxtCmdAr = 0x10 // next CCW, written to start a chain
	RegCmd      = 0x20 // cmd word of the current CCW, read-only
	RegBar      = 0x30 // buffer address of the current CCW, read-only
	RegSema     = 0x40
	RegDebug1   = 0x50
	RegDebug2   = 0x60
)

// NumChannels is the number of APBH channels, i.e. GPMI chip selects.
const NumChannels = 8

type Ctrl0 uint32

const (
	Ctrl0Sftrst  Ctrl0 = 1 << 31
	Ctrl0Clkgate Ctrl0 = 1 << 30
)

type (
	Ctrl1       uint32
	Ctrl2       uint32
	ChannelCtrl uint32
	Sema        uint32
)

// Per channel bitmaps.
var (
	Ctrl0ClkgateChannel = mmio.Field[Ctrl0]{Shift: 0, Width: 16}
	Ctrl1CmdCmpltIRQ    = mmio.Field[Ctrl1]{Shift: 0, Width: 16}
	Ctrl1CmdCmpltIRQEn  = mmio.Field[Ctrl1]{Shift: 16, Width: 16}
	Ctrl2ErrorIRQ       = mmio.Field[Ctrl2]{Shift: 0, Width: 16}
	Ctrl2ErrorStatus    = mmio.Field[Ctrl2]{Shift: 16, Width: 16}
	ChannelCtrlFreeze   = mmio.Field[ChannelCtrl]{Shift: 0, Width: 16}
	ChannelCtrlReset    = mmio.Field[ChannelCtrl]{Shift: 16, Width: 16}
)

var (
	SemaIncrement = mmio.Field[Sema]{Shift: 0, Width: 8}
	SemaPhore     = mmio.Field[Sema]{Shift: 16, Width: 8}
)

type registers struct {
	ctrl0       mmio.R32[Ctrl0]
	ctrl1       mmio.R32[Ctrl1]
	ctrl2       mmio.R32[Ctrl2]
	channelCtrl mmio.R32[ChannelCtrl]
}

type channelRegisters struct {
	curCmdAr mmio.U32
	nxtCmdAr mmio.U32
	cmd      mmio.R32[Command]
	bar      mmio.U32
	sema     mmio.R32[Sema]
}

func newRegisters(bus mmio.Bus, base uint32) *registers {
	return &registers{
		ctrl0:       mmio.NewR32[Ctrl0](bus, base+RegCtrl0),
		ctrl1:       mmio.NewR32[Ctrl1](bus, base+RegCtrl1),
		ctrl2:       mmio.NewR32[Ctrl2](bus, base+RegCtrl2),
		channelCtrl: mmio.NewR32[ChannelCtrl](bus, base+RegChannelCtrl),
	}
}

// ChannelRegister returns the address of the register at offset reg of
// channel ch.
func ChannelRegister(base uint32, ch int, reg uint32) uint32 {
	return base + RegChannelBase + uint32(ch)*ChannelStride + reg
}

func newChannelRegisters(bus mmio.Bus, base uint32, ch int) channelRegisters {
	return channelRegisters{
		curCmdAr: mmio.NewR32[uint32](bus, ChannelRegister(base, ch, RegCurCmdAr)),
		nxtCmdAr: mmio.NewR32[uint32](bus, ChannelRegister(base, ch, RegNxtCmdAr)),
		cmd:      mmio.NewR32[Command](bus, ChannelRegister(base, ch, RegCmd)),
		bar:      mmio.NewR32[uint32](bus, ChannelRegister(base, ch, RegBar)),
		sema:     mmio.NewR32[Sema](bus, ChannelRegister(base, ch, RegSema)),
	}
}
