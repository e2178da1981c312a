package bch

import "github.com/clktmr/mxs/soc/mmio"

// Register offsets relative to the block's base address.
const (
	RegCtrl         = 0x000
	RegStatus0      = 0x010
	RegMode         = 0x020
	RegEncodePtr    = 0x030
	RegDataPtr      = 0x040
	RegMetaPtr      = 0x050
	RegLayoutSelect = 0x070

	RegFlash0Layout0 = 0x080
	RegFlash0Layout1 = 0x090
	LayoutStride     = 0x20 // distance between FLASHnLAYOUT register pairs
)

// NumLayouts is the number of layouts the engine can hold.
const NumLayouts = 4

type Ctrl uint32

const (
	CtrlSftrst        Ctrl = 1 << 31
	CtrlClkgate       Ctrl = 1 << 30
	CtrlCompleteIRQEn Ctrl = 1 << 8
	CtrlCompleteIRQ   Ctrl = 1 << 0
)

type Layout0 uint32

var (
	Layout0NBlocks   = mmio.Field[Layout0]{Shift: 24, Width: 8}
	Layout0MetaSize  = mmio.Field[Layout0]{Shift: 16, Width: 8}
	Layout0ECC0      = mmio.Field[Layout0]{Shift: 12, Width: 4} // strength/2
	Layout0Data0Size = mmio.Field[Layout0]{Shift: 0, Width: 12}
)

type Layout1 uint32

var (
	Layout1PageSize  = mmio.Field[Layout1]{Shift: 16, Width: 16}
	Layout1ECCN      = mmio.Field[Layout1]{Shift: 12, Width: 4} // strength/2
	Layout1DataNSize = mmio.Field[Layout1]{Shift: 0, Width: 12}
)

type registers struct {
	ctrl         mmio.R32[Ctrl]
	layoutSelect mmio.U32
}

func newRegisters(bus mmio.Bus, base uint32) *registers {
	return &registers{
		ctrl:         mmio.NewR32[Ctrl](bus, base+RegCtrl),
		layoutSelect: mmio.NewR32[uint32](bus, base+RegLayoutSelect),
	}
}

// LayoutRegisters returns the addresses of FLASHnLAYOUT0 and FLASHnLAYOUT1.
func LayoutRegisters(base uint32, n int) (layout0, layout1 uint32) {
	off := base + uint32(n)*LayoutStride
	return off + RegFlash0Layout0, off + RegFlash0Layout1
}
