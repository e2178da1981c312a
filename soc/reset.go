package soc

import (
	"fmt"
	"time"

	"github.com/clktmr/mxs/soc/mmio"
)

// Every MXS peripheral has soft reset and clock gate bits in the two most
// significant bits of its first control register.
const (
	CtrlSftrst  uint32 = 1 << 31
	CtrlClkgate uint32 = 1 << 30
)

const resetTimeout = 10 * time.Millisecond

// ResetBlock performs the soft reset sequence of a peripheral block and leaves
// it running with ungated clock. ctrl is the block's CTRL0 register.
func ResetBlock(ctrl mmio.U32) error {
	// Bring out of reset, so the clock can be ungated
	ctrl.Clear(CtrlSftrst)
	if err := Poll(resetTimeout, func() bool { return ctrl.LoadBits(CtrlSftrst) == 0 }); err != nil {
		return fmt.Errorf("reset block %#x: sftrst not released: %w", ctrl.Addr(), err)
	}
	ctrl.Clear(CtrlClkgate)

	// Reset, the hardware gates the clock once reset is complete
	ctrl.Set(CtrlSftrst)
	if err := Poll(resetTimeout, func() bool { return ctrl.LoadBits(CtrlClkgate) != 0 }); err != nil {
		return fmt.Errorf("reset block %#x: clock not gated: %w", ctrl.Addr(), err)
	}

	ctrl.Clear(CtrlSftrst)
	if err := Poll(resetTimeout, func() bool { return ctrl.LoadBits(CtrlSftrst) == 0 }); err != nil {
		return fmt.Errorf("reset block %#x: sftrst not released: %w", ctrl.Addr(), err)
	}
	ctrl.Clear(CtrlClkgate)
	if err := Poll(resetTimeout, func() bool { return ctrl.LoadBits(CtrlClkgate) == 0 }); err != nil {
		return fmt.Errorf("reset block %#x: clock not ungated: %w", ctrl.Addr(), err)
	}
	return nil
}
