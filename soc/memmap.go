package soc

// Peripheral base addresses of the i.MX28.
const (
	APBHBase uint32 = 0x8000_4000
	BCHBase  uint32 = 0x8000_a000
	GPMIBase uint32 = 0x8000_c000
)

// DRAMBase is the physical start of external memory.
const DRAMBase uint32 = 0x4000_0000
