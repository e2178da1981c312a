//go:build noos

package mmio

import (
	"embedded/mmio"
	"unsafe"
)

// Phys is the bus of the physical address space, as seen by code running
// with the MMU disabled or with a flat mapping of the peripheral range.
type Phys struct{}

func (Phys) Load32(addr uint32) uint32 {
	return (*mmio.U32)(unsafe.Pointer(uintptr(addr))).Load()
}

func (Phys) Store32(addr uint32, v uint32) {
	(*mmio.U32)(unsafe.Pointer(uintptr(addr))).Store(v)
}
