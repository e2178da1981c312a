// Package mmio provides typed access to memory-mapped peripheral registers.
//
// Registers are addressed through a Bus instead of raw pointers, which makes
// the drivers built on top of it independent of the actual address space.
// On target the bus maps to physical memory, in tests it's usually a
// simulated peripheral.
package mmio

import "github.com/clktmr/mxs/debug"

// Bus is a 32-bit wide register bus. Accesses must be 4 byte aligned.
type Bus interface {
	Load32(addr uint32) uint32
	Store32(addr uint32, v uint32)
}

// Most MXS peripheral registers have three aliases following the register
// itself, which atomically set, clear or toggle the written bits.
const (
	SetOffset = 0x4
	ClrOffset = 0x8
	TogOffset = 0xc
)

// R32 is a 32-bit register holding values of type T.
type R32[T ~uint32] struct {
	bus  Bus
	addr uint32
}

// U32 is a register holding plain words, like addresses or counters.
type U32 = R32[uint32]

func NewR32[T ~uint32](bus Bus, addr uint32) R32[T] {
	debug.Assert(addr%4 == 0, "unaligned register address")
	return R32[T]{bus: bus, addr: addr}
}

func (r R32[T]) Addr() uint32 { return r.addr }

func (r R32[T]) Load() T { return T(r.bus.Load32(r.addr)) }

func (r R32[T]) Store(v T) { r.bus.Store32(r.addr, uint32(v)) }

// LoadBits returns the register value masked by mask.
func (r R32[T]) LoadBits(mask T) T { return r.Load() & mask }

// StoreBits replaces the bits selected by mask with bits. It's a
// read-modify-write cycle and therefore not atomic.
func (r R32[T]) StoreBits(mask, bits T) {
	r.Store(r.Load()&^mask | bits&mask)
}

// Set atomically sets bits using the SET alias of the register.
func (r R32[T]) Set(bits T) { r.bus.Store32(r.addr+SetOffset, uint32(bits)) }

// Clear atomically clears bits using the CLR alias of the register.
func (r R32[T]) Clear(bits T) { r.bus.Store32(r.addr+ClrOffset, uint32(bits)) }

// Toggle atomically inverts bits using the TOG alias of the register.
func (r R32[T]) Toggle(bits T) { r.bus.Store32(r.addr+TogOffset, uint32(bits)) }
