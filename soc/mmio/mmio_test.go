package mmio_test

import (
	"testing"

	"github.com/clktmr/mxs/soc/mmio"
)

type store struct {
	addr, v uint32
}

// bus records stores and returns the last value stored to an address.
type bus struct {
	regs   map[uint32]uint32
	stores []store
}

func (b *bus) Load32(addr uint32) uint32 { return b.regs[addr] }

func (b *bus) Store32(addr uint32, v uint32) {
	b.regs[addr] = v
	b.stores = append(b.stores, store{addr, v})
}

type ctrl uint32

func TestAliases(t *testing.T) {
	b := &bus{regs: map[uint32]uint32{}}
	r := mmio.NewR32[ctrl](b, 0x8000_4000)

	r.Set(0x3)
	r.Clear(0x4)
	r.Toggle(0x8)
	expected := []store{
		{0x8000_4004, 0x3},
		{0x8000_4008, 0x4},
		{0x8000_400c, 0x8},
	}
	if len(b.stores) != len(expected) {
		t.Fatalf("expected %v stores, got %v", len(expected), len(b.stores))
	}
	for i, s := range expected {
		if b.stores[i] != s {
			t.Errorf("store %d: expected %+v, got %+v", i, s, b.stores[i])
		}
	}
}

func TestStoreBits(t *testing.T) {
	b := &bus{regs: map[uint32]uint32{0x10: 0xffff_0000}}
	r := mmio.NewR32[ctrl](b, 0x10)

	r.StoreBits(0x00ff_ff00, 0x1234_5678)
	if got := r.Load(); got != 0xff34_5600 {
		t.Fatalf("expected %#x, got %#x", 0xff34_5600, got)
	}
	if got := r.LoadBits(0x0000_ff00); got != 0x5600 {
		t.Fatalf("expected %#x, got %#x", 0x5600, got)
	}
}

func TestField(t *testing.T) {
	tests := map[string]struct {
		f    mmio.Field[ctrl]
		v    ctrl
		get  uint32
		mask ctrl
	}{
		"low":    {mmio.Field[ctrl]{Shift: 0, Width: 16}, 0xdead_beef, 0xbeef, 0x0000_ffff},
		"high":   {mmio.Field[ctrl]{Shift: 16, Width: 16}, 0xdead_beef, 0xdead, 0xffff_0000},
		"nibble": {mmio.Field[ctrl]{Shift: 12, Width: 4}, 0x0000_a000, 0xa, 0x0000_f000},
		"full":   {mmio.Field[ctrl]{Shift: 0, Width: 32}, 0xdead_beef, 0xdead_beef, 0xffff_ffff},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := tc.f.Mask(); got != tc.mask {
				t.Errorf("mask: expected %#x, got %#x", tc.mask, got)
			}
			if got := tc.f.Get(tc.v); got != tc.get {
				t.Errorf("get: expected %#x, got %#x", tc.get, got)
			}
			if got := tc.f.Put(tc.v, 0); got != tc.v&^tc.mask {
				t.Errorf("put: expected %#x, got %#x", tc.v&^tc.mask, got)
			}
			if got := tc.f.Get(tc.f.Val(tc.get)); got != tc.get {
				t.Errorf("val: expected %#x, got %#x", tc.get, got)
			}
		})
	}
}

func TestFieldBit(t *testing.T) {
	f := mmio.Field[ctrl]{Shift: 16, Width: 16}
	for n := range 16 {
		if got := f.Bit(n); got != 1<<(16+n) {
			t.Errorf("bit %d: expected %#x, got %#x", n, 1<<(16+n), got)
		}
	}
}
