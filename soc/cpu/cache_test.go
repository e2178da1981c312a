package cpu_test

import (
	"errors"
	"testing"

	"github.com/clktmr/mxs/soc/cpu"
)

type op struct {
	writeback bool
	addr      cpu.Addr
	length    int
}

type recorder []op

func (r *recorder) Writeback(addr cpu.Addr, length int) {
	*r = append(*r, op{true, addr, length})
}

func (r *recorder) Invalidate(addr cpu.Addr, length int) {
	*r = append(*r, op{false, addr, length})
}

func TestReserve(t *testing.T) {
	r := cpu.NewRegion(0x4000_0000, make([]byte, 8192), nil)

	a, addrA, err := r.Reserve(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if addrA != 0x4000_0000 || len(a) != 10 || !r.IsPadded(a) {
		t.Fatalf("unexpected reservation at %#x len %d", addrA, len(a))
	}

	b, addrB, err := r.Reserve(100, cpu.PageSize)
	if err != nil {
		t.Fatal(err)
	}
	if addrB != 0x4000_1000 {
		t.Fatalf("expected %#x, got %#x", 0x4000_1000, addrB)
	}
	if r.Addr(b) != addrB || r.Addr(b[64:]) != addrB+64 {
		t.Fatal("address of slice doesn't match reservation")
	}
	if !r.IsPadded(b) || r.IsPadded(b[1:]) {
		t.Fatal("unexpected padding")
	}
	if free := r.Free(); free != 8192-0x1000-128 {
		t.Fatalf("expected %v free bytes, got %v", 8192-0x1000-128, free)
	}

	_, _, err = r.Reserve(8192, 0)
	if !errors.Is(err, cpu.ErrNoMemory) {
		t.Fatalf("expected %v, got %v", cpu.ErrNoMemory, err)
	}
}

func TestReserveZeroed(t *testing.T) {
	mem := make([]byte, 256)
	for i := range mem {
		mem[i] = 0xaa
	}
	r := cpu.NewRegion(0, mem, nil)
	p, _, err := r.Reserve(33, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range p[:64] {
		if b != 0 {
			t.Fatalf("byte %d not cleared", i)
		}
	}
}

func TestCacheOps(t *testing.T) {
	var rec recorder
	r := cpu.NewRegion(0x1000, make([]byte, 1024), &rec)
	p, addr, err := r.Reserve(100, 0)
	if err != nil {
		t.Fatal(err)
	}

	r.Writeback(p)
	r.Invalidate(p[40:50])
	r.Writeback(p[:0])

	expected := recorder{
		{true, addr, 128},
		{false, addr + 32, 32},
	}
	if len(rec) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, rec)
	}
	for i := range expected {
		if rec[i] != expected[i] {
			t.Errorf("op %d: expected %+v, got %+v", i, expected[i], rec[i])
		}
	}
}

func TestAlign(t *testing.T) {
	tests := []struct {
		v, align, up, down int
	}{
		{0, 32, 0, 0},
		{1, 32, 32, 0},
		{32, 32, 32, 32},
		{33, 4, 36, 32},
		{4095, 4096, 4096, 0},
	}
	for _, tc := range tests {
		if got := cpu.AlignUp(tc.v, tc.align); got != tc.up {
			t.Errorf("AlignUp(%v, %v): expected %v, got %v", tc.v, tc.align, tc.up, got)
		}
		if got := cpu.AlignDown(tc.v, tc.align); got != tc.down {
			t.Errorf("AlignDown(%v, %v): expected %v, got %v", tc.v, tc.align, tc.down, got)
		}
	}
	if got := cpu.DivRoundUp(16896-16000, 8); got != 112 {
		t.Errorf("expected 112, got %v", got)
	}
}
