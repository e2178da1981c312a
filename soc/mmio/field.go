package mmio

import "github.com/clktmr/mxs/debug"

// Field describes a bit field of Width bits starting at bit Shift in a
// register of type T.
type Field[T ~uint32] struct {
	Shift uint8
	Width uint8
}

// Mask returns the bits occupied by the field.
func (f Field[T]) Mask() T {
	return T((uint64(1)<<f.Width - 1) << f.Shift)
}

// Get extracts the field's value from v.
func (f Field[T]) Get(v T) uint32 {
	return uint32(v&f.Mask()) >> f.Shift
}

// Val returns x positioned in the field, all other bits zero.
func (f Field[T]) Val(x uint32) T {
	debug.Assert(uint64(x) < uint64(1)<<f.Width, "value exceeds field width")
	return T(x<<f.Shift) & f.Mask()
}

// Put returns v with the field replaced by x.
func (f Field[T]) Put(v T, x uint32) T {
	return v&^f.Mask() | f.Val(x)
}

// Bit returns the single bit n of a per-channel bitmap field, e.g. one
// interrupt flag out of sixteen.
func (f Field[T]) Bit(n int) T {
	debug.Assert(n >= 0 && n < int(f.Width), "bit outside of field")
	return T(1) << (uint(f.Shift) + uint(n))
}
