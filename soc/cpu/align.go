package cpu

import "golang.org/x/exp/constraints"

// AlignUp rounds v up to the next multiple of align, which must be a power of
// two.
func AlignUp[T constraints.Integer](v, align T) T {
	return (v + align - 1) &^ (align - 1)
}

// AlignDown rounds v down to a multiple of align, which must be a power of
// two.
func AlignDown[T constraints.Integer](v, align T) T {
	return v &^ (align - 1)
}

// DivRoundUp divides and rounds towards positive infinity.
func DivRoundUp[T constraints.Integer](a, b T) T {
	return (a + b - 1) / b
}
