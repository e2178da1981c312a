package nand

// SwapBlockMark exchanges the byte at bit position bitOff of data[byteOff:]
// with oob[0].
//
// With hardware ECC the page is written as interleaved data and parity, so
// the factory bad block mark in the first spare byte ends up in the middle of
// the data. Swapping before writing and after reading keeps the mark at its
// physical position and gives the caller its data unmodified. Applying the
// swap twice restores the original buffers.
func SwapBlockMark(data, oob []byte, byteOff, bitOff int) {
	k := uint(bitOff)
	b := byteOff

	fromData := data[b]>>k | data[b+1]<<(8-k)
	fromOob := oob[0]
	oob[0] = fromData

	mask := byte(1)<<k - 1
	data[b] = data[b]&mask | fromOob<<k
	data[b+1] = data[b+1]&^mask | fromOob>>(8-k)
}
