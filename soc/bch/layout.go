package bch

import (
	"errors"
	"fmt"

	"github.com/clktmr/mxs/soc/cpu"
)

var ErrUnsupportedGeometry = errors.New("unsupported nand geometry")

// Properties of the BCH engine.
const (
	ChunkSize    = 512 // data bytes per ECC chunk
	GaloisBits   = 13  // parity bits per corrected bit for ChunkSize chunks
	MetadataSize = 10  // bytes of metadata protected along with chunk 0
	MaxStrength  = 30
)

// Values of per chunk status bytes in the auxiliary buffer. Other values
// are the number of corrected bits.
const (
	StatusClean         = 0x00
	StatusUncorrectable = 0xfe
	StatusErased        = 0xff
)

// Geometry of a NAND page.
type Geometry struct {
	PageSize int // data bytes
	OOBSize  int // spare bytes

	// Protect the metadata with its own ECC chunk instead of placing it
	// in front of the first data chunk.
	MetadataOnlyBlock0 bool
}

func (g Geometry) String() string {
	s := fmt.Sprintf("%d+%d", g.PageSize, g.OOBSize)
	if g.MetadataOnlyBlock0 {
		s += " (metadata only block0)"
	}
	return s
}

// Layout describes how the BCH engine lays out a page and where the factory
// bad block mark ends up in the data buffer.
type Layout struct {
	Geometry

	Chunks         int // ECC chunks including block0
	Block0Size     int // data bytes in block0
	BlockNSize     int // data bytes in every other chunk
	Block0Strength int // correctable bits in block0
	BlockNStrength int // correctable bits in every other chunk
	MetadataSize   int

	// Bytes of metadata and parity, which the engine puts in front of the
	// data at the block mark's position. This is how far the last data
	// bytes are pushed into the spare area.
	EccBytes int

	// Position of the byte that lands on the factory bad block mark,
	// relative to the start of the data buffer.
	BlockMarkByteOffset int
	BlockMarkBitOffset  int

	// Offset of the first per chunk status byte in the auxiliary buffer.
	StatusOffset int
	// Size of the auxiliary buffer, i.e. metadata and status bytes.
	AuxSize int
}

// strength returns the per chunk ECC strength for a geometry. These values
// are specific to the i.MX28 BCH and the NAND devices it was qualified with.
// Compute still rejects a strength whose parity doesn't fit the spare area:
// 8192+448 needs 16*24*13 parity bits, 186 bytes more than it has, so 8 KiB
// pages need at least 634 spare bytes (e.g. 8192+640).
func strength(g Geometry) (int, bool) {
	switch g.PageSize {
	case 2048:
		return 8, true
	case 4096:
		if g.OOBSize >= 224 {
			return 16, true
		}
		return 8, true
	case 8192:
		return 24, true
	}
	return 0, false
}

// Compute calculates the layout for a geometry. It fails with
// ErrUnsupportedGeometry if there's no known ECC strength for the geometry,
// the encoded page doesn't fit into page and spare area, or the bad block mark
// would land in parity bits.
func Compute(g Geometry) (Layout, error) {
	s, ok := strength(g)
	if !ok {
		return Layout{}, fmt.Errorf("%v: no ecc strength: %w", g, ErrUnsupportedGeometry)
	}
	return compute(g, s, MetadataSize)
}

func compute(g Geometry, strength, metaSize int) (l Layout, err error) {
	if g.PageSize <= 0 || g.PageSize%ChunkSize != 0 || g.OOBSize <= 0 {
		return l, fmt.Errorf("%v: %w", g, ErrUnsupportedGeometry)
	}
	if strength <= 0 || strength > MaxStrength || strength%2 != 0 {
		return l, fmt.Errorf("%v: ecc strength %d: %w", g, strength, ErrUnsupportedGeometry)
	}

	l = Layout{
		Geometry:       g,
		Chunks:         g.PageSize / ChunkSize,
		Block0Size:     ChunkSize,
		BlockNSize:     ChunkSize,
		Block0Strength: strength,
		BlockNStrength: strength,
		MetadataSize:   metaSize,
	}
	if g.MetadataOnlyBlock0 {
		l.Chunks += 1
		l.Block0Size = 0
	}

	dataBits := ChunkSize * 8
	eccBits := strength * GaloisBits
	metaBits := metaSize * 8
	block0EccBits := l.Block0Strength * GaloisBits

	total := metaBits + g.PageSize*8 + l.Chunks*eccBits
	if total > (g.PageSize+g.OOBSize)*8 {
		return l, fmt.Errorf("%v: %d ecc bits don't fit: %w", g, total, ErrUnsupportedGeometry)
	}

	// The mark's position in the encoded bit stream minus everything in
	// front of the first data chunk.
	markBits := g.PageSize*8 - metaBits
	if g.MetadataOnlyBlock0 {
		markBits -= block0EccBits
	}

	chunk := markBits / (dataBits + eccBits)
	rem := markBits - chunk*(dataBits+eccBits)
	if rem >= dataBits {
		return l, fmt.Errorf("%v: block mark in parity of chunk %d: %w", g, chunk, ErrUnsupportedGeometry)
	}
	markBits -= chunk * eccBits

	l.BlockMarkByteOffset = markBits / 8
	l.BlockMarkBitOffset = markBits % 8
	l.EccBytes = cpu.DivRoundUp(g.PageSize*8-markBits, 8)
	l.StatusOffset = cpu.AlignUp(metaSize, 4)
	l.AuxSize = l.StatusOffset + l.Chunks
	return l, nil
}

// DataChunks returns the number of chunks carrying page data.
func (l *Layout) DataChunks() int {
	return l.PageSize / ChunkSize
}

// RawSize is the size of a page including its spare area.
func (l *Layout) RawSize() int {
	return l.PageSize + l.OOBSize
}

// StrengthOf returns the strength of chunk i.
func (l *Layout) StrengthOf(i int) int {
	if i == 0 {
		return l.Block0Strength
	}
	return l.BlockNStrength
}

// EccBitsOf returns the parity bits of chunk i.
func (l *Layout) EccBitsOf(i int) int {
	return l.StrengthOf(i) * GaloisBits
}
