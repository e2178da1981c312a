package nand

import (
	"fmt"
	"math/bits"

	"github.com/sirupsen/logrus"
)

// BBT is a bad block table with one bit per erase block.
type BBT struct {
	chips  int
	blocks int
	bits   []uint64
}

func newBBT(chips, blocks int) *BBT {
	return &BBT{
		chips:  chips,
		blocks: blocks,
		bits:   make([]uint64, (chips*blocks+63)/64),
	}
}

func (t *BBT) index(chip, block int) int { return chip*t.blocks + block }

// IsBad reports if block of chip is marked bad.
func (t *BBT) IsBad(chip, block int) bool {
	i := t.index(chip, block)
	return t.bits[i/64]&(1<<(i%64)) != 0
}

// Mark marks block of chip as bad.
func (t *BBT) Mark(chip, block int) {
	i := t.index(chip, block)
	t.bits[i/64] |= 1 << (i % 64)
}

// Count returns the number of bad blocks.
func (t *BBT) Count() (n int) {
	for _, w := range t.bits {
		n += bits.OnesCount64(w)
	}
	return n
}

// BBT returns the table built by the last ScanBadBlocks or nil.
func (d *NAND) BBT() *BBT { return d.bbt }

// ScanBadBlocks checks the factory bad block mark of every erase block on
// all chips. A block is bad if the first spare byte of its first page isn't
// 0xff. The mark is read raw, as ECC reads of factory bad blocks are likely
// to fail. The chip selection is restored afterwards.
func (d *NAND) ScanBadBlocks() (*BBT, error) {
	g := d.cfg.Geometry
	t := newBBT(d.cfg.Chips, g.Blocks)

	prev := d.cs
	defer d.Select(prev)

	for chip := range d.cfg.Chips {
		if err := d.Select(chip); err != nil {
			return nil, err
		}
		for block := range g.Blocks {
			mark, err := d.readMark(block * g.PagesPerBlock)
			if err != nil {
				return nil, fmt.Errorf("chip %d block %d: %w", chip, block, err)
			}
			if mark != 0xff {
				t.Mark(chip, block)
				d.log.WithFields(logrus.Fields{"chip": chip, "block": block}).Info("bad block")
			}
		}
	}
	d.bbt = t
	return t, nil
}

// readMark reads the first spare byte of page without ECC.
func (d *NAND) readMark(page int) (byte, error) {
	col := d.cfg.Geometry.PageSize
	addr := append([]byte{byte(col), byte(col >> 8)}, rowAddr(page)...)
	if err := d.command(CmdRead0, addr...); err != nil {
		return 0, err
	}
	if err := d.command(CmdReadStart); err != nil {
		return 0, err
	}
	if err := d.waitReady(); err != nil {
		return 0, err
	}
	var b [1]byte
	if err := d.ReadBytes(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}
