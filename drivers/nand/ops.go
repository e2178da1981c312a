package nand

import (
	"fmt"

	"github.com/clktmr/mxs/soc"
)

// ONFI commands
const (
	CmdRead0       = 0x00
	CmdReadStart   = 0x30
	CmdSeqIn       = 0x80
	CmdPageProgram = 0x10
	CmdErase1      = 0x60
	CmdErase2      = 0xd0
	CmdStatus      = 0x70
	CmdReadID      = 0x90
	CmdReset       = 0xff
)

// Status register bits
const (
	StatusFail  = 1 << 0
	StatusReady = 1 << 6
	StatusWP    = 1 << 7 // not write protected
)

// IDLen is the number of ID bytes returned by ReadID.
const IDLen = 5

func (d *NAND) waitReady() error {
	if err := soc.Poll(d.cfg.Timeout, d.Ready); err != nil {
		return fmt.Errorf("chip %d: %w", d.cs, ErrReadyTimeout)
	}
	return nil
}

func rowAddr(row int) []byte {
	return []byte{byte(row), byte(row >> 8), byte(row >> 16)}
}

func pageAddr(page int) []byte {
	return append([]byte{0, 0}, rowAddr(page)...)
}

func (d *NAND) checkPage(page int) error {
	if page < 0 || page >= d.cfg.Geometry.Pages() {
		return fmt.Errorf("page %d: %w", page, ErrOutOfRange)
	}
	return nil
}

// Reset resets the selected chip and waits until it's ready.
func (d *NAND) Reset() error {
	if err := d.command(CmdReset); err != nil {
		return err
	}
	return d.waitReady()
}

// ReadID returns the ID bytes of the selected chip.
func (d *NAND) ReadID() ([]byte, error) {
	if err := d.command(CmdReadID, 0x00); err != nil {
		return nil, err
	}
	id := make([]byte, IDLen)
	if err := d.ReadBytes(id); err != nil {
		return nil, err
	}
	return id, nil
}

// Status returns the status register of the selected chip.
func (d *NAND) Status() (byte, error) {
	if err := d.command(CmdStatus); err != nil {
		return 0, err
	}
	var b [1]byte
	if err := d.ReadBytes(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadPage reads page from the selected chip, see ReadFullPage.
func (d *NAND) ReadPage(page int, data, oob []byte) (EccStats, error) {
	if err := d.checkPage(page); err != nil {
		return EccStats{}, err
	}
	if err := d.command(CmdRead0, pageAddr(page)...); err != nil {
		return EccStats{}, err
	}
	if err := d.command(CmdReadStart); err != nil {
		return EccStats{}, err
	}
	stats, err := d.ReadFullPage(data, oob)
	if err != nil {
		return stats, fmt.Errorf("page %d: %w", page, err)
	}
	return stats, nil
}

// ProgramPage writes data and the free spare bytes in oob to page of the
// selected chip. The page must be erased.
func (d *NAND) ProgramPage(page int, data, oob []byte) error {
	if err := d.checkPage(page); err != nil {
		return err
	}
	if err := d.command(CmdSeqIn, pageAddr(page)...); err != nil {
		return err
	}
	if err := d.WriteFullPage(data, oob); err != nil {
		return fmt.Errorf("page %d: %w", page, err)
	}
	if err := d.command(CmdPageProgram); err != nil {
		return err
	}
	if err := d.waitReady(); err != nil {
		return err
	}
	st, err := d.Status()
	if err != nil {
		return err
	}
	if st&StatusFail != 0 {
		return fmt.Errorf("page %d: %w", page, ErrProgramFailed)
	}
	return nil
}

// EraseBlock erases block of the selected chip.
func (d *NAND) EraseBlock(block int) error {
	if block < 0 || block >= d.cfg.Geometry.Blocks {
		return fmt.Errorf("block %d: %w", block, ErrOutOfRange)
	}
	if err := d.command(CmdErase1, rowAddr(block*d.cfg.Geometry.PagesPerBlock)...); err != nil {
		return err
	}
	if err := d.command(CmdErase2); err != nil {
		return err
	}
	if err := d.waitReady(); err != nil {
		return err
	}
	st, err := d.Status()
	if err != nil {
		return err
	}
	if st&StatusFail != 0 {
		return fmt.Errorf("block %d: %w", block, ErrEraseFailed)
	}
	d.m.erases.Inc(1)
	return nil
}
