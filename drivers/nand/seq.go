package nand

import (
	"fmt"

	"github.com/clktmr/mxs/soc/apbh"
	"github.com/clktmr/mxs/soc/gpmi"
)

// maxCommandBytes is the size of the command buffer, enough for a command
// byte and any address cycle sequence.
const maxCommandBytes = 16

// NoByte is passed to Latch to end a command sequence without latching a
// byte.
const NoByte = -1

// Ctrl selects the bus cycle type of latched bytes.
type Ctrl uint8

const (
	CtrlCLE Ctrl = 1 << iota // command latch enable
	CtrlALE                  // address latch enable
)

type seqState uint8

const (
	seqIdle seqState = iota
	seqAccumulating
)

// sequencer collects command and address bytes of one chip select until the
// command sequence ends.
type sequencer struct {
	state seqState
	buf   [maxCommandBytes]byte
	n     int
}

// Latch feeds the command sequencer of the selected chip. With CtrlCLE or
// CtrlALE set, b is appended to the pending command sequence. Without both,
// the pending sequence is sent to the chip in a single DMA transfer. The
// first byte is latched as command and all following as address bytes.
//
// A sequence longer than the command buffer is a programming error and
// panics.
func (d *NAND) Latch(b int, ctrl Ctrl) error {
	ch, cs, err := d.current()
	if err != nil {
		return err
	}
	s := &d.seq[cs]

	if ctrl&(CtrlCLE|CtrlALE) != 0 {
		if b == NoByte {
			return nil
		}
		if s.n >= maxCommandBytes {
			panic(fmt.Sprintf("nand: command sequence exceeds %d bytes", maxCommandBytes))
		}
		s.buf[s.n] = byte(b)
		s.n++
		s.state = seqAccumulating
		return nil
	}

	if s.state == seqIdle || s.n == 0 {
		return nil
	}
	n := s.n
	s.n = 0
	s.state = seqIdle

	cmd := d.buf.Cmd[:n]
	copy(cmd, s.buf[:n])
	d.buf.PublishToDevice(cmd)
	err = ch.Enqueue(apbh.Desc{
		PIO:    plainPIO(gpmi.PIOCommand(cs, n)),
		Buffer: d.buf.CmdAddr,
		Len:    n,
		Dir:    apbh.ToDevice,
		Flags:  apbh.CmdNandLock,
	}, false)
	if err != nil {
		return err
	}
	if err := d.submit(ch, nil); err != nil {
		return fmt.Errorf("command %#02x: %w", cmd[0], err)
	}
	return nil
}

// command sends a command byte followed by address bytes.
func (d *NAND) command(cmd byte, addr ...byte) error {
	if err := d.Latch(int(cmd), CtrlCLE); err != nil {
		return err
	}
	for _, a := range addr {
		if err := d.Latch(int(a), CtrlALE); err != nil {
			return err
		}
	}
	return d.Latch(NoByte, 0)
}
