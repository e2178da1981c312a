package apbh

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clktmr/mxs/debug"
	"github.com/clktmr/mxs/soc"
	"github.com/clktmr/mxs/soc/cpu"
)

// Status of a channel.
type Status uint8

const (
	Idle       Status = iota // ready for a new chain
	InProgress               // chain is being built or executed
	Error                    // last chain failed, ready for a new chain
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case InProgress:
		return "in progress"
	case Error:
		return "error"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

const resetTimeout = 10 * time.Millisecond

// Completion is implemented by peripherals which finish their part of a
// transaction independently of the DMA, e.g. the BCH engine writing back
// decoded data.
type Completion interface {
	Done() bool
	Ack()
}

type slot struct {
	ccw   CCW
	flags Command // flags requested by the Desc
}

// Channel is a single APBH DMA channel with its descriptor table.
type Channel struct {
	id   int
	e    *Engine
	regs channelRegisters
	log  logrus.FieldLogger

	table     []byte // descriptor table in DMA memory
	tableAddr cpu.Addr
	slots     []slot
	n         int // next free slot

	status Status
}

func (c *Channel) ID() int { return c.id }

func (c *Channel) Status() Status { return c.status }

// Len returns the number of CCWs in the current chain.
func (c *Channel) Len() int { return c.n }

// Cap returns the number of descriptor slots.
func (c *Channel) Cap() int { return len(c.slots) }

func (c *Channel) slotAddr(i int) cpu.Addr {
	return c.tableAddr + cpu.Addr(i*CCWSize)
}

// Enqueue writes d into the next descriptor slot. With append set to false a
// new chain is started in the first slot, which fails if the channel is in
// progress. With append set to true d is linked to the previous CCW of the
// current chain, which fails if there is no chain. The last CCW of a chain
// always carries the flags to stop the channel and signal completion.
func (c *Channel) Enqueue(d Desc, append bool) error {
	if append {
		if c.status != InProgress {
			return fmt.Errorf("channel %d: append to %v channel: %w", c.id, c.status, ErrInvalidState)
		}
	} else if c.status == InProgress {
		return fmt.Errorf("channel %d: new chain on busy channel: %w", c.id, ErrInvalidState)
	}

	if len(d.PIO) > MaxPIOWords {
		return fmt.Errorf("channel %d: %d pio words: %w", c.id, len(d.PIO), ErrLimitExceeded)
	}
	if d.Len < 0 || d.Len > MaxTransfer {
		return fmt.Errorf("channel %d: transfer of %d bytes: %w", c.id, d.Len, ErrLimitExceeded)
	}
	if (d.Dir == None) != (d.Len == 0) {
		return fmt.Errorf("channel %d: transfer of %d bytes without direction: %w", c.id, d.Len, ErrInvalidState)
	}

	n := 0
	if append {
		n = c.n
	}
	if n >= len(c.slots) {
		return fmt.Errorf("channel %d: %d slots: %w", c.id, len(c.slots), ErrLimitExceeded)
	}

	s := &c.slots[n]
	s.flags = d.Flags
	s.ccw = CCW{
		Cmd: d.Dir.command() | d.Flags | terminalFlags |
			CmdPIOWords.Val(uint32(len(d.PIO))) |
			CmdXferCount.Val(uint32(d.Len)),
	}
	if d.Dir != None {
		s.ccw.Buffer = d.Buffer
	}
	copy(s.ccw.PIO[:], d.PIO)

	if append {
		prev := &c.slots[n-1]
		prev.ccw.Cmd = prev.ccw.Cmd&^terminalFlags | prev.flags&terminalFlags | CmdChain
		prev.ccw.Next = c.slotAddr(n)
	}

	c.n = n + 1
	c.status = InProgress
	return nil
}

// EnqueuePIO enqueues a CCW without data transfer, which only writes words
// to the peripheral's registers.
func (c *Channel) EnqueuePIO(words []uint32, append bool) error {
	return c.Enqueue(Desc{PIO: words}, append)
}

// EnqueueTransfer enqueues a CCW transferring length bytes from or to buf.
func (c *Channel) EnqueueTransfer(buf cpu.Addr, length int, dir Direction, append bool) error {
	return c.Enqueue(Desc{Buffer: buf, Len: length, Dir: dir}, append)
}

// SubmitAndWait starts the current chain and busy waits for its completion.
// If secondary isn't nil, it must complete too before the deadline. On any
// failure the channel is reset and left in state Error, which accepts a new
// chain.
func (c *Channel) SubmitAndWait(secondary Completion, timeout time.Duration) error {
	if c.status != InProgress {
		return fmt.Errorf("channel %d: submit %v channel: %w", c.id, c.status, ErrInvalidState)
	}
	debug.Assert(c.n > 0 && c.n <= len(c.slots), "descriptor index out of bounds")
	if debug.Enabled {
		for i := range c.n - 1 {
			debug.Assert(c.slots[i].ccw.Cmd&CmdChain != 0, "unlinked descriptor")
		}
		debug.Assert(c.slots[c.n-1].ccw.Cmd&CmdDecSem != 0, "chain never stops")
	}

	for i := range c.n {
		c.slots[i].ccw.MarshalTo(c.table[i*CCWSize:])
		c.log.WithField("slot", i).Debug(c.slots[i].ccw.String())
	}
	c.e.mem.Writeback(c.table[:c.n*CCWSize])

	regs := c.e.regs
	irq := Ctrl1CmdCmpltIRQ.Bit(c.id)
	errIrq := Ctrl2ErrorIRQ.Bit(c.id)
	regs.ctrl1.Clear(irq)
	regs.ctrl2.Clear(errIrq)
	if secondary != nil {
		secondary.Ack()
	}

	c.regs.nxtCmdAr.Store(uint32(c.slotAddr(0)))
	c.regs.sema.Store(SemaIncrement.Val(1))

	deadline := time.Now().Add(timeout)
	busErr := false
	err := soc.PollUntil(deadline, func() bool {
		if regs.ctrl2.LoadBits(errIrq) != 0 {
			busErr = true
			return true
		}
		return regs.ctrl1.LoadBits(irq) != 0
	})
	switch {
	case err != nil:
		err = ErrBusTimeout
	case busErr:
		err = ErrBusError
	case secondary != nil:
		if soc.PollUntil(deadline, secondary.Done) != nil {
			err = fmt.Errorf("secondary completion: %w", ErrBusTimeout)
		} else {
			secondary.Ack()
		}
	}

	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"ccws":    c.n,
			"current": fmt.Sprintf("%#08x", c.regs.curCmdAr.Load()),
		}).Warn("chain aborted")
		c.abort()
		c.status = Error
		return fmt.Errorf("channel %d: %w", c.id, err)
	}

	regs.ctrl1.Clear(irq)
	c.n = 0
	c.status = Idle
	return nil
}

// Terminate aborts any chain on the channel and returns it to Idle. It's a
// no-op on an idle channel.
func (c *Channel) Terminate() {
	if c.status == Idle {
		return
	}
	c.abort()
	c.status = Idle
}

func (c *Channel) abort() {
	if err := c.resetHardware(); err != nil {
		c.log.WithError(err).Error("channel reset")
	}
}

func (c *Channel) resetHardware() error {
	regs := c.e.regs
	regs.ctrl0.Clear(Ctrl0ClkgateChannel.Bit(c.id))

	rst := ChannelCtrlReset.Bit(c.id)
	regs.channelCtrl.Set(rst)
	err := soc.Poll(resetTimeout, func() bool { return regs.channelCtrl.LoadBits(rst) == 0 })

	regs.ctrl1.Clear(Ctrl1CmdCmpltIRQ.Bit(c.id))
	regs.ctrl2.Clear(Ctrl2ErrorIRQ.Bit(c.id))
	c.n = 0
	if err != nil {
		return fmt.Errorf("channel %d: reset: %w", c.id, err)
	}
	return nil
}
