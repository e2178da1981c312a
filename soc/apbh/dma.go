// Package apbh drives the APBH DMA controller, which feeds the GPMI NAND
// controller with chains of command words.
//
// Each GPMI chip select has its own channel. A channel owns a fixed table of
// descriptor slots, which is allocated once and overwritten by every new
// chain. Only one chain may be in flight per channel.
package apbh

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/clktmr/mxs/soc"
	"github.com/clktmr/mxs/soc/cpu"
	"github.com/clktmr/mxs/soc/mmio"
)

var (
	ErrAllocation    = errors.New("descriptor table allocation failed")
	ErrInvalidState  = errors.New("invalid channel state")
	ErrLimitExceeded = errors.New("descriptor limit exceeded")
	ErrBusTimeout    = errors.New("dma timeout")
	ErrBusError      = errors.New("dma bus error")
)

// DefaultSlots is the default number of descriptor slots per channel.
const DefaultSlots = 16

// Engine is the APBH DMA controller.
type Engine struct {
	bus   mmio.Bus
	base  uint32
	regs  *registers
	mem   *cpu.Region
	slots int
	log   logrus.FieldLogger

	reset    bool
	channels [NumChannels]*Channel
}

type Option func(*Engine)

// WithSlots sets the number of descriptor slots allocated per channel.
func WithSlots(n int) Option {
	return func(e *Engine) { e.slots = n }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

// New returns the DMA engine at base. Descriptor tables are allocated from
// mem.
func New(bus mmio.Bus, base uint32, mem *cpu.Region, opts ...Option) *Engine {
	e := &Engine{
		bus:   bus,
		base:  base,
		regs:  newRegisters(bus, base),
		mem:   mem,
		slots: DefaultSlots,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		e.log = l
	}
	e.log = e.log.WithField("component", "apbh")
	return e
}

// Init resets the channel and allocates its descriptor table. The whole
// block is reset on first use. Calling Init on an initialized channel
// returns the existing channel after resetting it.
func (e *Engine) Init(id int) (*Channel, error) {
	if id < 0 || id >= NumChannels {
		return nil, fmt.Errorf("channel %d: %w", id, ErrInvalidState)
	}

	if !e.reset {
		if err := soc.ResetBlock(mmio.NewR32[uint32](e.bus, e.base+RegCtrl0)); err != nil {
			return nil, err
		}
		e.reset = true
	}

	c := e.channels[id]
	if c == nil {
		table, addr, err := e.mem.Reserve(e.slots*CCWSize, cpu.PageSize)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w: %w", id, ErrAllocation, err)
		}
		c = &Channel{
			id:        id,
			e:         e,
			regs:      newChannelRegisters(e.bus, e.base, id),
			table:     table,
			tableAddr: addr,
			slots:     make([]slot, e.slots),
			log:       e.log.WithField("channel", id),
		}
		e.channels[id] = c
	}

	if err := c.resetHardware(); err != nil {
		return nil, err
	}
	e.regs.ctrl1.Set(Ctrl1CmdCmpltIRQEn.Bit(id))
	c.status = Idle
	c.n = 0

	e.log.WithFields(logrus.Fields{
		"channel": id,
		"table":   fmt.Sprintf("%#08x", c.tableAddr),
		"slots":   e.slots,
	}).Debug("channel initialized")
	return c, nil
}

// Channel returns the initialized channel id or nil.
func (e *Engine) Channel(id int) *Channel {
	if id < 0 || id >= NumChannels {
		return nil
	}
	return e.channels[id]
}
