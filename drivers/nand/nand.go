// Package nand implements a raw NAND flash driver for the GPMI controller.
//
// The driver combines the APBH DMA, the GPMI command sequencer and the BCH
// engine into transactions on whole pages. It exposes the primitives a NAND
// framework needs: chip selection, ready/busy, command and address latching,
// byte I/O and page I/O with hardware ECC. On top of these it provides the
// basic read, program and erase operations and a bad block scan.
//
// Retry and bad block policies are left to the caller. ECC failures are
// reported with per chunk counts.
//
// NAND is not safe for concurrent use.
package nand

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/clktmr/mxs/soc/apbh"
	"github.com/clktmr/mxs/soc/bch"
	"github.com/clktmr/mxs/soc/cpu"
	"github.com/clktmr/mxs/soc/gpmi"
	"github.com/clktmr/mxs/soc/mmio"
)

var (
	ErrNoChip           = errors.New("no chip selected")
	ErrEccUncorrectable = errors.New("uncorrectable ecc error")
	ErrProgramFailed    = errors.New("program failed")
	ErrEraseFailed      = errors.New("erase failed")
	ErrReadyTimeout     = errors.New("timeout waiting for ready")
	ErrOutOfRange       = errors.New("address out of range")
)

type NAND struct {
	cfg Config
	log logrus.FieldLogger

	dma      *apbh.Engine
	gpmi     *gpmi.Controller
	bch      *bch.Controller
	channels []*apbh.Channel // one per chip select

	layout bch.Layout
	buf    *PageBuffers

	cs  int // selected chip or -1
	seq []sequencer

	stats EccStats
	m     counters
	bbt   *BBT
}

// New initializes the NAND controller on bus and allocates all DMA memory
// from mem.
func New(bus mmio.Bus, mem *cpu.Region, cfg Config) (*NAND, error) {
	cfg, err := withDefaults(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.Logger = l
	}

	layout, err := layoutFor(bch.Geometry{
		PageSize:           cfg.Geometry.PageSize,
		OOBSize:            cfg.Geometry.OOBSize,
		MetadataOnlyBlock0: cfg.MetadataOnlyBlock0,
	})
	if err != nil {
		return nil, err
	}

	d := &NAND{
		cfg:    cfg,
		log:    cfg.Logger.WithField("component", "nand"),
		dma:    apbh.New(bus, cfg.APBHBase, mem, apbh.WithSlots(cfg.Slots), apbh.WithLogger(cfg.Logger)),
		gpmi:   gpmi.New(bus, cfg.GPMIBase),
		bch:    bch.New(bus, cfg.BCHBase),
		layout: layout,
		cs:     -1,
		seq:    make([]sequencer, cfg.Chips),
		m:      newCounters(cfg.Metrics),
	}

	if err := d.gpmi.Init(cfg.Timing); err != nil {
		return nil, err
	}
	if err := d.bch.Init(); err != nil {
		return nil, err
	}
	if err := d.bch.Program(0, layout); err != nil {
		return nil, err
	}
	for cs := range cfg.Chips {
		ch, err := d.dma.Init(cs)
		if err != nil {
			return nil, err
		}
		d.channels = append(d.channels, ch)
	}

	d.buf, err = newPageBuffers(mem, &layout)
	if err != nil {
		return nil, err
	}

	d.log.WithFields(logrus.Fields{
		"geometry":  layout.Geometry.String(),
		"chunks":    layout.Chunks,
		"strength":  layout.BlockNStrength,
		"markByte":  layout.BlockMarkByteOffset,
		"markBit":   layout.BlockMarkBitOffset,
		"chips":     cfg.Chips,
		"swapMarks": !cfg.DisableBlockMarkSwap,
	}).Info("nand initialized")
	return d, nil
}

// Layout returns the ECC layout in use.
func (d *NAND) Layout() bch.Layout { return d.layout }

// Geometry returns the configured device geometry.
func (d *NAND) Geometry() Geometry { return d.cfg.Geometry }

// Chips returns the number of chip selects in use.
func (d *NAND) Chips() int { return d.cfg.Chips }

// Select makes chip cs the target of all following operations. A negative cs
// deselects all chips.
func (d *NAND) Select(cs int) error {
	if cs >= d.cfg.Chips {
		return fmt.Errorf("select chip %d: %w", cs, ErrOutOfRange)
	}
	d.cs = max(cs, -1)
	return nil
}

// Selected returns the selected chip or -1.
func (d *NAND) Selected() int { return d.cs }

// Ready reports the ready/busy line of the selected chip. It's false if no
// chip is selected.
func (d *NAND) Ready() bool {
	if d.cs < 0 {
		return false
	}
	return d.gpmi.Ready(d.cs)
}

func (d *NAND) current() (*apbh.Channel, int, error) {
	if d.cs < 0 {
		return nil, 0, ErrNoChip
	}
	return d.channels[d.cs], d.cs, nil
}

// submit runs the chain on ch and records DMA failures.
func (d *NAND) submit(ch *apbh.Channel, secondary apbh.Completion) error {
	err := ch.SubmitAndWait(secondary, d.cfg.Timeout)
	switch {
	case errors.Is(err, apbh.ErrBusTimeout):
		d.m.timeouts.Inc(1)
	case errors.Is(err, apbh.ErrBusError):
		d.m.busErrors.Inc(1)
	}
	return err
}

// plainPIO returns the PIO words for a transfer without ECC. ECCCTRL must be
// cleared explicitly, it keeps its value from previous page transfers.
func plainPIO(ctrl0 uint32) []uint32 {
	return []uint32{ctrl0, 0, 0}
}

// ReadBytes reads len(p) bytes from the selected chip's data output.
func (d *NAND) ReadBytes(p []byte) error {
	ch, cs, err := d.current()
	if err != nil {
		return err
	}
	for len(p) > 0 {
		n := min(len(p), len(d.buf.Data), apbh.MaxTransfer)
		scratch := d.buf.Data[:n]

		d.buf.PublishToDevice(scratch)
		err := ch.Enqueue(apbh.Desc{
			PIO:    plainPIO(gpmi.PIOCtrl0(gpmi.ModeRead, cs, gpmi.AddressData, n)),
			Buffer: d.buf.DataAddr,
			Len:    n,
			Dir:    apbh.FromDevice,
			Flags:  apbh.CmdNandLock,
		}, false)
		if err != nil {
			return err
		}
		if err := d.submit(ch, nil); err != nil {
			return fmt.Errorf("read %d bytes: %w", n, err)
		}
		d.buf.PublishToCPU(scratch)

		p = p[copy(p, scratch):]
	}
	return nil
}

// WriteBytes writes p to the selected chip's data input.
func (d *NAND) WriteBytes(p []byte) error {
	ch, cs, err := d.current()
	if err != nil {
		return err
	}
	for len(p) > 0 {
		n := min(len(p), len(d.buf.Data), apbh.MaxTransfer)
		scratch := d.buf.Data[:n]
		copy(scratch, p)

		d.buf.PublishToDevice(scratch)
		err := ch.Enqueue(apbh.Desc{
			PIO:    plainPIO(gpmi.PIOCtrl0(gpmi.ModeWrite, cs, gpmi.AddressData, n)),
			Buffer: d.buf.DataAddr,
			Len:    n,
			Dir:    apbh.ToDevice,
			Flags:  apbh.CmdNandLock,
		}, false)
		if err != nil {
			return err
		}
		if err := d.submit(ch, nil); err != nil {
			return fmt.Errorf("write %d bytes: %w", n, err)
		}

		p = p[n:]
	}
	return nil
}
