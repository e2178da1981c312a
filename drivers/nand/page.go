package nand

import (
	"fmt"
	"sync"

	"github.com/clktmr/mxs/soc/apbh"
	"github.com/clktmr/mxs/soc/bch"
	"github.com/clktmr/mxs/soc/gpmi"
)

// eccPIO returns the PIO words of a page transfer through the BCH engine.
func (d *NAND) eccPIO(mode gpmi.Mode, cs int, eccCmd uint32) []uint32 {
	raw := d.layout.RawSize()
	return []uint32{
		gpmi.PIOCtrl0(mode, cs, gpmi.AddressData, raw),
		0, // compare
		gpmi.PIOECCCtrl(eccCmd, gpmi.BufferMaskPage),
		uint32(raw),
		uint32(d.buf.DataAddr),
		uint32(d.buf.AuxAddr),
	}
}

func waitForReady(cs int) apbh.Desc {
	return apbh.Desc{
		PIO:   []uint32{gpmi.PIOWaitForReady(cs)},
		Flags: apbh.CmdNandLock | apbh.CmdNandWait4Ready,
	}
}

// ReadFullPage transfers the page addressed by the last read command from
// the selected chip's cache register through the BCH engine. The corrected
// data is copied to data and the free spare bytes to oob, both may be nil.
// A non-nil data must hold a full page. The rest of oob is filled with 0xff.
//
// If any chunk was uncorrectable the returned error wraps
// ErrEccUncorrectable. The buffers are still filled with the raw data of the
// failed chunks.
func (d *NAND) ReadFullPage(data, oob []byte) (EccStats, error) {
	ch, cs, err := d.current()
	if err != nil {
		return EccStats{}, err
	}
	l := &d.layout
	if data != nil && len(data) < l.PageSize {
		return EccStats{}, fmt.Errorf("read page: %d bytes: %w", len(data), ErrOutOfRange)
	}
	page := d.buf.Data[:l.PageSize]
	aux := d.buf.Aux[:l.AuxSize]

	d.buf.PublishToDevice(page)
	d.buf.PublishToDevice(aux)

	err = ch.Enqueue(waitForReady(cs), false)
	if err == nil {
		err = ch.Enqueue(apbh.Desc{
			PIO:   d.eccPIO(gpmi.ModeRead, cs, gpmi.ECCDecode),
			Flags: apbh.CmdNandLock,
		}, true)
	}
	if err == nil {
		err = ch.Enqueue(waitForReady(cs), true)
	}
	if err != nil {
		ch.Terminate()
		return EccStats{}, err
	}
	if err := d.submit(ch, d.bch); err != nil {
		return EccStats{}, fmt.Errorf("read page: %w", err)
	}

	d.buf.PublishToCPU(page)
	d.buf.PublishToCPU(aux)
	d.m.reads.Inc(1)

	stats := parseStatus(aux[l.StatusOffset:l.AuxSize])
	d.account(stats)

	if !d.cfg.DisableBlockMarkSwap {
		SwapBlockMark(page, aux, l.BlockMarkByteOffset, l.BlockMarkBitOffset)
	}

	if data != nil {
		copy(data, page)
	}
	if oob != nil {
		for i := range oob {
			oob[i] = 0xff
		}
		copy(oob, aux[:l.MetadataSize])
	}

	if stats.Failed > 0 {
		d.log.WithField("failed", stats.Failed).Warn("uncorrectable page")
		return stats, fmt.Errorf("%d chunks: %w", stats.Failed, ErrEccUncorrectable)
	}
	return stats, nil
}

// WriteFullPage transfers data and the free spare bytes in oob through the
// BCH engine to the selected chip's cache register. A nil oob writes 0xff.
// The page must be committed by the program command afterwards.
func (d *NAND) WriteFullPage(data, oob []byte) error {
	ch, cs, err := d.current()
	if err != nil {
		return err
	}
	l := &d.layout
	if len(data) < l.PageSize {
		return fmt.Errorf("write page: %d bytes: %w", len(data), ErrOutOfRange)
	}
	page := d.buf.Data[:l.PageSize]
	aux := d.buf.Aux[:l.AuxSize]

	for i := range aux {
		aux[i] = oobFill
	}
	meta := aux[:l.MetadataSize]
	for i := range meta {
		meta[i] = 0xff
	}
	copy(meta, oob)
	copy(page, data)

	if !d.cfg.DisableBlockMarkSwap {
		SwapBlockMark(page, aux, l.BlockMarkByteOffset, l.BlockMarkBitOffset)
	}

	d.buf.PublishToDevice(page)
	d.buf.PublishToDevice(aux)

	err = ch.Enqueue(apbh.Desc{
		PIO:   d.eccPIO(gpmi.ModeWrite, cs, gpmi.ECCEncode),
		Flags: apbh.CmdNandLock,
	}, false)
	if err != nil {
		return err
	}
	if err := d.submit(ch, d.bch); err != nil {
		return fmt.Errorf("write page: %w", err)
	}
	d.m.writes.Inc(1)
	return nil
}

var (
	layoutMu    sync.Mutex
	layoutCache = map[bch.Geometry]bch.Layout{}
)

// layoutFor returns the layout for g, computing it only once per geometry.
func layoutFor(g bch.Geometry) (bch.Layout, error) {
	layoutMu.Lock()
	defer layoutMu.Unlock()
	if l, ok := layoutCache[g]; ok {
		return l, nil
	}
	l, err := bch.Compute(g)
	if err != nil {
		return l, err
	}
	layoutCache[g] = l
	return l, nil
}
