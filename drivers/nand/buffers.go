package nand

import (
	"github.com/clktmr/mxs/soc/bch"
	"github.com/clktmr/mxs/soc/cpu"
)

// Pattern written to the spare bytes which aren't handed to the caller. It
// must differ from erased flash.
const oobFill = 0xa5

// PageBuffers are the DMA buffers used for page and command transfers. They
// are allocated once and must not be touched while a transfer referencing
// them is in flight.
type PageBuffers struct {
	mem *cpu.Region

	Data     []byte // page and spare area
	DataAddr cpu.Addr
	Aux      []byte // metadata and per chunk status bytes
	AuxAddr  cpu.Addr
	Cmd      []byte // command and address bytes
	CmdAddr  cpu.Addr
}

func newPageBuffers(mem *cpu.Region, l *bch.Layout) (b *PageBuffers, err error) {
	b = &PageBuffers{mem: mem}
	b.Data, b.DataAddr, err = mem.Reserve(l.RawSize(), cpu.CacheLineSize)
	if err != nil {
		return nil, err
	}
	b.Aux, b.AuxAddr, err = mem.Reserve(max(l.AuxSize, l.OOBSize), cpu.CacheLineSize)
	if err != nil {
		return nil, err
	}
	b.Cmd, b.CmdAddr, err = mem.Reserve(maxCommandBytes, cpu.CacheLineSize)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// PublishToDevice makes the CPU's writes to p visible to the DMA. It must
// also be called before the DMA writes to p, so dirty cache lines can't
// overwrite the transferred data later.
func (b *PageBuffers) PublishToDevice(p []byte) { b.mem.Writeback(p) }

// PublishToCPU makes DMA writes to p visible to the CPU.
func (b *PageBuffers) PublishToCPU(p []byte) { b.mem.Invalidate(p) }
