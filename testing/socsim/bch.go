package socsim

import (
	"github.com/sigurn/crc8"

	"github.com/clktmr/mxs/soc/bch"
	"github.com/clktmr/mxs/soc/cpu"
)

// Dallas/Maxim 1-Wire CRC
var parityCRC8 = crc8.MakeTable(crc8.Params{0x31, 0x00, true, true, 0x00, 0xA1, "CRC-8/MAXIM"})

// bchLayout is a layout as programmed into the FLASHnLAYOUT registers.
type bchLayout struct {
	chunks    int
	meta      int
	data0     int
	dataN     int
	strength0 int
	strengthN int
	raw       int
}

func decodeLayout(l0 bch.Layout0, l1 bch.Layout1) bchLayout {
	return bchLayout{
		chunks:    int(bch.Layout0NBlocks.Get(l0)) + 1,
		meta:      int(bch.Layout0MetaSize.Get(l0)),
		data0:     int(bch.Layout0Data0Size.Get(l0)),
		dataN:     int(bch.Layout1DataNSize.Get(l1)),
		strength0: int(bch.Layout0ECC0.Get(l0)) * 2,
		strengthN: int(bch.Layout1ECCN.Get(l1)) * 2,
		raw:       int(bch.Layout1PageSize.Get(l1)),
	}
}

func (l *bchLayout) dataSize(i int) int {
	if i == 0 {
		return l.data0
	}
	return l.dataN
}

func (l *bchLayout) strength(i int) int {
	if i == 0 {
		return l.strength0
	}
	return l.strengthN
}

func (l *bchLayout) payloadSize() int {
	return l.data0 + (l.chunks-1)*l.dataN
}

func (l *bchLayout) statusOffset() int {
	return cpu.AlignUp(l.meta, 4)
}

func (l *bchLayout) auxSize() int {
	return l.statusOffset() + l.chunks
}

// span is a bit range of the encoded page belonging to a single chunk.
type span struct {
	start, meta, data, parity int // start bit and number of bits
}

func (s span) end() int { return s.start + s.meta + s.data + s.parity }

// spans returns the bit ranges of all chunks. The metadata belongs to the
// first chunk.
func (l *bchLayout) spans() []span {
	spans := make([]span, l.chunks)
	pos := 0
	for i := range spans {
		s := span{start: pos, data: l.dataSize(i) * 8, parity: l.strength(i) * bch.GaloisBits}
		if i == 0 {
			s.meta = l.meta * 8
		}
		spans[i] = s
		pos = s.end()
	}
	return spans
}

// ChunkBit returns the raw page bit holding bit n of chunk i's data.
func (l *bchLayout) chunkBit(i, n int) int {
	s := l.spans()[i]
	return s.start + s.meta + n
}

func getBit(p []byte, i int) byte { return p[i/8] >> (i % 8) & 1 }

func setBit(p []byte, i int, v byte) {
	p[i/8] = p[i/8]&^(1<<(i%8)) | v<<(i%8)
}

func copyBits(dst []byte, dpos int, src []byte, spos, n int) {
	for i := range n {
		setBit(dst, dpos+i, getBit(src, spos+i))
	}
}

// encode lays out payload and metadata the way the BCH engine writes them to
// flash. Parity bits are filled with the chunk's CRC, which is good enough to
// make them differ between chunks.
func (l *bchLayout) encode(payload, meta []byte) []byte {
	raw := make([]byte, l.raw)
	fill(raw, 0xff)

	off := 0
	for i, s := range l.spans() {
		pos := s.start
		copyBits(raw, pos, meta, 0, s.meta)
		pos += s.meta
		chunk := payload[off : off+l.dataSize(i)]
		copyBits(raw, pos, chunk, 0, s.data)
		pos += s.data
		off += len(chunk)

		crc := crc8.Init(parityCRC8)
		if i == 0 {
			crc = crc8.Update(crc, meta[:l.meta], parityCRC8)
		}
		crc = crc8.Update(crc, chunk, parityCRC8)
		crc = crc8.Complete(crc, parityCRC8)
		for b := range s.parity {
			setBit(raw, pos+b, crc>>(b%8)&1)
		}
	}
	return raw
}

// decode extracts payload, metadata and per chunk status from raw. Bits
// differing from pristine count as bitflips, a nil pristine is an erased
// page.
func (l *bchLayout) decode(raw, pristine []byte) (payload, aux []byte) {
	if pristine == nil {
		pristine = make([]byte, len(raw))
		fill(pristine, 0xff)
	}
	payload = make([]byte, l.payloadSize())
	aux = make([]byte, l.auxSize())
	status := aux[l.statusOffset():]

	off := 0
	for i, s := range l.spans() {
		flips, zeros, erased := 0, 0, true
		for b := s.start; b < s.end(); b++ {
			r, p := getBit(raw, b), getBit(pristine, b)
			if r != p {
				flips++
			}
			if r == 0 {
				zeros++
			}
			if p == 0 {
				erased = false
			}
		}

		src := raw
		switch {
		case erased && zeros <= l.strength(i):
			status[i] = bch.StatusErased
			src = nil
		case flips == 0:
			status[i] = bch.StatusClean
		case flips <= l.strength(i):
			status[i] = byte(flips)
			src = pristine
		default:
			status[i] = bch.StatusUncorrectable
		}

		chunk := payload[off : off+l.dataSize(i)]
		if src == nil {
			fill(chunk, 0xff)
			if s.meta > 0 {
				fill(aux[:l.meta], 0xff)
			}
		} else {
			copyBits(aux, 0, src, s.start, s.meta)
			copyBits(chunk, 0, src, s.start+s.meta, s.data)
		}
		off += len(chunk)
	}
	return payload, aux
}

// bchEngine is the simulated BCH block.
type bchEngine struct {
	sim  *SoC
	base uint32
}

func (b *bchEngine) layout(cs int) bchLayout {
	sel := b.sim.regs[b.base+bch.RegLayoutSelect]
	n := int(sel>>(2*cs)) & 0x3
	a0, a1 := bch.LayoutRegisters(b.base, n)
	return decodeLayout(bch.Layout0(b.sim.regs[a0]), bch.Layout1(b.sim.regs[a1]))
}

func (b *bchEngine) complete() {
	b.sim.regs[b.base+bch.RegCtrl] |= uint32(bch.CtrlCompleteIRQ)
}
