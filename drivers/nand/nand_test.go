package nand_test

import (
	"bytes"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clktmr/mxs/drivers/nand"
	"github.com/clktmr/mxs/soc/apbh"
	"github.com/clktmr/mxs/soc/bch"
	"github.com/clktmr/mxs/testing/socsim"
)

var geometry = nand.Geometry{
	PageSize:      2048,
	OOBSize:       64,
	PagesPerBlock: 8,
	Blocks:        8,
}

func newNAND(t *testing.T, cfg nand.Config) (*socsim.SoC, *nand.NAND) {
	t.Helper()
	if cfg.Geometry == (nand.Geometry{}) {
		cfg.Geometry = geometry
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 100 * time.Millisecond
	}
	g := cfg.Geometry
	sim := socsim.New(socsim.Config{
		Geometry: socsim.Geometry{
			PageSize:      g.PageSize,
			OOBSize:       g.OOBSize,
			PagesPerBlock: g.PagesPerBlock,
			Blocks:        g.Blocks,
		},
		Chips: max(cfg.Chips, 1),
	})
	d, err := nand.New(sim, sim.Memory().Region(), cfg)
	require.NoError(t, err)
	require.NoError(t, d.Select(0))
	require.NoError(t, d.Reset())
	return sim, d
}

func randomPage(rng *rand.Rand, n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(rng.Uint32())
	}
	return p
}

func counter(r metrics.Registry, name string) int64 {
	return r.Get(name).(metrics.Counter).Count()
}

func TestReadID(t *testing.T) {
	_, d := newNAND(t, nand.Config{})
	id, err := d.ReadID()
	require.NoError(t, err)
	assert.Equal(t, socsim.DefaultID, id)

	st, err := d.Status()
	require.NoError(t, err)
	assert.Equal(t, byte(nand.StatusReady|nand.StatusWP), st)
}

func TestNoChip(t *testing.T) {
	_, d := newNAND(t, nand.Config{})
	require.NoError(t, d.Select(-1))
	assert.False(t, d.Ready())
	assert.ErrorIs(t, d.ReadBytes(make([]byte, 4)), nand.ErrNoChip)
	assert.ErrorIs(t, d.Latch(nand.CmdStatus, nand.CtrlCLE), nand.ErrNoChip)
	_, err := d.ReadFullPage(nil, nil)
	assert.ErrorIs(t, err, nand.ErrNoChip)

	assert.ErrorIs(t, d.Select(1), nand.ErrOutOfRange)
}

func TestRoundtrip(t *testing.T) {
	tests := map[string]nand.Config{
		"2048+64":           {},
		"2048+128 block0":   {Geometry: nand.Geometry{PageSize: 2048, OOBSize: 128, PagesPerBlock: 8, Blocks: 4}, MetadataOnlyBlock0: true},
		"4096+224":          {Geometry: nand.Geometry{PageSize: 4096, OOBSize: 224, PagesPerBlock: 4, Blocks: 4}},
		"2048+64 no swap":   {DisableBlockMarkSwap: true},
		"2048+64 two chips": {Chips: 2},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			sim, d := newNAND(t, cfg)
			l := d.Layout()
			g := d.Geometry()
			rng := rand.New(rand.NewPCG(1, 2))

			cs := d.Chips() - 1
			require.NoError(t, d.Select(cs))
			data := randomPage(rng, g.PageSize)
			oob := randomPage(rng, g.OOBSize)
			page := g.PagesPerBlock + 1
			require.NoError(t, d.EraseBlock(1))
			require.NoError(t, d.ProgramPage(page, data, oob))

			// correctable bitflips in the last two chunks
			sim.Chip(cs).FlipBits(page,
				sim.ChunkBit(cs, l.Chunks-2, 0), sim.ChunkBit(cs, l.Chunks-2, 100), sim.ChunkBit(cs, l.Chunks-2, 3000),
				sim.ChunkBit(cs, l.Chunks-1, 7), sim.ChunkBit(cs, l.Chunks-1, 8))

			rdata := make([]byte, g.PageSize)
			roob := make([]byte, g.OOBSize)
			stats, err := d.ReadPage(page, rdata, roob)
			require.NoError(t, err)
			assert.Equal(t, 0, stats.Failed)
			assert.Equal(t, 5, stats.Corrected)
			assert.Equal(t, 3, stats.MaxBitflips)

			if !bytes.Equal(data, rdata) {
				t.Fatal("expected to read same data back that was written")
			}
			assert.Equal(t, oob[:l.MetadataSize], roob[:l.MetadataSize])
			assert.Equal(t, bytes.Repeat([]byte{0xff}, g.OOBSize-l.MetadataSize), roob[l.MetadataSize:])

			// few corrections aren't accounted
			assert.Equal(t, nand.EccStats{MaxBitflips: 3}, d.Stats())
		})
	}
}

func TestReadErased(t *testing.T) {
	_, d := newNAND(t, nand.Config{})
	data := make([]byte, geometry.PageSize)
	oob := make([]byte, geometry.OOBSize)

	stats, err := d.ReadPage(5, data, oob)
	require.NoError(t, err)
	assert.Equal(t, nand.EccStats{}, stats)
	assert.Equal(t, bytes.Repeat([]byte{0xff}, len(data)), data)
	assert.Equal(t, bytes.Repeat([]byte{0xff}, len(oob)), oob)
}

func TestUncorrectable(t *testing.T) {
	registry := metrics.NewRegistry()
	sim, d := newNAND(t, nand.Config{Metrics: registry})
	rng := rand.New(rand.NewPCG(3, 4))
	data := randomPage(rng, geometry.PageSize)
	require.NoError(t, d.ProgramPage(2, data, nil))

	strength := d.Layout().BlockNStrength
	var bits []int
	for i := range strength + 1 {
		bits = append(bits, sim.ChunkBit(0, 1, i*9))
	}
	sim.Chip(0).FlipBits(2, bits...)

	rdata := make([]byte, geometry.PageSize)
	stats, err := d.ReadPage(2, rdata, nil)
	require.ErrorIs(t, err, nand.ErrEccUncorrectable)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.Corrected)
	assert.Equal(t, nand.EccStats{Failed: 1}, d.Stats())
	assert.EqualValues(t, 1, counter(registry, "nand.ecc.failed"))
	assert.EqualValues(t, 0, counter(registry, "nand.ecc.corrected"))

	// the intact chunks are still returned
	assert.Equal(t, data[:bch.ChunkSize], rdata[:bch.ChunkSize])
	assert.Equal(t, data[2*bch.ChunkSize:], rdata[2*bch.ChunkSize:])
}

func TestBitflipsNearLimit(t *testing.T) {
	registry := metrics.NewRegistry()
	sim, d := newNAND(t, nand.Config{Metrics: registry})
	require.NoError(t, d.ProgramPage(0, make([]byte, geometry.PageSize), nil))

	n := d.Layout().BlockNStrength - 1
	var bits []int
	for i := range n {
		bits = append(bits, sim.ChunkBit(0, 2, i))
	}
	sim.Chip(0).FlipBits(0, bits...)

	stats, err := d.ReadPage(0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, n, stats.Corrected)
	assert.Equal(t, nand.EccStats{Corrected: n, MaxBitflips: n}, d.Stats())
	assert.EqualValues(t, n, counter(registry, "nand.ecc.corrected"))
	assert.EqualValues(t, 1, counter(registry, "nand.page.read"))
	assert.EqualValues(t, 1, counter(registry, "nand.page.write"))
}

func TestScanBadBlocks(t *testing.T) {
	sim, d := newNAND(t, nand.Config{Chips: 2})
	sim.Chip(0).MarkBad(3)
	sim.Chip(1).MarkBad(5)

	// zeros at the mark position of the data must not look like a mark
	require.NoError(t, d.ProgramPage(2*geometry.PagesPerBlock, make([]byte, geometry.PageSize), nil))

	require.NoError(t, d.Select(1))
	bbt, err := d.ScanBadBlocks()
	require.NoError(t, err)
	assert.Equal(t, 1, d.Selected())
	assert.Same(t, bbt, d.BBT())

	assert.Equal(t, 2, bbt.Count())
	assert.True(t, bbt.IsBad(0, 3))
	assert.True(t, bbt.IsBad(1, 5))
	assert.False(t, bbt.IsBad(0, 2))
	assert.False(t, bbt.IsBad(0, 5))
	assert.False(t, bbt.IsBad(1, 3))
}

func TestScanWithoutSwap(t *testing.T) {
	_, d := newNAND(t, nand.Config{DisableBlockMarkSwap: true})
	require.NoError(t, d.ProgramPage(2*geometry.PagesPerBlock, make([]byte, geometry.PageSize), nil))

	bbt, err := d.ScanBadBlocks()
	require.NoError(t, err)
	assert.True(t, bbt.IsBad(0, 2), "data at the mark position not seen as mark")
	assert.Equal(t, 1, bbt.Count())
}

func TestProgramErase(t *testing.T) {
	registry := metrics.NewRegistry()
	sim, d := newNAND(t, nand.Config{Metrics: registry})
	data := bytes.Repeat([]byte{0x55}, geometry.PageSize)
	page := 3*geometry.PagesPerBlock + 7

	require.NoError(t, d.ProgramPage(page, data, []byte{0xff, 1, 2, 3}))
	require.NotNil(t, sim.Chip(0).RawPage(page))

	rdata := make([]byte, geometry.PageSize)
	roob := make([]byte, geometry.OOBSize)
	_, err := d.ReadPage(page, rdata, roob)
	require.NoError(t, err)
	assert.Equal(t, data, rdata)
	assert.Equal(t, []byte{0xff, 1, 2, 3, 0xff}, roob[:5])

	require.NoError(t, d.EraseBlock(3))
	assert.Nil(t, sim.Chip(0).RawPage(page))
	assert.EqualValues(t, 1, counter(registry, "nand.block.erase"))

	_, err = d.ReadPage(page, rdata, nil)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0xff}, geometry.PageSize), rdata)

	assert.ErrorIs(t, d.ProgramPage(geometry.Pages(), data, nil), nand.ErrOutOfRange)
	assert.ErrorIs(t, d.EraseBlock(-1), nand.ErrOutOfRange)
	_, err = d.ReadPage(-1, nil, nil)
	assert.ErrorIs(t, err, nand.ErrOutOfRange)
}

func TestShortPageBuffer(t *testing.T) {
	sim, d := newNAND(t, nand.Config{})
	short := make([]byte, geometry.PageSize-1)

	assert.ErrorIs(t, d.ProgramPage(2, short, nil), nand.ErrOutOfRange)
	assert.Nil(t, sim.Chip(0).RawPage(2))

	_, err := d.ReadPage(2, short, nil)
	assert.ErrorIs(t, err, nand.ErrOutOfRange)
	assert.Equal(t, make([]byte, len(short)), short)

	// the driver is still usable
	_, err = d.ReadPage(2, make([]byte, geometry.PageSize), nil)
	require.NoError(t, err)
}

func TestRawBytes(t *testing.T) {
	sim, d := newNAND(t, nand.Config{})
	data := bytes.Repeat([]byte{0xa5, 0x5a}, geometry.PageSize/2)
	require.NoError(t, d.ProgramPage(1, data, nil))

	// read the raw page without ECC through the command sequencer
	require.NoError(t, d.Latch(nand.CmdRead0, nand.CtrlCLE))
	for _, b := range []int{0, 0, 1, 0, 0} {
		require.NoError(t, d.Latch(b, nand.CtrlALE))
	}
	require.NoError(t, d.Latch(nand.NoByte, 0))
	require.NoError(t, d.Latch(nand.CmdReadStart, nand.CtrlCLE))
	require.NoError(t, d.Latch(nand.NoByte, 0))
	require.Eventually(t, d.Ready, time.Second, time.Millisecond)

	raw := make([]byte, geometry.PageSize+geometry.OOBSize)
	require.NoError(t, d.ReadBytes(raw))
	assert.Equal(t, sim.Chip(0).RawPage(1), raw)
}

func TestLatchOverflow(t *testing.T) {
	_, d := newNAND(t, nand.Config{})
	require.NoError(t, d.Latch(nand.CmdRead0, nand.CtrlCLE))
	for range 15 {
		require.NoError(t, d.Latch(0, nand.CtrlALE))
	}
	assert.Panics(t, func() { d.Latch(0, nand.CtrlALE) })
}

func TestTimeout(t *testing.T) {
	registry := metrics.NewRegistry()
	sim, d := newNAND(t, nand.Config{Metrics: registry, Timeout: 20 * time.Millisecond})

	sim.Stall(0, true)
	_, err := d.ReadPage(0, nil, nil)
	require.ErrorIs(t, err, apbh.ErrBusTimeout)
	assert.EqualValues(t, 1, counter(registry, "nand.dma.timeout"))

	sim.Stall(0, false)
	_, err = d.ReadPage(0, nil, nil)
	require.NoError(t, err)
}

func TestBusError(t *testing.T) {
	registry := metrics.NewRegistry()
	sim, d := newNAND(t, nand.Config{Metrics: registry})

	sim.FailBus(0)
	err := d.ProgramPage(0, make([]byte, geometry.PageSize), nil)
	require.ErrorIs(t, err, apbh.ErrBusError)
	assert.EqualValues(t, 1, counter(registry, "nand.dma.error"))

	require.NoError(t, d.Reset())
	require.NoError(t, d.ProgramPage(0, make([]byte, geometry.PageSize), nil))
}

func TestConfig(t *testing.T) {
	sim := socsim.New(socsim.Config{})
	tests := map[string]struct {
		cfg nand.Config
		err error
	}{
		"no geometry":      {nand.Config{}, nand.ErrConfig},
		"no blocks":        {nand.Config{Geometry: nand.Geometry{PageSize: 2048, OOBSize: 64}}, nand.ErrConfig},
		"chips":            {nand.Config{Geometry: geometry, Chips: 9}, nand.ErrConfig},
		"negative chips":   {nand.Config{Geometry: geometry, Chips: -1}, nand.ErrConfig},
		"negative slots":   {nand.Config{Geometry: geometry, Slots: -4}, nand.ErrConfig},
		"negative timeout": {nand.Config{Geometry: geometry, Timeout: -time.Second}, nand.ErrConfig},
		"slots":            {nand.Config{Geometry: geometry, Slots: 2}, nand.ErrConfig},
		"page size":        {nand.Config{Geometry: nand.Geometry{PageSize: 512, OOBSize: 16, PagesPerBlock: 32, Blocks: 8}}, bch.ErrUnsupportedGeometry},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := nand.New(sim, sim.Memory().Region(), tc.cfg)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}
