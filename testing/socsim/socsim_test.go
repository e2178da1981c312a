package socsim

import (
	"bytes"
	"testing"

	"github.com/clktmr/mxs/soc/bch"
)

func testLayout() bchLayout {
	return bchLayout{
		chunks:    4,
		meta:      bch.MetadataSize,
		data0:     bch.ChunkSize,
		dataN:     bch.ChunkSize,
		strength0: 8,
		strengthN: 8,
		raw:       2048 + 64,
	}
}

func TestEncodeDecode(t *testing.T) {
	l := testLayout()
	payload := make([]byte, l.payloadSize())
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	meta := []byte("metadata!!")

	raw := l.encode(payload, meta)
	pristine := bytes.Clone(raw)
	raw[100] ^= 0x81
	raw[l.chunkBit(3, 17)/8] ^= 1 << (l.chunkBit(3, 17) % 8)

	got, aux := l.decode(raw, pristine)
	if !bytes.Equal(got, payload) {
		t.Fatal("expected corrected payload")
	}
	if !bytes.Equal(aux[:l.meta], meta) {
		t.Fatalf("expected %q, got %q", meta, aux[:l.meta])
	}
	status := aux[l.statusOffset():]
	expected := []byte{2, 0, 0, 1}
	if !bytes.Equal(status, expected) {
		t.Fatalf("expected status %v, got %v", expected, status)
	}
}

func TestDecodeErased(t *testing.T) {
	l := testLayout()
	raw := bytes.Repeat([]byte{0xff}, l.raw)
	raw[1000] = 0xfe

	payload, aux := l.decode(raw, nil)
	if !bytes.Equal(payload, bytes.Repeat([]byte{0xff}, len(payload))) {
		t.Fatal("expected erased payload")
	}
	for i, s := range aux[l.statusOffset():] {
		if s != bch.StatusErased {
			t.Errorf("chunk %d: expected status %#x, got %#x", i, bch.StatusErased, s)
		}
	}
}

func TestDecodeUncorrectable(t *testing.T) {
	l := testLayout()
	raw := l.encode(make([]byte, l.payloadSize()), make([]byte, l.meta))
	pristine := bytes.Clone(raw)
	for i := range 9 {
		b := l.chunkBit(1, i*3)
		raw[b/8] ^= 1 << (b % 8)
	}

	_, aux := l.decode(raw, pristine)
	status := aux[l.statusOffset():]
	if status[1] != bch.StatusUncorrectable {
		t.Fatalf("expected %#x, got %#x", bch.StatusUncorrectable, status[1])
	}
	if status[0] != bch.StatusClean || status[2] != bch.StatusClean {
		t.Fatalf("unexpected status %v", status)
	}
}

func TestChipProgram(t *testing.T) {
	c := newChip(Geometry{PageSize: 16, OOBSize: 4, PagesPerBlock: 2, Blocks: 2}, New(Config{}).log)

	program := func(row int, data []byte) {
		c.command(0x80)
		for _, a := range []byte{0, 0, byte(row), 0, 0} {
			c.address(a)
		}
		c.writeData(data)
		c.command(0x10)
	}

	program(3, []byte{0xf0, 0x0f})
	program(3, []byte{0x3c, 0xff})
	if p := c.RawPage(3); p[0] != 0x30 || p[1] != 0x0f || p[2] != 0xff {
		t.Fatalf("expected programmed bits to stay cleared, got %x", p)
	}
	if c.status&statusFail != 0 {
		t.Fatal("program failed")
	}

	c.command(0x60)
	for _, a := range []byte{2, 0, 0} {
		c.address(a)
	}
	c.command(0xd0)
	if c.RawPage(3) != nil || c.Pristine(3) != nil {
		t.Fatal("expected block to be erased")
	}

	program(4, []byte{0})
	if c.status&statusFail == 0 {
		t.Fatal("expected program of invalid page to fail")
	}
}
