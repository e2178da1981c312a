package nand

import (
	"bytes"
	"math/rand/v2"
	"testing"
)

func TestSwapBlockMarkInvolution(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	data := make([]byte, 8)
	oob := make([]byte, 4)

	for k := range 8 {
		for b := range 256 {
			for o := range 256 {
				for i := range data {
					data[i] = byte(rng.Uint32())
				}
				data[3] = byte(b)
				oob[0] = byte(o)
				origData := bytes.Clone(data)
				origOob := bytes.Clone(oob)

				SwapBlockMark(data, oob, 3, k)
				SwapBlockMark(data, oob, 3, k)

				if !bytes.Equal(data, origData) || !bytes.Equal(oob, origOob) {
					t.Fatalf("k=%d b=%#02x o=%#02x: expected %x %x, got %x %x",
						k, b, o, origData, origOob, data, oob)
				}
			}
		}
	}
}

func TestSwapBlockMark(t *testing.T) {
	tests := map[string]struct {
		k           int
		data, oob   []byte
		wData, wOob []byte
	}{
		"aligned": {0, []byte{0x12, 0x34, 0x56}, []byte{0xab}, []byte{0x12, 0xab, 0x56}, []byte{0x34}},
		"bit 4":   {4, []byte{0x12, 0x34, 0x56}, []byte{0xab}, []byte{0x12, 0xb4, 0x5a}, []byte{0x63}},
		"bit 1":   {1, []byte{0x00, 0xff, 0x00}, []byte{0x00}, []byte{0x00, 0x01, 0x00}, []byte{0x7f}},
		"bit 7":   {7, []byte{0x00, 0x80, 0xff}, []byte{0x00}, []byte{0x00, 0x00, 0x80}, []byte{0xff}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			SwapBlockMark(tc.data, tc.oob, 1, tc.k)
			if !bytes.Equal(tc.data, tc.wData) || !bytes.Equal(tc.oob, tc.wOob) {
				t.Fatalf("expected %x %x, got %x %x", tc.wData, tc.wOob, tc.data, tc.oob)
			}
		})
	}
}

// Only the byte at the mark position and the spare byte change.
func TestSwapBlockMarkUntouched(t *testing.T) {
	for k := range 8 {
		data := bytes.Repeat([]byte{0x5a}, 16)
		oob := []byte{0xff, 0x11, 0x22}
		SwapBlockMark(data, oob, 7, k)

		for i, b := range data {
			if (i < 7 || i > 8) && b != 0x5a {
				t.Errorf("k=%d: byte %d modified", k, i)
			}
		}
		if oob[1] != 0x11 || oob[2] != 0x22 {
			t.Errorf("k=%d: spare modified beyond mark", k)
		}
	}
}
