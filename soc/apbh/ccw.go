package apbh

import (
	"encoding/binary"
	"fmt"

	"github.com/clktmr/mxs/soc/cpu"
	"github.com/clktmr/mxs/soc/mmio"
)

// Command is the flags word of a chain command word.
type Command uint32

// Transfer kind, bits 1:0
const (
	CmdNoXfer Command = iota // only write PIO words
	CmdWrite                 // write to memory, i.e. device to memory
	CmdRead                  // read from memory, i.e. memory to device
	CmdSense                 // branch on peripheral sense line

	CmdKindMask Command = 0x3
)

const (
	CmdChain           Command = 1 << (iota + 2) // load next CCW after completion
	CmdIRQ                                       // raise completion interrupt
	CmdNandLock                                  // keep GPMI locked to this channel
	CmdNandWait4Ready                            // wait for ready before start
	CmdDecSem                                    // decrement channel semaphore
	CmdWait4End                                  // wait for peripheral's end of command
	CmdHaltOnTerminate                           // halt on peripheral's terminate
	CmdTerminateFlush                            // flush buffer on terminate
)

var (
	CmdPIOWords  = mmio.Field[Command]{Shift: 12, Width: 4}
	CmdXferCount = mmio.Field[Command]{Shift: 16, Width: 16}
)

// Flags that make the hardware stop cleanly after the last CCW of a chain and
// signal its completion.
const terminalFlags = CmdIRQ | CmdDecSem | CmdWait4End | CmdHaltOnTerminate | CmdTerminateFlush

const (
	// MaxPIOWords is the maximum number of PIO words in a single CCW.
	MaxPIOWords = 15

	// MaxTransfer is the maximum number of bytes transferred by a single
	// CCW.
	MaxTransfer = 1<<16 - 1

	// CCWSize is the size of a CCW in memory.
	CCWSize = 4 * (3 + MaxPIOWords)
)

// CCW is a chain command word, the descriptor the APBH DMA fetches from
// memory. Its PIO words are written to the peripheral's registers starting
// at the peripheral's first control register.
type CCW struct {
	Next   cpu.Addr
	Cmd    Command
	Buffer cpu.Addr
	PIO    [MaxPIOWords]uint32
}

func (c *CCW) Kind() Command { return c.Cmd & CmdKindMask }

func (c *CCW) PIOWords() []uint32 {
	return c.PIO[:CmdPIOWords.Get(c.Cmd)]
}

func (c *CCW) XferCount() int {
	return int(CmdXferCount.Get(c.Cmd))
}

// MarshalTo writes the CCW's in-memory representation to b, which must hold
// at least CCWSize bytes.
func (c *CCW) MarshalTo(b []byte) {
	_ = b[CCWSize-1]
	binary.LittleEndian.PutUint32(b[0:], uint32(c.Next))
	binary.LittleEndian.PutUint32(b[4:], uint32(c.Cmd))
	binary.LittleEndian.PutUint32(b[8:], uint32(c.Buffer))
	for i, w := range c.PIO {
		binary.LittleEndian.PutUint32(b[12+4*i:], w)
	}
}

// Unmarshal reads the CCW from its in-memory representation b.
func (c *CCW) Unmarshal(b []byte) {
	_ = b[CCWSize-1]
	c.Next = cpu.Addr(binary.LittleEndian.Uint32(b[0:]))
	c.Cmd = Command(binary.LittleEndian.Uint32(b[4:]))
	c.Buffer = cpu.Addr(binary.LittleEndian.Uint32(b[8:]))
	for i := range c.PIO {
		c.PIO[i] = binary.LittleEndian.Uint32(b[12+4*i:])
	}
}

func (c *CCW) String() string {
	return fmt.Sprintf("next=%#08x cmd=%#08x buf=%#08x pio=%x",
		c.Next, uint32(c.Cmd), c.Buffer, c.PIOWords())
}

// Direction of a DMA transfer.
type Direction uint8

const (
	None       Direction = iota // no data transfer
	ToDevice                    // memory to peripheral
	FromDevice                  // peripheral to memory
)

func (d Direction) command() Command {
	switch d {
	case ToDevice:
		return CmdRead
	case FromDevice:
		return CmdWrite
	}
	return CmdNoXfer
}

// Desc describes a single DMA step to be enqueued in a channel's chain.
type Desc struct {
	PIO    []uint32 // written to the peripheral before the transfer
	Buffer cpu.Addr // memory address of the transfer
	Len    int      // bytes to transfer
	Dir    Direction

	// Additional flags, e.g. CmdNandLock or CmdNandWait4Ready. Flags from
	// terminalFlags set here survive when the chain is extended.
	Flags Command
}
