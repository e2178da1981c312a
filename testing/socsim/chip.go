package socsim

import (
	"github.com/sirupsen/logrus"
)

// Geometry of a simulated NAND chip.
type Geometry struct {
	PageSize      int `yaml:"page_size"`
	OOBSize       int `yaml:"oob_size"`
	PagesPerBlock int `yaml:"pages_per_block"`
	Blocks        int `yaml:"blocks"`
}

func (g Geometry) RawSize() int { return g.PageSize + g.OOBSize }

func (g Geometry) Pages() int { return g.Blocks * g.PagesPerBlock }

// DefaultID is returned by the READ ID command, a 2 Gbit SLC device.
var DefaultID = []byte{0x2c, 0xda, 0x90, 0x95, 0x06}

const (
	statusFail  = 1 << 0
	statusReady = 1 << 6
	statusWP    = 1 << 7
)

// Number of STAT reads a chip stays busy after a command.
const busyPolls = 3

type output uint8

const (
	outNone output = iota
	outCache
	outStatus
	outID
)

// Chip is a simulated ONFI style NAND chip with a page cache register.
type Chip struct {
	geo Geometry
	log logrus.FieldLogger

	pages    [][]byte // nil if erased
	pristine [][]byte // pages as programmed, nil if erased

	cache []byte
	col   int
	row   int

	cmd    byte
	addr   []byte
	out    output
	status byte
	busy   int
}

func newChip(g Geometry, log logrus.FieldLogger) *Chip {
	c := &Chip{
		geo:      g,
		log:      log,
		pages:    make([][]byte, g.Pages()),
		pristine: make([][]byte, g.Pages()),
		cache:    make([]byte, g.RawSize()),
		status:   statusReady | statusWP,
	}
	fill(c.cache, 0xff)
	return c
}

func fill(p []byte, b byte) {
	for i := range p {
		p[i] = b
	}
}

// Ready reports the chip's ready/busy line.
func (c *Chip) Ready() bool { return c.busy == 0 }

func (c *Chip) setBusy() {
	c.busy = busyPolls
}

// RawPage returns the raw page including spare area. It returns nil for
// erased pages.
func (c *Chip) RawPage(page int) []byte {
	return c.pages[page]
}

// Pristine returns the page as it was programmed.
func (c *Chip) Pristine(page int) []byte {
	return c.pristine[page]
}

// FlipBits inverts raw bits of page, counted from the start of the page.
// Pristine data is kept, so the flips can be corrected.
func (c *Chip) FlipBits(page int, bits ...int) {
	p := c.pages[page]
	if p == nil {
		p = make([]byte, c.geo.RawSize())
		fill(p, 0xff)
		c.pages[page] = p
	}
	for _, b := range bits {
		p[b/8] ^= 1 << (b % 8)
	}
}

// MarkBad writes a factory bad block mark to the first page of block.
func (c *Chip) MarkBad(block int) {
	page := block * c.geo.PagesPerBlock
	p := make([]byte, c.geo.RawSize())
	fill(p, 0xff)
	p[c.geo.PageSize] = 0x00
	c.pages[page] = p
	c.pristine[page] = append([]byte(nil), p...)
}

func (c *Chip) command(b byte) {
	c.log.WithField("cmd", b).Debug("nand command")
	switch b {
	case 0x00, 0x60, 0x90:
		c.cmd, c.addr, c.out = b, c.addr[:0], outNone
	case 0x80:
		c.cmd, c.addr, c.out = b, c.addr[:0], outNone
		fill(c.cache, 0xff)
	case 0x30:
		c.parseAddr(true)
		c.load()
	case 0x10:
		c.program()
	case 0xd0:
		c.parseAddr(false)
		c.erase()
	case 0x70:
		c.out = outStatus
	case 0xff:
		c.cmd, c.addr, c.out = b, c.addr[:0], outNone
		c.status = statusReady | statusWP
		c.setBusy()
	default:
		c.log.WithField("cmd", b).Warn("unknown nand command")
	}
}

func (c *Chip) address(b byte) {
	c.addr = append(c.addr, b)
	switch {
	case c.cmd == 0x90 && len(c.addr) == 1:
		c.col, c.out = 0, outID
	case c.cmd == 0x80 && len(c.addr) == 5:
		c.parseAddr(true)
	}
}

func (c *Chip) parseAddr(column bool) {
	a := c.addr
	c.col = 0
	if column && len(a) >= 2 {
		c.col = int(a[0]) | int(a[1])<<8
		a = a[2:]
	}
	c.row = 0
	for i, b := range a {
		c.row |= int(b) << (8 * i)
	}
}

func (c *Chip) valid() bool {
	return c.row >= 0 && c.row < c.geo.Pages()
}

func (c *Chip) load() {
	c.setBusy()
	c.out = outCache
	if !c.valid() {
		c.status |= statusFail
		return
	}
	if p := c.pages[c.row]; p != nil {
		copy(c.cache, p)
	} else {
		fill(c.cache, 0xff)
	}
}

func (c *Chip) program() {
	c.setBusy()
	c.status &^= statusFail
	if c.cmd != 0x80 || !c.valid() {
		c.status |= statusFail
		return
	}
	p := c.pages[c.row]
	if p == nil {
		p = make([]byte, c.geo.RawSize())
		fill(p, 0xff)
		c.pages[c.row] = p
	}
	q := c.pristine[c.row]
	if q == nil {
		q = make([]byte, c.geo.RawSize())
		fill(q, 0xff)
		c.pristine[c.row] = q
	}
	for i, b := range c.cache {
		p[i] &= b
		q[i] &= b
	}
	c.cmd = 0
}

func (c *Chip) erase() {
	c.setBusy()
	c.status &^= statusFail
	if c.cmd != 0x60 || !c.valid() {
		c.status |= statusFail
		return
	}
	first := c.row - c.row%c.geo.PagesPerBlock
	for i := first; i < first+c.geo.PagesPerBlock; i++ {
		c.pages[i] = nil
		c.pristine[i] = nil
	}
	c.cmd = 0
}

// writeData latches data bytes into the cache register.
func (c *Chip) writeData(p []byte) {
	if c.cmd != 0x80 {
		c.log.Warn("data input without program command")
		return
	}
	if c.col < len(c.cache) {
		n := copy(c.cache[c.col:], p)
		c.col += n
	}
}

// readData returns n bytes of the chip's current output.
func (c *Chip) readData(n int) []byte {
	p := make([]byte, n)
	switch c.out {
	case outStatus:
		fill(p, c.status)
	case outID:
		for i := range p {
			p[i] = DefaultID[(c.col+i)%len(DefaultID)]
		}
		c.col += n
	case outCache:
		fill(p, 0xff)
		if c.col < len(c.cache) {
			c.col += copy(p, c.cache[c.col:])
		}
	default:
		fill(p, 0xff)
	}
	return p
}
