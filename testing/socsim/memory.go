package socsim

import "github.com/clktmr/mxs/soc/cpu"

// Memory is DMA capable RAM behind a write-back cache. The CPU and the bus
// masters have separate copies of it, which are only synchronized by the
// cache operations. Drivers which miss a Writeback or Invalidate see stale
// data, like they would on hardware.
type Memory struct {
	base cpu.Addr
	cpu  []byte
	dev  []byte
}

func NewMemory(base cpu.Addr, size int) *Memory {
	return &Memory{
		base: base,
		cpu:  make([]byte, size),
		dev:  make([]byte, size),
	}
}

// Region returns the memory as DMA region for drivers.
func (m *Memory) Region() *cpu.Region {
	return cpu.NewRegion(m.base, m.cpu, m)
}

func (m *Memory) span(addr cpu.Addr, length int) (start, end int, ok bool) {
	if addr < m.base || length < 0 {
		return 0, 0, false
	}
	start = int(addr - m.base)
	end = start + length
	return start, end, end <= len(m.dev)
}

func (m *Memory) Writeback(addr cpu.Addr, length int) {
	if s, e, ok := m.span(addr, length); ok {
		copy(m.dev[s:e], m.cpu[s:e])
	}
}

func (m *Memory) Invalidate(addr cpu.Addr, length int) {
	if s, e, ok := m.span(addr, length); ok {
		copy(m.cpu[s:e], m.dev[s:e])
	}
}

// read returns the device's view of length bytes at addr.
func (m *Memory) read(addr cpu.Addr, length int) ([]byte, bool) {
	s, e, ok := m.span(addr, length)
	if !ok {
		return nil, false
	}
	return m.dev[s:e], true
}

// write stores p at addr in the device's view.
func (m *Memory) write(addr cpu.Addr, p []byte) bool {
	s, e, ok := m.span(addr, len(p))
	if !ok {
		return false
	}
	copy(m.dev[s:e], p)
	return true
}
