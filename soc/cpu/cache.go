// The CPU accesses RAM through a cache and in general assumes that there are no
// other readers or writers.  Since the stored value in the cache can divert
// from the stored value in RAM for a limited amount of time, we need to sync
// both before other components are involved.
//
// All operations in this package refer to the data cache.  Instruction cache
// won't be affected.
package cpu

import (
	"errors"
	"unsafe"

	"github.com/clktmr/mxs/debug"
)

// Cache performs maintenance on the data cache for a physical address range.
// Implementations operate on whole cache lines.
type Cache interface {
	// Causes the cache to be written back to RAM.  Call this before
	// requesting another component to read from this address range.
	Writeback(addr Addr, length int)

	// Causes the cache to be read from RAM before next access.  Call this
	// after another component has written to this address range.
	Invalidate(addr Addr, length int)
}

// Coherent is the Cache of systems where bus masters snoop the CPU cache, or
// where DMA memory is mapped uncached. All operations are no-ops.
type Coherent struct{}

func (Coherent) Writeback(addr Addr, length int) {}
func (Coherent) Invalidate(addr Addr, length int) {}

var ErrNoMemory = errors.New("dma region exhausted")

// Region is a physically contiguous memory range usable by bus masters.
// Memory is handed out in cache line padded chunks and never returned, as
// drivers allocate their buffers once for their lifetime.
type Region struct {
	base  Addr
	mem   []byte
	next  int
	cache Cache
}

// NewRegion returns a region of mem, which is located at physical address
// base.  The base must be aligned to CacheLineSize.
func NewRegion(base Addr, mem []byte, cache Cache) *Region {
	debug.Assert(base%CacheLineSize == 0, "unaligned dma region")
	if cache == nil {
		cache = Coherent{}
	}
	return &Region{base: base, mem: mem, cache: cache}
}

// Base returns the region's physical start address.
func (r *Region) Base() Addr { return r.base }

// Len returns the region's size in bytes.
func (r *Region) Len() int { return len(r.mem) }

// Free returns the number of unreserved bytes.
func (r *Region) Free() int { return len(r.mem) - r.next }

// Reserve returns a zeroed slice of size bytes aligned to align. Start and end
// of the slice are padded to full cache lines, so cache operations on it
// won't affect unrelated data.
func (r *Region) Reserve(size, align int) ([]byte, Addr, error) {
	align = max(align, CacheLineSize)
	start := AlignUp(int(r.base)+r.next, align) - int(r.base)
	end := start + AlignUp(size, CacheLineSize)
	if size <= 0 || end > len(r.mem) {
		return nil, 0, ErrNoMemory
	}
	r.next = end
	buf := r.mem[start:end:end]
	clear(buf)
	return buf[:size], r.base + Addr(start), nil
}

// Addr returns the physical address of p's first element. p must be part of
// the region.
func (r *Region) Addr(p []byte) Addr {
	off := uintptr(unsafe.Pointer(unsafe.SliceData(p))) -
		uintptr(unsafe.Pointer(unsafe.SliceData(r.mem)))
	debug.Assert(off < uintptr(len(r.mem)), "slice outside of dma region")
	return r.base + Addr(off)
}

// IsPadded returns true if p is safe for cache ops, i.e. aligned to cache
// lines and padded up to the end of its last cache line.
func (r *Region) IsPadded(p []byte) bool {
	return r.Addr(p)%CacheLineSize == 0 && cap(p) >= AlignUp(len(p), CacheLineSize)
}

// Writeback publishes the CPU's view of p to the bus masters.
func (r *Region) Writeback(p []byte) {
	if len(p) == 0 {
		return
	}
	addr := r.Addr(p)
	start := AlignDown(addr, CacheLineSize)
	r.cache.Writeback(start, AlignUp(int(addr-start)+len(p), CacheLineSize))
}

// Invalidate discards the CPU's view of p, so that subsequent reads return
// what bus masters have written.
func (r *Region) Invalidate(p []byte) {
	if len(p) == 0 {
		return
	}
	addr := r.Addr(p)
	start := AlignDown(addr, CacheLineSize)
	r.cache.Invalidate(start, AlignUp(int(addr-start)+len(p), CacheLineSize))
}
