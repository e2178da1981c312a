package cpu

// Addr represents a physical memory address as seen by bus masters like the
// DMA engine.
type Addr uint32

// CacheLineSize of the ARM926EJ-S data cache.
const CacheLineSize = 32

// PageSize is the MMU's small page size. Descriptor tables are aligned to it.
const PageSize = 4096
