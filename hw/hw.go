// Package hw declares the narrow hardware capability surface the GTT engine is
// built against: a mapped MMIO register window and a bus-transaction-initiator
// style pinner that can lock a memory object's pages and report their physical
// addresses. Production drivers implement these against the real bus; tests
// implement them with fakes or mocks.
package hw

// PhysAddr is a physical memory address as reported by the bus pinner.
type PhysAddr uint64

// PinFlags control the access rights requested for a pin transaction.
type PinFlags uint32

const (
	// PinRead requests that the pinned pages be readable by the device
	PinRead PinFlags = 1 << iota
	// PinWrite requests that the pinned pages be writable by the device
	PinWrite
)

// MmioSpace is a mapped register window. Reads and writes are synchronous and
// blocking. A write is only guaranteed observed by the device after a
// subsequent read of the same window completes, so batches of writes must be
// followed by a posting read before the device can be allowed to race against
// them.
type MmioSpace interface {
	Read32(offset int) uint32
	Write32(offset int, value uint32)
	Read64(offset int) uint64
	Write64(offset int, value uint64)
}

// MemoryObject is a VMO-like handle to a range of memory that can be pinned
// for device access. The creator of the handle owns it and must Close it
// exactly once.
type MemoryObject interface {
	// CacheFlush cleans the CPU cache lines covering [offset, offset+length)
	// so the device observes any prior CPU writes.
	CacheFlush(offset int, length int) error
	Close() error
}

// PinnedMemory is one outstanding pin transaction. The physical range it
// covers stays resident and device-accessible until Unpin is called.
type PinnedMemory interface {
	// PhysicalChunks returns the physical start address of each contiguous
	// chunk backing the pinned range, in source-offset order. Every chunk is
	// BusPinner.MinContiguity bytes except possibly the last.
	PhysicalChunks() []PhysAddr
	Unpin() error
}

// BusPinner wraps a bus transaction initiator. All calls are synchronous and
// may fail with ordinary errors on resource exhaustion; no cancellation or
// timeout semantics are offered.
type BusPinner interface {
	// MinContiguity reports the minimum physically-contiguous chunk size, in
	// bytes, that every pin transaction guarantees. It is always a
	// power-of-two multiple of the page size.
	MinContiguity() (int, error)
	// NewMemoryObject creates a fresh memory object of the given size,
	// suitable for pinning through this pinner.
	NewMemoryObject(size int) (MemoryObject, error)
	// Pin locks [offset, offset+length) of the object into physical memory
	// with the requested access rights.
	Pin(object MemoryObject, offset int, length int, flags PinFlags) (PinnedMemory, error)
}
