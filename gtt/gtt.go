// Package gtt programs a GPU global graphics translation table: a flat array
// of page-table entries mapped into MMIO space that translates the GPU-visible
// address space to pinned physical pages. It owns the address-space allocator
// for the aperture, a scratch page backing every unmapped entry, and the
// Region objects that bind client memory objects into the table.
//
// Nothing in this package is internally synchronized. All mutating calls on a
// Gtt and its Regions must be serialized by the caller, one adapter at a time,
// matching the single-writer reality of the hardware page table.
package gtt

import (
	"context"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/gart/gttutils"
	"github.com/vkngwrapper/gart/gttutils/regionalloc"
	"github.com/vkngwrapper/gart/hw"
	"golang.org/x/exp/slog"
)

// CreateOptions contains optional settings when creating a Gtt
type CreateOptions struct {
	// ReservedFramebufferOffset is the byte offset of the end of a pre-existing
	// bootloader framebuffer at the bottom of the aperture. Entries at or below
	// this offset are left untouched by Init so the bootloader image keeps
	// displaying until it is explicitly reclaimed, and the address range is
	// withheld from the allocator. It is rounded up to a page boundary.
	ReservedFramebufferOffset int

	// ApertureSizeOverride, when nonzero, is used as the aperture size in bytes
	// instead of decoding the graphics control register. It is for bring-up on
	// hardware whose control register is known-bad and must be a page multiple.
	ApertureSizeOverride int
}

// Gtt owns and mediates all access to one adapter's global page table. Create
// one with NewGtt, bring it up with Init, and tear it down with Destroy after
// every Region has been destroyed.
type Gtt struct {
	logger *slog.Logger
	mmio   hw.MmioSpace
	bus    hw.BusPinner

	options CreateOptions

	regionAllocator *regionalloc.Allocator
	framebufferID   regionalloc.RangeHandle

	scratchObject hw.MemoryObject
	scratchPin    hw.PinnedMemory
	scratchAddr   hw.PhysAddr

	minContiguity int
	gfxMemSize    int
	initialized   bool
}

// NewGtt creates a Gtt for one display adapter. The Gtt performs no hardware
// access until Init is called.
//
// logger - destination for teardown warnings and leak reports
//
// mmio - the adapter's mapped register window, containing the page table
//
// bus - the bus transaction initiator used to pin pages for device access
//
// options - optional parameters: it is valid to leave all the fields blank
func NewGtt(logger *slog.Logger, mmio hw.MmioSpace, bus hw.BusPinner, options CreateOptions) *Gtt {
	return &Gtt{
		logger:  logger,
		mmio:    mmio,
		bus:     bus,
		options: options,

		regionAllocator: regionalloc.New(),
	}
}

// Init brings up the page table: it queries the bus contiguity granularity,
// decodes the aperture size from the graphics control register, pins the
// scratch page, points every non-framebuffer entry at it, and registers the
// remaining address space with the allocator. Any failure is fatal; no
// partially-initialized Gtt is usable.
func (g *Gtt) Init() error {
	minContiguity, err := g.bus.MinContiguity()
	if err != nil {
		return cerrors.Wrapf(ErrInternal, "querying minimum contiguity: %v", err)
	}
	if minContiguity < PageSize || minContiguity%PageSize != 0 {
		return cerrors.Wrapf(ErrInternal, "minimum contiguity %d is not a multiple of the page size", minContiguity)
	}
	if err = gttutils.CheckPow2(uint(minContiguity), "minimum contiguity"); err != nil {
		return cerrors.Wrapf(ErrInternal, "%v", err)
	}
	g.minContiguity = minContiguity

	gfxMemSize := g.options.ApertureSizeOverride
	if gfxMemSize == 0 {
		ggc := g.mmio.Read32(regGraphicsControl) & 0xffff
		sizeClass := (ggc >> gmsShift) & gmsMask
		if sizeClass == 0 {
			return cerrors.Wrapf(ErrInternal, "graphics control register reports no preallocated gtt memory")
		}

		var ok bool
		gfxMemSize, ok = apertureSizeForClass[sizeClass]
		if !ok {
			return cerrors.Wrapf(ErrInternal, "graphics control register reports unsupported size class %d", sizeClass)
		}
	} else if gfxMemSize%PageSize != 0 {
		return cerrors.Wrapf(ErrInternal, "aperture size override %d is not a page multiple", gfxMemSize)
	}
	g.gfxMemSize = gfxMemSize

	scratch, err := g.bus.NewMemoryObject(PageSize)
	if err != nil {
		return cerrors.Wrapf(ErrInternal, "allocating the scratch page: %v", err)
	}

	scratchPin, err := g.bus.Pin(scratch, 0, PageSize, hw.PinRead)
	if err != nil {
		_ = scratch.Close()
		return cerrors.Wrapf(ErrInternal, "pinning the scratch page: %v", err)
	}

	if err = scratch.CacheFlush(0, PageSize); err != nil {
		_ = scratchPin.Unpin()
		_ = scratch.Close()
		return cerrors.Wrapf(ErrInternal, "flushing the scratch page: %v", err)
	}

	g.scratchObject = scratch
	g.scratchPin = scratchPin
	g.scratchAddr = scratchPin.PhysicalChunks()[0]

	// Point everything past the bootloader framebuffer at the scratch page.
	// Entries at or below the reserved offset keep whatever mapping the
	// bootloader left in them.
	framebufferEnd := gttutils.AlignUp(g.options.ReservedFramebufferOffset, PageSize)
	firstEntry := framebufferEnd / PageSize
	entryCount := g.gfxMemSize / PageSize

	scratchEntry := newPte(g.scratchAddr, false)
	for i := firstEntry; i < entryCount; i++ {
		g.writeEntry(i, scratchEntry)
	}
	if firstEntry < entryCount {
		g.postingRead(entryCount - 1)
	}

	g.regionAllocator.Init(g.gfxMemSize)
	if framebufferEnd > 0 {
		handle, _, err := g.regionAllocator.Allocate(framebufferEnd, 1)
		if err != nil {
			return cerrors.Wrapf(ErrInternal, "reserving the bootloader framebuffer range: %v", err)
		}
		g.framebufferID = handle
	}

	g.initialized = true
	return nil
}

// Size returns the aperture size in bytes.
func (g *Gtt) Size() int { return g.gfxMemSize }

// MinContiguity returns the minimum physically-contiguous chunk size the bus
// guarantees per pin transaction.
func (g *Gtt) MinContiguity() int { return g.minContiguity }

// FreeBytes returns the number of unallocated bytes of GPU address space.
func (g *Gtt) FreeBytes() int { return g.regionAllocator.SumFreeSize() }

// AllocRegion claims a page-aligned range of GPU address space of at least
// length bytes, aligned to the provided power-of-two alignment. The returned
// Region is owned by the caller and must be destroyed with Region.Destroy.
// The error wraps ErrNoResources when no free range fits.
func (g *Gtt) AllocRegion(length int, alignment uint) (*Region, error) {
	pageAlignedLength := gttutils.AlignUp(length, PageSize)

	// Regions stay page-aligned for their whole lifetime.
	if alignment < PageSize {
		alignment = PageSize
	}

	handle, offset, err := g.regionAllocator.Allocate(pageAlignedLength, alignment)
	if err != nil {
		if cerrors.Is(err, regionalloc.ErrOutOfSpace) {
			return nil, cerrors.Wrapf(ErrNoResources, "requested %d bytes aligned to %d", pageAlignedLength, alignment)
		}
		return nil, err
	}

	return &Region{
		gtt:    g,
		handle: handle,
		base:   offset,
		size:   pageAlignedLength,
	}, nil
}

// SetupForMexec unconditionally rewrites the first ceil(length/PageSize)
// entries with a linear mapping starting at physBase, bypassing the allocator
// entirely. It exists to hand the framebuffer across a kernel re-exec
// boundary: the device is about to be torn down, so normal bookkeeping no
// longer matters and live allocations may be stomped. No Region teardown can
// be trusted after this call.
func (g *Gtt) SetupForMexec(physBase hw.PhysAddr, length int) {
	entryCount := gttutils.DivideRoundUp(length, PageSize)
	for i := 0; i < entryCount; i++ {
		g.writeEntry(i, newPte(physBase+hw.PhysAddr(i*PageSize), false))
	}
	if entryCount > 0 {
		g.postingRead(entryCount - 1)
	}

	g.logger.LogAttrs(context.Background(), slog.LevelInfo, "gtt remapped linearly for mexec handoff",
		slog.Uint64("physBase", uint64(physBase)),
		slog.Int("length", length),
	)
}

// Destroy tears down the Gtt. Every Region allocated from it must already have
// been destroyed; leaked regions are logged and cause an error, since their
// page-table entries may still be live against pinned memory.
func (g *Gtt) Destroy() error {
	if !g.initialized {
		return nil
	}

	leaked := false
	_ = g.regionAllocator.VisitAllRanges(func(handle regionalloc.RangeHandle, offset int, size int, free bool) error {
		if free || size == 0 || handle == g.framebufferID {
			return nil
		}

		leaked = true
		g.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED REGION] gpu address range still allocated",
			slog.Int("base", offset),
			slog.Int("size", size),
		)
		return nil
	})
	if leaked {
		return cerrors.New("some regions were not destroyed before the destruction of this gtt")
	}

	if err := g.scratchPin.Unpin(); err != nil {
		g.logger.LogAttrs(context.Background(), slog.LevelWarn, "failed to unpin the scratch page",
			slog.Any("error", err),
		)
	}
	if err := g.scratchObject.Close(); err != nil {
		g.logger.LogAttrs(context.Background(), slog.LevelWarn, "failed to close the scratch page",
			slog.Any("error", err),
		)
	}

	g.scratchPin = nil
	g.scratchObject = nil
	g.initialized = false
	return nil
}

// BuildStatsString returns a JSON description of the aperture. When detailed
// is true it includes the full allocated/free map of the address space.
func (g *Gtt) BuildStatsString(detailed bool) string {
	writer := jwriter.NewWriter()

	obj := writer.Object()

	obj.Name("ApertureBytes").Int(g.gfxMemSize)
	obj.Name("MinContiguity").Int(g.minContiguity)
	obj.Name("ScratchAddr").Int(int(g.scratchAddr))

	var stats gttutils.Statistics
	stats.Clear()
	g.regionAllocator.AddStatistics(&stats)

	statsObj := obj.Name("Total").Object()
	statsObj.Name("RegionCount").Int(stats.RegionCount)
	statsObj.Name("RegionBytes").Int(stats.RegionBytes)
	statsObj.Name("FreeBytes").Int(g.regionAllocator.SumFreeSize())
	statsObj.End()

	if detailed {
		mapObj := obj.Name("AddressSpace").Object()
		g.regionAllocator.RangesJsonData(mapObj)
		mapObj.End()
	}

	obj.End()

	return string(writer.Bytes())
}

// AddDetailedStatistics sums this aperture's region statistics into the
// provided gttutils.DetailedStatistics object.
func (g *Gtt) AddDetailedStatistics(stats *gttutils.DetailedStatistics) {
	g.regionAllocator.AddDetailedStatistics(stats)
}

func (g *Gtt) writeEntry(pageIndex int, entry pte) {
	g.mmio.Write64(gttTableOffset+pageIndex*8, uint64(entry))
}

func (g *Gtt) readEntry(pageIndex int) pte {
	return pte(g.mmio.Read64(gttTableOffset + pageIndex*8))
}

// postingRead forces the preceding batch of entry writes to complete before
// the device can be allowed to depend on them.
func (g *Gtt) postingRead(pageIndex int) {
	_ = g.mmio.Read64(gttTableOffset + pageIndex*8)
}
