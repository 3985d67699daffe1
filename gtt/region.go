package gtt

import (
	"context"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gart/gttutils"
	"github.com/vkngwrapper/gart/gttutils/regionalloc"
	"github.com/vkngwrapper/gart/hw"
	"golang.org/x/exp/slog"
)

// entriesPerPinTxn caps how many physical addresses one pin transaction may
// return: one page's worth of 8-byte addresses.
const entriesPerPinTxn = PageSize / 8

// Rotation selects the scanout orientation of an image.
type Rotation uint32

const (
	RotationIdentity Rotation = iota
	Rotation90
	Rotation180
	Rotation270
)

// isRotatedClass reports whether a rotation requires the transposed tile
// ordering in the page table. Identity and 180 keep row-major order: the
// display engine handles 180 by scanning backwards, but 90/270 transpose the
// tile grid and need the entries themselves permuted.
func (r Rotation) isRotatedClass() bool {
	return r == Rotation90 || r == Rotation270
}

// X-tile geometry: 512 bytes wide by 8 rows, so one tile is exactly one page
// and tiles map one-to-one onto page-table entries.
const (
	tileWidthBytes = 512
	tileRows       = 8
)

// ImageDescriptor carries the geometry of a tiled image needed to permute its
// page-table entries for rotated scanout.
type ImageDescriptor struct {
	// BytesPerRow is the stride of the image in bytes; it must be a multiple of
	// the tile width.
	BytesPerRow int
	// Height is the image height in rows.
	Height int
}

func (d ImageDescriptor) widthInTiles() int {
	return d.BytesPerRow / tileWidthBytes
}

func (d ImageDescriptor) heightInTiles() int {
	return gttutils.DivideRoundUp(d.Height, tileRows)
}

// Region is one allocated, page-aligned range of GPU address space, bound (or
// not yet bound) to a client memory object. A Region is exclusively owned by
// the caller that received it from Gtt.AllocRegion and must be released with
// Destroy. It shares the Gtt's external-serialization requirement.
type Region struct {
	gtt    *Gtt
	handle regionalloc.RangeHandle

	base int
	size int

	object    hw.MemoryObject
	mappedEnd int
	pins      []hw.PinnedMemory
	isRotated bool
}

// Base returns the region's byte offset within the aperture.
func (r *Region) Base() int { return r.base }

// Size returns the region's length in bytes; always a page multiple.
func (r *Region) Size() int { return r.size }

// PopulateRegion pins [pageOffset*PageSize, pageOffset*PageSize+length) of the
// provided memory object and writes the resulting physical pages into the
// region's page-table entries in order. A region binds exactly once: the error
// wraps ErrAlreadyBound if it is already populated, and ErrInvalidArgs if
// length exceeds the region's size.
//
// On success the region takes ownership of the object handle and closes it in
// ClearRegion. A pin failure partway through returns the pin error and leaves
// the region partially mapped with an accurate mapped extent; the caller must
// treat this as a failure and call ClearRegion to unwind.
func (r *Region) PopulateRegion(object hw.MemoryObject, pageOffset int, length int, writable bool) error {
	if length > r.size {
		return cerrors.Wrapf(ErrInvalidArgs, "mapping %d bytes into a %d byte region", length, r.size)
	}
	if r.mappedEnd != 0 {
		return cerrors.Wrapf(ErrAlreadyBound, "region at base %d", r.base)
	}

	flags := hw.PinRead
	if writable {
		flags |= hw.PinWrite
	}

	// Reserve the pin list up front so bookkeeping cannot grow mid-populate.
	pinCount := gttutils.DivideRoundUp(length, r.gtt.minContiguity)
	r.pins = make([]hw.PinnedMemory, 0, pinCount)
	r.object = object

	maxChunkLength := entriesPerPinTxn * r.gtt.minContiguity
	entryIndex := r.base / PageSize

	for mapped := 0; mapped < length; {
		chunkLength := length - mapped
		if chunkLength > maxChunkLength {
			chunkLength = maxChunkLength
		}

		pin, err := r.gtt.bus.Pin(object, pageOffset*PageSize+mapped, chunkLength, flags)
		if err != nil {
			// mappedEnd already reflects exactly how much is backed by real
			// memory; the caller unwinds with ClearRegion.
			return cerrors.Wrapf(err, "pinning %d bytes at source offset %d", chunkLength, pageOffset*PageSize+mapped)
		}
		r.pins = append(r.pins, pin)

		pagesLeft := gttutils.DivideRoundUp(chunkLength, PageSize)
		for _, chunkAddr := range pin.PhysicalChunks() {
			for pageInChunk := 0; pageInChunk < r.gtt.minContiguity/PageSize && pagesLeft > 0; pageInChunk++ {
				addr := chunkAddr + hw.PhysAddr(pageInChunk*PageSize)
				r.gtt.writeEntry(entryIndex, newPte(addr, false))
				entryIndex++
				pagesLeft--
			}
		}

		mapped += chunkLength
		r.mappedEnd = mapped
	}

	if r.mappedEnd > 0 {
		r.gtt.postingRead(entryIndex - 1)
	}

	return nil
}

// ClearRegion points every populated entry back at the scratch page, unpins
// the backing memory, and closes the bound memory object. It is idempotent and
// is invoked by Destroy if the caller has not already cleared. Unpin failures
// are logged but never stop the teardown: leaking one pin is better than
// leaking the rest of the region.
func (r *Region) ClearRegion() {
	if r.gtt == nil {
		return
	}

	firstEntry := r.base / PageSize
	entryCount := gttutils.DivideRoundUp(r.mappedEnd, PageSize)

	scratchEntry := newPte(r.gtt.scratchAddr, false)
	for i := 0; i < entryCount; i++ {
		r.gtt.writeEntry(firstEntry+i, scratchEntry)
	}
	if entryCount > 0 {
		r.gtt.postingRead(firstEntry + entryCount - 1)
	}

	for _, pin := range r.pins {
		if err := pin.Unpin(); err != nil {
			r.gtt.logger.LogAttrs(context.Background(), slog.LevelWarn, "failed to unpin a region chunk",
				slog.Int("base", r.base),
				slog.Any("error", err),
			)
		}
	}
	r.pins = nil
	r.mappedEnd = 0
	r.isRotated = false

	if r.object != nil {
		if err := r.object.Close(); err != nil {
			r.gtt.logger.LogAttrs(context.Background(), slog.LevelWarn, "failed to close a region's memory object",
				slog.Int("base", r.base),
				slog.Any("error", err),
			)
		}
		r.object = nil
	}
}

// Destroy clears the region if still populated and returns its address range
// to the Gtt's allocator. The Region must not be used afterwards.
func (r *Region) Destroy() {
	if r.gtt == nil {
		return
	}

	r.ClearRegion()

	if err := r.gtt.regionAllocator.Free(r.handle); err != nil {
		r.gtt.logger.LogAttrs(context.Background(), slog.LevelError, "failed to return a region's address range",
			slog.Int("base", r.base),
			slog.Int("size", r.size),
			slog.Any("error", err),
		)
	}

	r.gtt = nil
}

// SetRotation switches the region's page-table entries between row-major tile
// order and the transposed order needed for 90/270 degree scanout of the
// image described by image. It is a no-op when the requested rotation class
// already matches the region's current state.
//
// The permutation decomposes into disjoint cycles and is applied in place: the
// spare marker bit in each entry records whether its slot has reached the
// target ordering, so a cycle that was already walked from an earlier starting
// index is detected on its first read and skipped without a visited set. Each
// entry is read and written roughly twice through the MMIO table; the only
// extra state is one entry's worth of carry.
func (r *Region) SetRotation(rotation Rotation, image ImageDescriptor) {
	rotated := rotation.isRotatedClass()
	if rotated == r.isRotated {
		return
	}

	width := image.widthInTiles()
	height := image.heightInTiles()

	firstEntry := r.base / PageSize
	entryCount := r.size / PageSize
	// Pages past the tile grid have no position in the rotated scan order and
	// keep their mapping.
	if gridCount := width * height; gridCount < entryCount {
		entryCount = gridCount
	}

	for i := 0; i < entryCount; i++ {
		entry := r.gtt.readEntry(firstEntry + i)
		if entry.Rotated() == rotated {
			// The cycle through this slot was already walked.
			continue
		}

		pos := i
		carry := entry
		for {
			var newPos int
			if rotated {
				x := pos % width
				y := pos / width
				newPos = (x+1)*height - y - 1
			} else {
				x := pos % height
				y := pos / height
				newPos = (height-x-1)*width + y
			}

			displaced := r.gtt.readEntry(firstEntry + newPos)
			r.gtt.writeEntry(firstEntry+newPos, carry.WithRotated(rotated))
			carry = displaced
			pos = newPos

			if pos == i {
				break
			}
		}
	}

	if entryCount > 0 {
		r.gtt.postingRead(firstEntry + entryCount - 1)
	}

	r.isRotated = rotated
}
