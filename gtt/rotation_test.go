package gtt

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gart/hw"
)

// populatedRegion allocates a region of the given page count and maps it with
// distinct, predictable physical addresses.
func populatedRegion(t *testing.T, g *Gtt, pages int) *Region {
	region, err := g.AllocRegion(pages*PageSize, PageSize)
	require.NoError(t, err)

	object := &fakeMemoryObject{size: pages * PageSize}
	require.NoError(t, region.PopulateRegion(object, 0, pages*PageSize, true))

	return region
}

func TestSetRotationPermutesEntries(t *testing.T) {
	bus := newFakeBus(PageSize, 0x4000_0000)
	g, _ := readyGtt(t, 64, 0, bus)

	// A 2x3 tile grid: 1024 bytes per row is 2 tiles wide, 24 rows is 3 tiles
	// tall. The region has two extra pages past the grid.
	image := ImageDescriptor{BytesPerRow: 2 * tileWidthBytes, Height: 3 * tileRows}
	region := populatedRegion(t, g, 8)

	firstPage := region.Base() / PageSize
	original := make([]hw.PhysAddr, 8)
	for i := range original {
		original[i] = g.readEntry(firstPage + i).Address()
	}

	region.SetRotation(Rotation90, image)

	// Tile at row-major position p lands at (x+1)*height-y-1 for the
	// transposed scan order.
	permuted := []int{2, 5, 1, 4, 0, 3}
	for pos, newPos := range permuted {
		entry := g.readEntry(firstPage + newPos)
		require.Equal(t, original[pos], entry.Address(), "tile %d did not land at %d", pos, newPos)
		require.True(t, entry.Rotated())
		require.True(t, entry.Present())
	}

	// Pages past the tile grid keep their mapping and stay unmarked
	for i := 6; i < 8; i++ {
		entry := g.readEntry(firstPage + i)
		require.Equal(t, original[i], entry.Address())
		require.False(t, entry.Rotated())
	}

	region.Destroy()
	require.NoError(t, g.Destroy())
}

func TestSetRotationRoundTrips(t *testing.T) {
	bus := newFakeBus(PageSize, 0x4000_0000)
	g, _ := readyGtt(t, 64, 0, bus)

	// A wider 4x2 grid exercises cycles of different lengths than 2x3
	image := ImageDescriptor{BytesPerRow: 4 * tileWidthBytes, Height: 2 * tileRows}
	region := populatedRegion(t, g, 8)

	firstPage := region.Base() / PageSize
	before := snapshotTable(g, firstPage, 8)

	region.SetRotation(Rotation90, image)
	region.SetRotation(RotationIdentity, image)

	// Rotating back restores every entry exactly, marker bits included
	require.Equal(t, before, snapshotTable(g, firstPage, 8))
	for i := 0; i < 8; i++ {
		require.False(t, g.readEntry(firstPage+i).Rotated())
	}

	region.Destroy()
	require.NoError(t, g.Destroy())
}

func TestSetRotationSameClassIsNoOp(t *testing.T) {
	bus := newFakeBus(PageSize, 0x4000_0000)
	g, mmio := readyGtt(t, 64, 0, bus)

	image := ImageDescriptor{BytesPerRow: 2 * tileWidthBytes, Height: 3 * tileRows}
	region := populatedRegion(t, g, 6)
	firstPage := region.Base() / PageSize

	// 180 scans backwards in row-major order, so an unrotated region needs no
	// entry permutation at all.
	writesBefore := mmio.write64Count
	region.SetRotation(Rotation180, image)
	require.Equal(t, writesBefore, mmio.write64Count)

	region.SetRotation(Rotation90, image)
	rotated := snapshotTable(g, firstPage, 6)

	// 270 is the same transposed ordering as 90: nothing to do
	writesBefore = mmio.write64Count
	region.SetRotation(Rotation270, image)
	require.Equal(t, writesBefore, mmio.write64Count)
	require.Equal(t, rotated, snapshotTable(g, firstPage, 6))

	region.Destroy()
	require.NoError(t, g.Destroy())
}

func TestSetRotationMarkerBits(t *testing.T) {
	bus := newFakeBus(PageSize, 0x4000_0000)
	g, _ := readyGtt(t, 64, 0, bus)

	image := ImageDescriptor{BytesPerRow: 2 * tileWidthBytes, Height: 3 * tileRows}
	region := populatedRegion(t, g, 6)
	firstPage := region.Base() / PageSize

	region.SetRotation(Rotation270, image)
	for i := 0; i < 6; i++ {
		require.True(t, g.readEntry(firstPage+i).Rotated(), "entry %d lost its marker", i)
	}

	region.SetRotation(RotationIdentity, image)
	for i := 0; i < 6; i++ {
		require.False(t, g.readEntry(firstPage+i).Rotated(), "entry %d kept its marker", i)
	}

	// ClearRegion leaves no markers behind either
	region.SetRotation(Rotation90, image)
	region.ClearRegion()
	for i := 0; i < 6; i++ {
		entry := g.readEntry(firstPage + i)
		require.False(t, entry.Rotated())
		require.Equal(t, g.scratchAddr, entry.Address())
	}

	region.Destroy()
	require.NoError(t, g.Destroy())
}
