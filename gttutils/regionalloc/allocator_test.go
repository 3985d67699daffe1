package regionalloc_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gart/gttutils"
	"github.com/vkngwrapper/gart/gttutils/regionalloc"
)

const page = 4096

func TestBasicAllocate(t *testing.T) {
	alloc := regionalloc.New()
	alloc.Init(1 << 20)

	var stats gttutils.DetailedStatistics
	stats.Clear()
	alloc.AddDetailedStatistics(&stats)

	require.Equal(t, gttutils.DetailedStatistics{
		Statistics: gttutils.Statistics{
			ApertureCount: 1,
			ApertureBytes: 1 << 20,
			RegionCount:   0,
			RegionBytes:   0,
		},
		UnusedRangeCount:   1,
		RegionSizeMin:      math.MaxInt,
		RegionSizeMax:      0,
		UnusedRangeSizeMin: 1 << 20,
		UnusedRangeSizeMax: 1 << 20,
	}, stats)

	handle, offset, err := alloc.Allocate(page, page)
	require.NoError(t, err)
	require.NotEqual(t, regionalloc.NoRange, handle)
	require.Equal(t, 0, offset)
	require.NoError(t, alloc.Validate())

	stats.Clear()
	alloc.AddDetailedStatistics(&stats)

	require.Equal(t, gttutils.DetailedStatistics{
		Statistics: gttutils.Statistics{
			ApertureCount: 1,
			ApertureBytes: 1 << 20,
			RegionCount:   1,
			RegionBytes:   page,
		},
		UnusedRangeCount:   1,
		RegionSizeMin:      page,
		RegionSizeMax:      page,
		UnusedRangeSizeMin: 1<<20 - page,
		UnusedRangeSizeMax: 1<<20 - page,
	}, stats)

	err = alloc.Free(handle)
	require.NoError(t, err)
	require.NoError(t, alloc.Validate())
	require.True(t, alloc.IsEmpty())
	require.Equal(t, 1<<20, alloc.SumFreeSize())
}

func TestAllocateDisjoint(t *testing.T) {
	alloc := regionalloc.New()
	alloc.Init(1 << 20)

	type claimed struct {
		offset int
		size   int
	}
	var ranges []claimed

	sizes := []int{page, 4 * page, 2 * page, 8 * page, page, 16 * page}
	for _, size := range sizes {
		_, offset, err := alloc.Allocate(size, page)
		require.NoError(t, err)
		ranges = append(ranges, claimed{offset, size})
	}
	require.NoError(t, alloc.Validate())

	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			a, b := ranges[i], ranges[j]
			overlaps := a.offset < b.offset+b.size && b.offset < a.offset+a.size
			require.False(t, overlaps, "range %d and %d overlap", i, j)
		}
	}
}

func TestAllocateAlignment(t *testing.T) {
	alloc := regionalloc.New()
	alloc.Init(1 << 20)

	_, offset, err := alloc.Allocate(page, page)
	require.NoError(t, err)
	require.Equal(t, 0, offset)

	_, offset, err = alloc.Allocate(page, 16*page)
	require.NoError(t, err)
	require.Equal(t, 16*page, offset)
	require.Zero(t, offset%(16*page))
	require.NoError(t, alloc.Validate())
}

func TestAlignmentMustBePow2(t *testing.T) {
	alloc := regionalloc.New()
	alloc.Init(1 << 20)

	_, _, err := alloc.Allocate(page, 3*page)
	require.Error(t, err)
	require.ErrorIs(t, err, gttutils.PowerOfTwoError)
}

func TestFreeCoalesces(t *testing.T) {
	alloc := regionalloc.New()
	alloc.Init(8 * page)

	a, aOffset, err := alloc.Allocate(page, page)
	require.NoError(t, err)
	require.Equal(t, 0, aOffset)

	b, bOffset, err := alloc.Allocate(2*page, page)
	require.NoError(t, err)
	require.Equal(t, page, bOffset)

	// Fill the rest of the aperture so only coalesced space can serve
	c, cOffset, err := alloc.Allocate(5*page, page)
	require.NoError(t, err)
	require.Equal(t, 3*page, cOffset)

	require.NoError(t, alloc.Free(b))
	require.NoError(t, alloc.Free(a))
	require.NoError(t, alloc.Validate())

	// a and b merged back into one free range at the bottom
	merged, mergedOffset, err := alloc.Allocate(3*page, page)
	require.NoError(t, err)
	require.Equal(t, 0, mergedOffset)

	require.NoError(t, alloc.Free(merged))
	require.NoError(t, alloc.Free(c))
	require.NoError(t, alloc.Validate())
	require.True(t, alloc.IsEmpty())
}

func TestAllocateOutOfSpace(t *testing.T) {
	alloc := regionalloc.New()
	alloc.Init(16 * page)

	_, _, err := alloc.Allocate(8*page, page)
	require.NoError(t, err)

	_, _, err = alloc.Allocate(16*page, page)
	require.Error(t, err)
	require.ErrorIs(t, err, regionalloc.ErrOutOfSpace)

	// Exhaust almost everything, then overshoot what's left
	_, _, err = alloc.Allocate(4*page, page)
	require.NoError(t, err)
	_, _, err = alloc.Allocate(2*page, page)
	require.NoError(t, err)
	_, _, err = alloc.Allocate(4*page, page)
	require.Error(t, err)
	require.ErrorIs(t, err, regionalloc.ErrOutOfSpace)
	require.NoError(t, alloc.Validate())
}

func TestFreeUnknownHandle(t *testing.T) {
	alloc := regionalloc.New()
	alloc.Init(16 * page)

	err := alloc.Free(regionalloc.RangeHandle(12345))
	require.Error(t, err)
}

func TestDoubleFree(t *testing.T) {
	alloc := regionalloc.New()
	alloc.Init(16 * page)

	handle, _, err := alloc.Allocate(page, page)
	require.NoError(t, err)
	require.NoError(t, alloc.Free(handle))

	// The node may have been merged and recycled; either way a second free
	// must not succeed silently.
	err = alloc.Free(handle)
	require.Error(t, err)
}

func TestRangeOffset(t *testing.T) {
	alloc := regionalloc.New()
	alloc.Init(64 * page)

	_, _, err := alloc.Allocate(3*page, page)
	require.NoError(t, err)

	handle, offset, err := alloc.Allocate(page, page)
	require.NoError(t, err)

	gotOffset, err := alloc.RangeOffset(handle)
	require.NoError(t, err)
	require.Equal(t, offset, gotOffset)
}

func TestVisitAllRanges(t *testing.T) {
	alloc := regionalloc.New()
	alloc.Init(8 * page)

	_, _, err := alloc.Allocate(2*page, page)
	require.NoError(t, err)
	_, _, err = alloc.Allocate(page, page)
	require.NoError(t, err)

	var taken, total int
	err = alloc.VisitAllRanges(func(handle regionalloc.RangeHandle, offset, size int, free bool) error {
		total += size
		if !free {
			taken += size
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 8*page, total)
	require.Equal(t, 3*page, taken)
}

func TestClear(t *testing.T) {
	alloc := regionalloc.New()
	alloc.Init(32 * page)

	for i := 0; i < 5; i++ {
		_, _, err := alloc.Allocate(page, page)
		require.NoError(t, err)
	}
	require.Equal(t, 5, alloc.RangeCount())

	alloc.Clear()
	require.True(t, alloc.IsEmpty())
	require.Equal(t, 0, alloc.RangeCount())
	require.Equal(t, 32*page, alloc.SumFreeSize())
	require.NoError(t, alloc.Validate())

	_, offset, err := alloc.Allocate(32*page, page)
	require.NoError(t, err)
	require.Equal(t, 0, offset)
}

func TestChurn(t *testing.T) {
	alloc := regionalloc.New()
	alloc.Init(1 << 20)

	handles := make([]regionalloc.RangeHandle, 0, 64)
	for i := 0; i < 64; i++ {
		handle, _, err := alloc.Allocate(page*(1+i%7), page)
		require.NoError(t, err)
		handles = append(handles, handle)
	}
	require.NoError(t, alloc.Validate())

	// Free every other range, then refill
	for i := 0; i < len(handles); i += 2 {
		require.NoError(t, alloc.Free(handles[i]))
	}
	require.NoError(t, alloc.Validate())

	for i := 0; i < 16; i++ {
		_, _, err := alloc.Allocate(page, page)
		require.NoError(t, err)
	}
	require.NoError(t, alloc.Validate())
}
