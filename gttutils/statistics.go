package gttutils

import "math"

// Statistics is a minimal accounting of an address-space aperture: how many apertures
// were summed into this object, how many regions are live within them, and the byte
// totals for each.
type Statistics struct {
	ApertureCount int
	RegionCount   int
	ApertureBytes int
	RegionBytes   int
}

func (s *Statistics) Clear() {
	s.ApertureCount = 0
	s.RegionCount = 0
	s.ApertureBytes = 0
	s.RegionBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.ApertureCount += other.ApertureCount
	s.RegionCount += other.RegionCount
	s.ApertureBytes += other.ApertureBytes
	s.RegionBytes += other.RegionBytes
}

// DetailedStatistics extends Statistics with free-range counts and region/free-range
// size extrema.
type DetailedStatistics struct {
	Statistics
	UnusedRangeCount   int
	RegionSizeMin      int
	RegionSizeMax      int
	UnusedRangeSizeMin int
	UnusedRangeSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.UnusedRangeCount = 0
	s.RegionSizeMin = math.MaxInt
	s.RegionSizeMax = 0
	s.UnusedRangeSizeMin = math.MaxInt
	s.UnusedRangeSizeMax = 0
}

func (s *DetailedStatistics) AddUnusedRange(size int) {
	s.UnusedRangeCount++

	if size < s.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = size
	}

	if size > s.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = size
	}
}

func (s *DetailedStatistics) AddRegion(size int) {
	s.RegionCount++
	s.RegionBytes += size

	if size < s.RegionSizeMin {
		s.RegionSizeMin = size
	}

	if size > s.RegionSizeMax {
		s.RegionSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.UnusedRangeCount += other.UnusedRangeCount

	if s.RegionSizeMin > other.RegionSizeMin {
		s.RegionSizeMin = other.RegionSizeMin
	}
	if s.RegionSizeMax < other.RegionSizeMax {
		s.RegionSizeMax = other.RegionSizeMax
	}
	if s.UnusedRangeSizeMin > other.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = other.UnusedRangeSizeMin
	}
	if s.UnusedRangeSizeMax < other.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = other.UnusedRangeSizeMax
	}
}
