package memutils

import "math"

// Statistics is a running total over the entries of one or more segment tables
type Statistics struct {
	// SegmentCount is the number of table entries, live or free
	SegmentCount int
	// LiveCount is the number of entries currently owned by a running process
	LiveCount int
	// SegmentBytes is the sum of the address range sizes of every entry
	SegmentBytes uint64
	// LiveBytes is the sum of the used bytes of every live entry
	LiveBytes uint64
}

func (s *Statistics) Clear() {
	s.SegmentCount = 0
	s.LiveCount = 0
	s.SegmentBytes = 0
	s.LiveBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.SegmentCount += other.SegmentCount
	s.LiveCount += other.LiveCount
	s.SegmentBytes += other.SegmentBytes
	s.LiveBytes += other.LiveBytes
}

// DetailedStatistics extends Statistics with free-region counts and size extremes. Call Clear
// before accumulating into a new value, so that the minimums start out at math.MaxUint64
type DetailedStatistics struct {
	Statistics
	FreeCount   int
	FreeBytes   uint64
	LiveSizeMin uint64
	LiveSizeMax uint64
	FreeSizeMin uint64
	FreeSizeMax uint64
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.FreeCount = 0
	s.FreeBytes = 0
	s.LiveSizeMin = math.MaxUint64
	s.LiveSizeMax = 0
	s.FreeSizeMin = math.MaxUint64
	s.FreeSizeMax = 0
}

func (s *DetailedStatistics) AddFreeRegion(size uint64) {
	s.FreeCount++
	s.FreeBytes += size

	if size < s.FreeSizeMin {
		s.FreeSizeMin = size
	}

	if size > s.FreeSizeMax {
		s.FreeSizeMax = size
	}
}

func (s *DetailedStatistics) AddLiveRegion(size uint64) {
	s.LiveCount++
	s.LiveBytes += size

	if size < s.LiveSizeMin {
		s.LiveSizeMin = size
	}

	if size > s.LiveSizeMax {
		s.LiveSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.FreeCount += other.FreeCount
	s.FreeBytes += other.FreeBytes

	if other.FreeSizeMin < s.FreeSizeMin {
		s.FreeSizeMin = other.FreeSizeMin
	}

	if other.FreeSizeMax > s.FreeSizeMax {
		s.FreeSizeMax = other.FreeSizeMax
	}

	if other.LiveSizeMin < s.LiveSizeMin {
		s.LiveSizeMin = other.LiveSizeMin
	}

	if other.LiveSizeMax > s.LiveSizeMax {
		s.LiveSizeMax = other.LiveSizeMax
	}
}
