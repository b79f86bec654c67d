package frames

import (
	"fmt"
	"sync/atomic"
)

// Stats tracks frame assembly counters. All counters are monotonic,
// updated with relaxed atomic increments, and never reset during a
// session.
type Stats struct {
	FramesBuilt      atomic.Uint64
	PacketsAdded     atomic.Uint64
	PointsAdded      atomic.Uint64
	LatePackets      atomic.Uint64
	SequenceGaps     atomic.Uint64
	SequenceReorders atomic.Uint64
	OverflowFrames   atomic.Uint64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	FramesBuilt      uint64
	PacketsAdded     uint64
	PointsAdded      uint64
	LatePackets      uint64
	SequenceGaps     uint64
	SequenceReorders uint64
	OverflowFrames   uint64
}

// Snapshot returns a consistent-enough copy of the counters for logging.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		FramesBuilt:      s.FramesBuilt.Load(),
		PacketsAdded:     s.PacketsAdded.Load(),
		PointsAdded:      s.PointsAdded.Load(),
		LatePackets:      s.LatePackets.Load(),
		SequenceGaps:     s.SequenceGaps.Load(),
		SequenceReorders: s.SequenceReorders.Load(),
		OverflowFrames:   s.OverflowFrames.Load(),
	}
}

// String formats the snapshot in the one-line summary style used at
// shutdown and by the periodic stats logger.
func (s Snapshot) String() string {
	return fmt.Sprintf("frames=%d packets=%d points=%d late=%d gaps=%d reorders=%d overflow=%d",
		s.FramesBuilt, s.PacketsAdded, s.PointsAdded, s.LatePackets,
		s.SequenceGaps, s.SequenceReorders, s.OverflowFrames)
}
