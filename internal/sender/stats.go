package sender

import (
	"fmt"
	"sync/atomic"
)

// Stats tracks the sender pipeline counters. Every counter is an
// independent monotonic tally updated with relaxed atomic increments from
// the driver callback; none is ever reset during a session.
type Stats struct {
	Datagrams          atomic.Uint64 // transmitted datagrams
	Points             atomic.Uint64 // transmitted points
	Bytes              atomic.Uint64 // transmitted bytes
	DroppedDatagrams   atomic.Uint64
	FilteredPoints     atomic.Uint64 // points removed by the sentinel/range/downsample filter
	SegmentedDatagrams atomic.Uint64
	SegmentedPoints    atomic.Uint64
	CapacityDropped    atomic.Uint64 // points beyond the staging buffer in one sweep
	WouldBlock         atomic.Uint64 // sends abandoned on EAGAIN/timeout
	SequenceWraps      atomic.Uint32 // 2^32-1 -> 0 transitions of the sequence counter
	Callbacks          atomic.Uint64 // driver callback invocations
	TimestampFallback  atomic.Bool   // sticky host-clock fallback flag
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Datagrams          uint64
	Points             uint64
	Bytes              uint64
	DroppedDatagrams   uint64
	FilteredPoints     uint64
	SegmentedDatagrams uint64
	SegmentedPoints    uint64
	CapacityDropped    uint64
	WouldBlock         uint64
	SequenceWraps      uint32
	Callbacks          uint64
	TimestampFallback  bool
}

// Snapshot returns a copy of the counters for logging.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Datagrams:          s.Datagrams.Load(),
		Points:             s.Points.Load(),
		Bytes:              s.Bytes.Load(),
		DroppedDatagrams:   s.DroppedDatagrams.Load(),
		FilteredPoints:     s.FilteredPoints.Load(),
		SegmentedDatagrams: s.SegmentedDatagrams.Load(),
		SegmentedPoints:    s.SegmentedPoints.Load(),
		CapacityDropped:    s.CapacityDropped.Load(),
		WouldBlock:         s.WouldBlock.Load(),
		SequenceWraps:      s.SequenceWraps.Load(),
		Callbacks:          s.Callbacks.Load(),
		TimestampFallback:  s.TimestampFallback.Load(),
	}
}

// String formats the snapshot in the one-line summary style.
func (s Snapshot) String() string {
	msg := fmt.Sprintf("datagrams=%d points=%d bytes=%d dropped=%d filtered=%d would_block=%d wraps=%d callbacks=%d",
		s.Datagrams, s.Points, s.Bytes, s.DroppedDatagrams, s.FilteredPoints,
		s.WouldBlock, s.SequenceWraps, s.Callbacks)
	if s.CapacityDropped > 0 {
		msg += fmt.Sprintf(" capacity_dropped=%d", s.CapacityDropped)
	}
	if s.TimestampFallback {
		msg += " ts_fallback=true"
	}
	return msg
}
