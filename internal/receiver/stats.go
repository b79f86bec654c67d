package receiver

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/banshee-data/pointstream/internal/wire"
)

// Stats tracks datagram validation counters. Monotonic, relaxed atomic
// increments, never reset during a session.
type Stats struct {
	TotalDatagrams   atomic.Uint64
	ValidDatagrams   atomic.Uint64
	ChecksumFailures atomic.Uint64
	BadMagic         atomic.Uint64
	BadVersion       atomic.Uint64
	LengthMismatches atomic.Uint64
	InvalidCounts    atomic.Uint64
}

// CountError bumps the counter matching a decode failure. Short datagrams
// count as length mismatches.
func (s *Stats) CountError(err error) {
	switch {
	case errors.Is(err, wire.ErrBadChecksum):
		s.ChecksumFailures.Add(1)
	case errors.Is(err, wire.ErrBadMagic):
		s.BadMagic.Add(1)
	case errors.Is(err, wire.ErrBadVersion):
		s.BadVersion.Add(1)
	case errors.Is(err, wire.ErrInvalidCount):
		s.InvalidCounts.Add(1)
	case errors.Is(err, wire.ErrTooShort), errors.Is(err, wire.ErrLengthMismatch):
		s.LengthMismatches.Add(1)
	}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalDatagrams   uint64
	ValidDatagrams   uint64
	ChecksumFailures uint64
	BadMagic         uint64
	BadVersion       uint64
	LengthMismatches uint64
	InvalidCounts    uint64
}

// Snapshot returns a copy of the counters for logging.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		TotalDatagrams:   s.TotalDatagrams.Load(),
		ValidDatagrams:   s.ValidDatagrams.Load(),
		ChecksumFailures: s.ChecksumFailures.Load(),
		BadMagic:         s.BadMagic.Load(),
		BadVersion:       s.BadVersion.Load(),
		LengthMismatches: s.LengthMismatches.Load(),
		InvalidCounts:    s.InvalidCounts.Load(),
	}
}

// String formats the snapshot in the one-line summary style.
func (s Snapshot) String() string {
	return fmt.Sprintf("datagrams=%d valid=%d crc_fail=%d bad_magic=%d bad_version=%d bad_length=%d bad_count=%d",
		s.TotalDatagrams, s.ValidDatagrams, s.ChecksumFailures,
		s.BadMagic, s.BadVersion, s.LengthMismatches, s.InvalidCounts)
}
