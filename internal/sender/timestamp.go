package sender

import (
	"time"

	"github.com/banshee-data/pointstream/internal/driver"
	"github.com/banshee-data/pointstream/internal/monitoring"
	"github.com/banshee-data/pointstream/internal/timeutil"
)

// maxPlausibleDeltaNs bounds the step between consecutive adopted device
// timestamps. A jump of a second or more between sweeps means the device
// clock re-based (PTP/GPS mode switch, reboot) and cannot be trusted.
const maxPlausibleDeltaNs = 1_000_000_000

// timestampTracker selects the timestamp stamped on outgoing datagrams.
// Device time is adopted while it advances plausibly; on the first
// non-monotonic or implausible observation the tracker switches to the
// host clock, permanently, with a single warning. Single-writer: called
// from the driver callback only.
type timestampTracker struct {
	clock       timeutil.Clock
	hostBase    time.Time // anchor for the monotonic host fallback clock
	lastAdopted uint64
	haveFirst   bool
	fallback    bool

	seenTimeSources map[driver.TimeSource]bool
}

func newTimestampTracker(clock timeutil.Clock) *timestampTracker {
	return &timestampTracker{
		clock:           clock,
		hostBase:        clock.Now(),
		seenTimeSources: make(map[driver.TimeSource]bool),
	}
}

// Select returns the timestamp to stamp on this sweep's datagrams and
// whether the tracker is (now) in host-clock fallback.
func (t *timestampTracker) Select(deviceTsNs uint64, source driver.TimeSource) (uint64, bool) {
	if !t.seenTimeSources[source] {
		t.seenTimeSources[source] = true
		if source != driver.TimeSourceNoSync {
			monitoring.Logf("Warning: device reports %s time source; timebase may re-base on sync changes", source)
		}
	}

	if t.fallback {
		return t.hostNow(), true
	}

	if !t.haveFirst {
		t.haveFirst = true
		t.lastAdopted = deviceTsNs
		return deviceTsNs, false
	}

	if deviceTsNs > t.lastAdopted && deviceTsNs-t.lastAdopted < maxPlausibleDeltaNs {
		t.lastAdopted = deviceTsNs
		return deviceTsNs, false
	}

	t.fallback = true
	monitoring.Logf("Warning: device timestamp not monotonic or jumped by 1s or more (last=%d now=%d); switching to host clock for the rest of the session",
		t.lastAdopted, deviceTsNs)
	return t.hostNow(), true
}

// hostNow returns the host monotonic clock in nanoseconds: the wall time at
// tracker creation plus the monotonic time elapsed since then, so the value
// never steps backwards when the wall clock is adjusted.
func (t *timestampTracker) hostNow() uint64 {
	return uint64(t.hostBase.UnixNano()) + uint64(t.clock.Since(t.hostBase))
}
