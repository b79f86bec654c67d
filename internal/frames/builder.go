// Package frames assembles parsed point-cloud datagrams into time-windowed
// frames keyed by device timestamp.
package frames

import (
	"time"

	"github.com/banshee-data/pointstream/internal/monitoring"
	"github.com/banshee-data/pointstream/internal/receiver"
)

// Vec3 is one frame point: Cartesian metres, 12 bytes packed.
type Vec3 struct {
	X, Y, Z float32
}

// Frame is one closed time window of points, delivered to consumers. A
// Frame is constructed on close and owned by the consumer thereafter.
type Frame struct {
	SensorID uint16

	Points []Vec3 // in admission order

	StartTsNs uint64 // device timestamp of the first admitted record
	EndTsNs   uint64 // max device timestamp among admitted records

	SeqFirst uint32 // sequence of the first contributing datagram
	SeqLast  uint32 // sequence of the last contributing datagram

	PacketCount int
	PointCount  int
}

// Duration returns the device-time span of the frame.
func (f *Frame) Duration() time.Duration {
	return time.Duration(f.EndTsNs - f.StartTsNs)
}

// Config holds configuration for the Builder.
type Config struct {
	FramePeriod    time.Duration // device-time window per frame (default 100ms)
	MaxFramePoints int           // capacity bound per frame (default 200000)
}

// Builder accumulates parsed records into frames using a fixed device-time
// window. It is single-writer: callers invoking Add from more than one
// goroutine must serialise externally. The point buffer is preallocated to
// MaxFramePoints and reused across frames; Close copies into a right-sized
// slice owned by the emitted Frame.
type Builder struct {
	framePeriodNs  uint64
	maxFramePoints int

	stats Stats

	// current frame state; valid only while open is true
	open     bool
	sensorID uint16
	startTs  uint64
	endTs    uint64
	seqFirst uint32
	seqLast  uint32
	pktCount int
	buf      []Vec3

	// sequence diagnostics across the whole stream
	lastSeq uint32
	haveSeq bool

	// callback invoked for frames closed by roll-over inside HandleRecord
	frameCallback func(*Frame)
}

// NewBuilder creates a Builder with the given configuration, applying
// defaults for zero fields.
func NewBuilder(cfg Config) *Builder {
	if cfg.FramePeriod == 0 {
		cfg.FramePeriod = 100 * time.Millisecond
	}
	if cfg.MaxFramePoints == 0 {
		cfg.MaxFramePoints = 200000
	}
	return &Builder{
		framePeriodNs:  uint64(cfg.FramePeriod.Nanoseconds()),
		maxFramePoints: cfg.MaxFramePoints,
		buf:            make([]Vec3, 0, cfg.MaxFramePoints),
	}
}

// SetFrameCallback registers a callback invoked with every frame closed
// during HandleRecord. Frames returned by Add/Flush directly are not passed
// to the callback.
func (b *Builder) SetFrameCallback(cb func(*Frame)) {
	b.frameCallback = cb
}

// Stats returns the builder's counters.
func (b *Builder) Stats() *Stats {
	return &b.stats
}

// Add feeds one parsed record into the current window. It returns a closed
// Frame when the record's timestamp rolls the window over, and nil
// otherwise. Late records (timestamp before the open frame's start) and
// records that would exceed the point capacity are dropped and counted.
func (b *Builder) Add(rec *receiver.Record) *Frame {
	ts := rec.Header.DeviceTimestampNs

	if !b.open {
		b.openFrame(rec)
		b.append(rec)
		return nil
	}

	if ts < b.startTs {
		b.stats.LatePackets.Add(1)
		monitoring.Debugf("frames: late record seq=%d ts=%d frame_start=%d", rec.Header.Seq, ts, b.startTs)
		return nil
	}

	if ts >= b.startTs+b.framePeriodNs {
		closed := b.close()
		b.openFrame(rec)
		b.append(rec)
		return closed
	}

	b.append(rec)
	return nil
}

// HandleRecord implements receiver.Handler, routing roll-over frames to the
// registered frame callback.
func (b *Builder) HandleRecord(rec *receiver.Record) {
	if f := b.Add(rec); f != nil && b.frameCallback != nil {
		b.frameCallback(f)
	}
}

// Flush closes and returns the open frame, or nil when none is open.
// Called exactly once at shutdown.
func (b *Builder) Flush() *Frame {
	if !b.open {
		return nil
	}
	return b.close()
}

func (b *Builder) openFrame(rec *receiver.Record) {
	b.open = true
	b.sensorID = rec.Header.SensorID
	b.startTs = rec.Header.DeviceTimestampNs
	b.endTs = b.startTs
	b.seqFirst = rec.Header.Seq
	b.seqLast = rec.Header.Seq
	b.pktCount = 0
	b.buf = b.buf[:0]
}

// append admits a record into the open frame, enforcing the capacity bound.
// On overflow the record is dropped and the frame stays open: exceeding
// capacity usually means a misconfiguration or sensor anomaly, and closing
// early would emit a truncated frame with misleading time bounds.
//
// Sequence diagnostics run here, not in Add: late records are dropped
// before reaching append, so a dropped late record never disturbs the
// tracked last sequence. Overflow-dropped records are still tracked.
func (b *Builder) append(rec *receiver.Record) {
	b.trackSequence(rec.Header.Seq)

	n := len(rec.Points)
	if len(b.buf)+n > b.maxFramePoints {
		b.stats.OverflowFrames.Add(1)
		monitoring.Debugf("frames: overflow, dropped record seq=%d points=%d buffered=%d max=%d",
			rec.Header.Seq, n, len(b.buf), b.maxFramePoints)
		return
	}
	for _, p := range rec.Points {
		b.buf = append(b.buf, Vec3{X: p.X, Y: p.Y, Z: p.Z})
	}
	if ts := rec.Header.DeviceTimestampNs; ts > b.endTs {
		b.endTs = ts
	}
	b.seqLast = rec.Header.Seq
	b.pktCount++
	b.stats.PacketsAdded.Add(1)
	b.stats.PointsAdded.Add(uint64(n))
}

// close copies the accumulated buffer into an owned Frame and clears the
// builder state. The preallocated buffer keeps its capacity for reuse.
func (b *Builder) close() *Frame {
	f := &Frame{
		SensorID:    b.sensorID,
		Points:      append([]Vec3(nil), b.buf...),
		StartTsNs:   b.startTs,
		EndTsNs:     b.endTs,
		SeqFirst:    b.seqFirst,
		SeqLast:     b.seqLast,
		PacketCount: b.pktCount,
		PointCount:  len(b.buf),
	}
	b.open = false
	b.buf = b.buf[:0]
	b.stats.FramesBuilt.Add(1)
	return f
}

// trackSequence maintains the gap/reorder diagnostics. A gap is any
// forward step past last+1 (the forward test keeps the 2^32 wrap from
// counting); a reorder is a backward step within 1000 of the last
// sequence, anything further below is treated as wrap-around. Diagnostic
// only.
func (b *Builder) trackSequence(seq uint32) {
	if !b.haveSeq {
		b.lastSeq = seq
		b.haveSeq = true
		return
	}
	if expected := b.lastSeq + 1; seq != expected && seq > b.lastSeq {
		b.stats.SequenceGaps.Add(1)
	}
	if seq < b.lastSeq && b.lastSeq-seq < 1000 {
		b.stats.SequenceReorders.Add(1)
	}
	b.lastSeq = seq
}
