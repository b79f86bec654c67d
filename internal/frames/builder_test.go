package frames

import (
	"testing"
	"time"

	"github.com/banshee-data/pointstream/internal/receiver"
	"github.com/banshee-data/pointstream/internal/wire"
)

const ms = uint64(time.Millisecond)

// rec builds a parsed record with n points at the given device time.
func rec(ts uint64, seq uint32, n int) *receiver.Record {
	pts := make([]wire.Point, n)
	for i := range pts {
		pts[i] = wire.Point{X: float32(i), Y: 1, Z: 2}
	}
	return &receiver.Record{
		Header: wire.Header{
			DeviceTimestampNs: ts,
			Seq:               seq,
			PointCount:        uint16(n),
		},
		Points: pts,
	}
}

func TestBuilderDefaults(t *testing.T) {
	b := NewBuilder(Config{})
	if b.framePeriodNs != uint64(100*time.Millisecond) {
		t.Errorf("Expected default frame period 100ms, got %d ns", b.framePeriodNs)
	}
	if b.maxFramePoints != 200000 {
		t.Errorf("Expected default maxFramePoints 200000, got %d", b.maxFramePoints)
	}
	if cap(b.buf) != b.maxFramePoints {
		t.Errorf("Expected preallocated buffer capacity %d, got %d", b.maxFramePoints, cap(b.buf))
	}
}

func TestFrameWindow(t *testing.T) {
	b := NewBuilder(Config{FramePeriod: 100 * time.Millisecond})

	for i, ts := range []uint64{0, 30 * ms, 60 * ms, 90 * ms} {
		if f := b.Add(rec(ts, uint32(i+1), 10)); f != nil {
			t.Fatalf("Unexpected frame closed at ts=%d", ts)
		}
	}

	// The 100ms record rolls the window over and opens a new frame.
	f := b.Add(rec(100*ms, 5, 10))
	if f == nil {
		t.Fatal("Expected a closed frame at the window boundary")
	}
	if f.PointCount != 40 || len(f.Points) != 40 {
		t.Errorf("Expected 40 points, got %d", f.PointCount)
	}
	if f.StartTsNs != 0 || f.EndTsNs != 90*ms {
		t.Errorf("Expected span [0, 90ms], got [%d, %d]", f.StartTsNs, f.EndTsNs)
	}
	if f.SeqFirst != 1 || f.SeqLast != 4 {
		t.Errorf("Expected seq span [1, 4], got [%d, %d]", f.SeqFirst, f.SeqLast)
	}
	if f.PacketCount != 4 {
		t.Errorf("Expected 4 packets, got %d", f.PacketCount)
	}

	// The boundary record seeded the new frame.
	nf := b.Flush()
	if nf == nil {
		t.Fatal("Expected an open frame after roll-over")
	}
	if nf.StartTsNs != 100*ms || nf.PointCount != 10 || nf.SeqFirst != 5 {
		t.Errorf("New frame = start %d, points %d, seq_first %d", nf.StartTsNs, nf.PointCount, nf.SeqFirst)
	}
}

func TestWindowBoundaries(t *testing.T) {
	b := NewBuilder(Config{FramePeriod: 100 * time.Millisecond})

	b.Add(rec(1000*ms, 1, 5))

	// start + period - 1 stays in the current frame.
	if f := b.Add(rec(1000*ms+100*ms-1, 2, 5)); f != nil {
		t.Error("Record at start+period-1 should not close the frame")
	}
	// start + period rolls over.
	if f := b.Add(rec(1000*ms+100*ms, 3, 5)); f == nil {
		t.Error("Record at start+period should close the frame")
	}
}

func TestLateRecordDropped(t *testing.T) {
	b := NewBuilder(Config{FramePeriod: 100 * time.Millisecond})

	b.Add(rec(100*ms, 1, 10))

	// ts == start-1 is late: dropped, counted, no frame emitted. The
	// far-future seq must leave sequence tracking untouched.
	if f := b.Add(rec(100*ms-1, 5000, 10)); f != nil {
		t.Error("Late record must not close a frame")
	}
	if got := b.stats.LatePackets.Load(); got != 1 {
		t.Errorf("Expected late_packets=1, got %d", got)
	}
	if len(b.buf) != 10 {
		t.Errorf("Late record must not change the buffer; have %d points", len(b.buf))
	}
	if got := b.stats.SequenceGaps.Load(); got != 0 {
		t.Errorf("Late record must not be sequence-tracked; gaps=%d", got)
	}

	// The next in-order record compares against seq 1, not the dropped
	// record's 5000: neither a gap nor a reorder.
	b.Add(rec(110*ms, 2, 10))
	if got := b.stats.SequenceGaps.Load(); got != 0 {
		t.Errorf("Dropped late record corrupted gap tracking; gaps=%d", got)
	}
	if got := b.stats.SequenceReorders.Load(); got != 0 {
		t.Errorf("Dropped late record corrupted reorder tracking; reorders=%d", got)
	}

	// A real gap after the late record is still detected.
	b.Add(rec(120*ms, 4, 10))
	if got := b.stats.SequenceGaps.Load(); got != 1 {
		t.Errorf("Expected the 2->4 gap to be counted, got %d", got)
	}
}

func TestOverflowDropsRecordKeepsFrameOpen(t *testing.T) {
	b := NewBuilder(Config{FramePeriod: 100 * time.Millisecond, MaxFramePoints: 50})

	b.Add(rec(0, 1, 30))
	if f := b.Add(rec(10*ms, 2, 25)); f != nil {
		t.Error("Overflow must not close the frame")
	}
	if got := b.stats.OverflowFrames.Load(); got != 1 {
		t.Errorf("Expected overflow_frames=1, got %d", got)
	}

	// The frame stays open with the first record only.
	f := b.Flush()
	if f == nil || f.PointCount != 30 {
		t.Fatalf("Expected open frame with 30 points, got %+v", f)
	}
	if f.PacketCount != 1 || f.SeqLast != 1 {
		t.Errorf("Dropped record must not update packet count or seq_last: %+v", f)
	}
}

func TestOverflowRecordStillTracked(t *testing.T) {
	b := NewBuilder(Config{FramePeriod: 100 * time.Millisecond, MaxFramePoints: 50})

	b.Add(rec(0, 1, 30))
	// The overflow record is dropped from the frame but still advances
	// sequence tracking, unlike a late record.
	b.Add(rec(10*ms, 4, 25))
	if got := b.stats.SequenceGaps.Load(); got != 1 {
		t.Errorf("Expected the 1->4 gap counted on the overflow record, got %d", got)
	}
	b.Add(rec(20*ms, 5, 10))
	if got := b.stats.SequenceGaps.Load(); got != 1 {
		t.Errorf("Record after overflow must compare against seq 4; gaps=%d", got)
	}
}

func TestFlushEmpty(t *testing.T) {
	b := NewBuilder(Config{})
	if f := b.Flush(); f != nil {
		t.Errorf("Flush with no open frame should return nil, got %+v", f)
	}
}

func TestSequenceDiagnostics(t *testing.T) {
	b := NewBuilder(Config{FramePeriod: time.Second})

	b.Add(rec(0, 10, 1))
	b.Add(rec(1*ms, 11, 1)) // consecutive, nothing counted
	b.Add(rec(2*ms, 14, 1)) // gap (12, 13 missing)
	b.Add(rec(3*ms, 12, 1)) // reorder within window
	b.Add(rec(4*ms, 13, 1))

	s := b.stats.Snapshot()
	if s.SequenceGaps != 1 {
		t.Errorf("Expected 1 gap, got %d", s.SequenceGaps)
	}
	// 14 -> 12 is a reorder; 12 -> 13 is a gap-free forward step.
	if s.SequenceReorders != 1 {
		t.Errorf("Expected 1 reorder, got %d", s.SequenceReorders)
	}
}

func TestSequenceReorderWindowExcludesWrap(t *testing.T) {
	b := NewBuilder(Config{FramePeriod: time.Second})

	// A drop of more than 1000 below last_seq looks like wrap-around and
	// is not counted as a reorder.
	b.Add(rec(0, 5000, 1))
	b.Add(rec(1*ms, 100, 1))
	if got := b.stats.SequenceReorders.Load(); got != 0 {
		t.Errorf("Expected no reorder across the wrap window, got %d", got)
	}
}

func TestFrameInvariants(t *testing.T) {
	period := 50 * time.Millisecond
	maxPoints := 100
	b := NewBuilder(Config{FramePeriod: period, MaxFramePoints: maxPoints})

	var closed []*Frame
	seqs := uint32(0)
	for ts := uint64(0); ts < 500*ms; ts += 7 * ms {
		seqs++
		if f := b.Add(rec(ts, seqs, 9)); f != nil {
			closed = append(closed, f)
		}
	}
	if f := b.Flush(); f != nil {
		closed = append(closed, f)
	}

	if len(closed) == 0 {
		t.Fatal("Expected frames to close")
	}
	for _, f := range closed {
		if f.StartTsNs > f.EndTsNs {
			t.Errorf("Frame start %d after end %d", f.StartTsNs, f.EndTsNs)
		}
		if f.EndTsNs >= f.StartTsNs+uint64(period.Nanoseconds()) {
			t.Errorf("Frame span %d..%d exceeds period", f.StartTsNs, f.EndTsNs)
		}
		if f.PointCount > maxPoints {
			t.Errorf("Frame has %d points, max is %d", f.PointCount, maxPoints)
		}
		if f.PointCount != len(f.Points) {
			t.Errorf("PointCount %d != len(Points) %d", f.PointCount, len(f.Points))
		}
	}
}

func TestClosedFramesAreIndependent(t *testing.T) {
	b := NewBuilder(Config{FramePeriod: 10 * time.Millisecond})

	b.Add(rec(0, 1, 3))
	first := b.Add(rec(10*ms, 2, 3))
	if first == nil {
		t.Fatal("Expected first frame to close")
	}
	second := b.Flush()
	if second == nil {
		t.Fatal("Expected second frame from flush")
	}

	// Close copies out of the reused buffer: mutating one frame must not
	// affect the other.
	first.Points[0] = Vec3{X: -999}
	if second.Points[0].X == -999 {
		t.Error("Frames share a backing array; close must copy")
	}
}

func TestHandleRecordCallback(t *testing.T) {
	b := NewBuilder(Config{FramePeriod: 10 * time.Millisecond})

	var got []*Frame
	b.SetFrameCallback(func(f *Frame) { got = append(got, f) })

	b.HandleRecord(rec(0, 1, 2))
	b.HandleRecord(rec(10*ms, 2, 2))
	if len(got) != 1 {
		t.Fatalf("Expected 1 frame via callback, got %d", len(got))
	}
	if got[0].PointCount != 2 {
		t.Errorf("Expected 2 points in callback frame, got %d", got[0].PointCount)
	}
}
