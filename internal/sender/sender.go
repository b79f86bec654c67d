package sender

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/banshee-data/pointstream/internal/driver"
	"github.com/banshee-data/pointstream/internal/monitoring"
	"github.com/banshee-data/pointstream/internal/timeutil"
	"github.com/banshee-data/pointstream/internal/wire"
)

// PacketConn is the socket surface the sender needs. *net.UDPConn
// satisfies it; tests substitute a mock.
type PacketConn interface {
	Write(b []byte) (int, error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Sender runs the transmit pipeline inside the driver's point-cloud
// callback: filter, segment, number, send. All shared state is atomic or
// single-writer; the callback path takes no locks.
type Sender struct {
	cfg    Config
	conn   PacketConn
	clock  timeutil.Clock
	stats  Stats
	seq    atomic.Uint32
	shut   atomic.Bool
	filter pointFilter
	ts     *timestampTracker

	// staging buffers, reused across callbacks (single callback goroutine)
	filterBuf []wire.Point
	encodeBuf []byte
}

// New creates a Sender writing datagrams to conn. A nil clock selects the
// real clock.
func New(cfg Config, conn PacketConn, clock timeutil.Clock) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Sender{
		cfg:       cfg,
		conn:      conn,
		clock:     clock,
		filter:    newPointFilter(cfg),
		ts:        newTimestampTracker(clock),
		filterBuf: make([]wire.Point, 0, cfg.MaxSweepPoints),
		encodeBuf: make([]byte, 0, wire.MAX_DATAGRAM_SIZE),
	}, nil
}

// Dial resolves the configured endpoint and returns a connected UDP socket.
func Dial(cfg Config) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.TargetHost, cfg.TargetPort))
	if err != nil {
		return nil, fmt.Errorf("sender: failed to resolve target endpoint: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("sender: failed to create UDP socket: %w", err)
	}
	return conn, nil
}

// Stats returns the sender's counters.
func (s *Sender) Stats() *Stats {
	return &s.stats
}

// BeginShutdown sets the sticky shutdown flag. Callbacks observing it
// return immediately without touching the socket; the flag must be set
// before the driver is uninitialised and the socket closed.
func (s *Sender) BeginShutdown() {
	s.shut.Store(true)
}

// CloseSocket releases the UDP endpoint. Must only be called after the
// driver has stopped delivering callbacks.
func (s *Sender) CloseSocket() error {
	return s.conn.Close()
}

// HandleSweep is the driver.PointCloudHandler entry point. It must return
// quickly: every send is bounded by the configured write deadline and a
// failed send abandons the remainder of the sweep.
func (s *Sender) HandleSweep(handle uint32, deviceType uint8, sweep *driver.Sweep) {
	if s.shut.Load() {
		return
	}
	s.stats.Callbacks.Add(1)

	if sweep == nil || sweep.DataType != driver.DataTypeCartesianHigh {
		return
	}

	ts, fallback := s.ts.Select(sweep.TimestampNs, sweep.TimeSource)
	if fallback {
		s.stats.TimestampFallback.Store(true)
	}

	pts, filtered, capDropped := s.filter.filterInto(s.filterBuf[:0], sweep.Points)
	s.filterBuf = pts[:0]
	if filtered > 0 {
		s.stats.FilteredPoints.Add(filtered)
	}
	if capDropped > 0 {
		s.stats.CapacityDropped.Add(capDropped)
	}
	if len(pts) == 0 {
		return
	}

	s.sendSweep(ts, pts)
}

// sendSweep slices the filtered buffer into MTU-bounded chunks and
// transmits them with consecutive sequence numbers, all stamped with the
// same device timestamp. A transmit failure drops the remainder of the
// sweep: delivery effort is per-sweep atomic, never per-chunk retried.
func (s *Sender) sendSweep(deviceTsNs uint64, pts []wire.Point) {
	for off := 0; off < len(pts); off += wire.MAX_POINTS_PER_PACKET {
		end := off + wire.MAX_POINTS_PER_PACKET
		if end > len(pts) {
			end = len(pts)
		}
		chunk := pts[off:end]
		s.stats.SegmentedDatagrams.Add(1)
		s.stats.SegmentedPoints.Add(uint64(len(chunk)))

		h := wire.Header{
			DeviceTimestampNs: deviceTsNs,
			Seq:               s.nextSeq(),
			SensorID:          s.cfg.SensorID,
		}
		buf, err := wire.EncodeDatagram(s.encodeBuf, h, chunk, s.cfg.ChecksumEnabled)
		if err != nil {
			// unreachable with a valid chunk size; count and stop
			s.stats.DroppedDatagrams.Add(1)
			return
		}
		s.encodeBuf = buf[:0]

		if !s.send(buf) {
			remaining := (len(pts) - end + wire.MAX_POINTS_PER_PACKET - 1) / wire.MAX_POINTS_PER_PACKET
			if remaining > 0 {
				monitoring.Debugf("sender: dropping %d remaining chunks of sweep after send failure", remaining)
			}
			return
		}

		s.stats.Datagrams.Add(1)
		s.stats.Points.Add(uint64(len(chunk)))
		s.stats.Bytes.Add(uint64(len(buf)))
	}
}

// send transmits one datagram with the configured write deadline. On
// would-block, timeout, partial send, or any other error the datagram is
// abandoned; there are no retries.
func (s *Sender) send(buf []byte) bool {
	s.conn.SetWriteDeadline(s.clock.Now().Add(s.cfg.WriteTimeout))
	n, err := s.conn.Write(buf)
	if err != nil {
		s.stats.DroppedDatagrams.Add(1)
		if isWouldBlock(err) {
			s.stats.WouldBlock.Add(1)
			monitoring.Debugf("sender: send would block, datagram dropped")
		} else {
			monitoring.Debugf("sender: send failed: %v", err)
		}
		return false
	}
	if n != len(buf) {
		s.stats.DroppedDatagrams.Add(1)
		monitoring.Debugf("sender: partial send %d/%d bytes, datagram dropped", n, len(buf))
		return false
	}
	return true
}

// nextSeq allocates the next datagram sequence number with fetch-add
// semantics. The counter wraps at 2^32; each 2^32-1 -> 0 transition bumps
// the wrap counter.
func (s *Sender) nextSeq() uint32 {
	next := s.seq.Add(1)
	if next == 0 {
		s.stats.SequenceWraps.Add(1)
	}
	return next - 1
}

// SetSequence positions the sequence counter; the next datagram is
// numbered seq.
func (s *Sender) SetSequence(seq uint32) {
	s.seq.Store(seq)
}

func isWouldBlock(err error) bool {
	if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
