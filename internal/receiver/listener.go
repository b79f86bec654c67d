package receiver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/pointstream/internal/monitoring"
	"github.com/banshee-data/pointstream/internal/wire"
)

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address        string        // bind address, e.g. ":8888"
	RcvBuf         int           // socket receive buffer (default 4MB)
	LogInterval    time.Duration // periodic stats log interval (default 1m)
	VerifyChecksum bool          // recompute crc32 on datagrams that carry one
	Handler        Handler       // record consumer; nil discards records
}

// UDPListener receives point-cloud datagrams, validates them through the
// wire codec, and hands records to the configured Handler from a single
// read goroutine.
type UDPListener struct {
	address        string
	rcvBuf         int
	logInterval    time.Duration
	verifyChecksum bool
	handler        Handler
	conn           *net.UDPConn
	stats          Stats
}

// NewUDPListener creates a listener with the provided configuration.
func NewUDPListener(cfg UDPListenerConfig) *UDPListener {
	if cfg.RcvBuf == 0 {
		cfg.RcvBuf = 4 << 20
	}
	if cfg.LogInterval == 0 {
		cfg.LogInterval = time.Minute
	}
	handler := cfg.Handler
	if handler == nil {
		handler = noopHandler{}
	}
	return &UDPListener{
		address:        cfg.Address,
		rcvBuf:         cfg.RcvBuf,
		logInterval:    cfg.LogInterval,
		verifyChecksum: cfg.VerifyChecksum,
		handler:        handler,
	}
}

// noopHandler discards records. It is the safe default when no consumer is
// configured.
type noopHandler struct{}

func (noopHandler) HandleRecord(*Record) {}

// Stats returns the listener's counters.
func (l *UDPListener) Stats() *Stats {
	return &l.stats
}

// Start binds the socket and runs the receive loop until ctx is cancelled.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.conn = conn
	defer conn.Close()

	if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
		monitoring.Logf("Warning: failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
	}

	monitoring.Logf("UDP listener started on %s with receive buffer %d bytes", l.address, l.rcvBuf)

	go l.startStatsLogging(ctx)

	// One datagram never exceeds the MTU-bounded maximum; a little margin
	// lets oversized datagrams surface as length mismatches instead of
	// silent truncation.
	buffer := make([]byte, 2048)
	scratch := make([]wire.Point, 0, wire.MAX_POINTS_PER_PACKET)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("UDP listener stopping due to context cancellation")
			return ctx.Err()
		default:
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, _, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue // check context, then keep reading
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				monitoring.Logf("UDP read error: %v", err)
				continue
			}

			l.handleDatagram(buffer[:n], scratch)
		}
	}
}

// handleDatagram validates one datagram and emits a record on success.
// Malformed datagrams bump the per-kind counter and are discarded; errors
// are never surfaced above the codec.
func (l *UDPListener) handleDatagram(buf []byte, scratch []wire.Point) {
	l.stats.TotalDatagrams.Add(1)

	h, pts, err := wire.Decode(buf, scratch, l.verifyChecksum)
	if err != nil {
		l.stats.CountError(err)
		monitoring.Debugf("receiver: discarded datagram: %v", err)
		return
	}
	l.stats.ValidDatagrams.Add(1)

	rec := Record{Header: h, Points: pts}
	l.handler.HandleRecord(&rec)
}

// startStatsLogging periodically logs validation counters. An initial
// report fires shortly after startup to avoid a long first-run silence.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		monitoring.Logf("Receiver stats: %s", l.stats.Snapshot())
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			monitoring.Logf("Receiver stats: %s", l.stats.Snapshot())
		}
	}
}

// Close closes the socket if the listener is running.
func (l *UDPListener) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
