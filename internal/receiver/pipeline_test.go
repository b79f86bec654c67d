package receiver_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/banshee-data/pointstream/internal/driver"
	"github.com/banshee-data/pointstream/internal/frames"
	"github.com/banshee-data/pointstream/internal/receiver"
	"github.com/banshee-data/pointstream/internal/sender"
)

// freeUDPPort reserves a port by binding and releasing it. There is a
// small window before the listener rebinds it, which is acceptable for a
// loopback test.
func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port
	conn.Close()
	return port
}

// TestSenderToReceiverLoopback drives the full pipeline over a real UDP
// socket: sweep -> filter -> segment -> datagrams -> decode -> frames.
func TestSenderToReceiverLoopback(t *testing.T) {
	port := freeUDPPort(t)

	builder := frames.NewBuilder(frames.Config{FramePeriod: 100 * time.Millisecond})
	frameCh := make(chan *frames.Frame, 4)
	builder.SetFrameCallback(func(f *frames.Frame) { frameCh <- f })

	listener := receiver.NewUDPListener(receiver.UDPListenerConfig{
		Address:        net.JoinHostPort("127.0.0.1", strconv.Itoa(port)),
		VerifyChecksum: true,
		Handler:        builder,
	})

	ctx, cancel := context.WithCancel(context.Background())
	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		listener.Start(ctx)
	}()
	defer func() {
		cancel()
		<-listenerDone
	}()

	// Give the listener a moment to bind before transmitting.
	time.Sleep(100 * time.Millisecond)

	cfg := sender.DefaultConfig()
	cfg.TargetHost = "127.0.0.1"
	cfg.TargetPort = port
	cfg.ChecksumEnabled = true

	conn, err := sender.Dial(cfg)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	snd, err := sender.New(cfg, conn, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer snd.CloseSocket()

	sweep := func(ts uint64, n int) *driver.Sweep {
		pts := make([]driver.RawPoint, n)
		for i := range pts {
			pts[i] = driver.RawPoint{X: 3000, Y: int32(i + 1), Z: 500, Reflectivity: 50}
		}
		return &driver.Sweep{TimestampNs: ts, DataType: driver.DataTypeCartesianHigh, Points: pts}
	}

	base := uint64(1_000_000_000_000)
	snd.HandleSweep(0, 0, sweep(base, 250)) // 3 datagrams
	snd.HandleSweep(0, 0, sweep(base+50_000_000, 10))

	// Wait for the window's datagrams to arrive.
	waitFor(t, func() bool { return listener.Stats().ValidDatagrams.Load() >= 4 })

	// A sweep past the window boundary closes the first frame.
	snd.HandleSweep(0, 0, sweep(base+100_000_000, 10))

	select {
	case f := <-frameCh:
		if f.PointCount != 260 {
			t.Errorf("Expected 260 points in first frame, got %d", f.PointCount)
		}
		if f.StartTsNs != base || f.EndTsNs != base+50_000_000 {
			t.Errorf("Frame span [%d, %d], want [%d, %d]", f.StartTsNs, f.EndTsNs, base, base+50_000_000)
		}
		if f.PacketCount != 4 {
			t.Errorf("Expected 4 packets in first frame, got %d", f.PacketCount)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the first frame")
	}

	s := listener.Stats().Snapshot()
	if s.ChecksumFailures != 0 || s.ValidDatagrams < 5 {
		t.Errorf("Receiver stats: %s", s)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Timed out waiting for condition")
}

