// Command pointrecv receives point-cloud datagrams, assembles them into
// time-windowed frames, and optionally persists them to SQLite.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/pointstream/internal/framedb"
	"github.com/banshee-data/pointstream/internal/frames"
	"github.com/banshee-data/pointstream/internal/monitoring"
	"github.com/banshee-data/pointstream/internal/receiver"
	"github.com/banshee-data/pointstream/internal/version"
)

var (
	udpPort        = flag.Int("udp-port", 8888, "UDP port to listen for point datagrams")
	udpAddress     = flag.String("udp-addr", "", "UDP bind address (default: all interfaces)")
	framePeriod    = flag.Duration("frame-period", 100*time.Millisecond, "Device-time window per frame")
	maxFramePoints = flag.Int("max-frame-points", 200000, "Maximum points accumulated per frame")
	verifyChecksum = flag.Bool("verify-checksum", true, "Verify CRC-32 on datagrams that carry one")
	dbFile         = flag.String("db", "", "Record closed frames to this SQLite file (empty = disabled)")
	rcvBuf         = flag.Int("rcvbuf", 4<<20, "UDP receive buffer size in bytes")
	logInterval    = flag.Int("log-interval", 10, "Statistics logging interval in seconds")
	debug          = flag.Bool("debug", false, "Verbose per-event logging")
)

func main() {
	flag.Parse()

	if *debug {
		monitoring.SetDebugWriter(os.Stderr)
	}

	log.Printf("pointrecv %s", version.String())

	var udpListenAddr string
	if *udpAddress == "" {
		udpListenAddr = fmt.Sprintf(":%d", *udpPort)
	} else {
		udpListenAddr = fmt.Sprintf("%s:%d", *udpAddress, *udpPort)
	}

	builder := frames.NewBuilder(frames.Config{
		FramePeriod:    *framePeriod,
		MaxFramePoints: *maxFramePoints,
	})

	// Optional frame persistence.
	var fdb *framedb.FrameDB
	var sessionID string
	if *dbFile != "" {
		var err error
		fdb, err = framedb.Open(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open frame database: %v", err)
		}
		defer fdb.Close()

		sessionID, err = fdb.BeginSession(0)
		if err != nil {
			log.Fatalf("Failed to begin recording session: %v", err)
		}
		log.Printf("Recording frames to %s (session %s)", *dbFile, sessionID)
	}

	handleFrame := func(f *frames.Frame) {
		monitoring.Debugf("frame closed: points=%d packets=%d span=%v seq=[%d,%d]",
			f.PointCount, f.PacketCount, f.Duration(), f.SeqFirst, f.SeqLast)
		if fdb != nil {
			if err := fdb.InsertFrame(sessionID, f); err != nil {
				log.Printf("Failed to record frame: %v", err)
			}
		}
	}
	builder.SetFrameCallback(handleFrame)

	listener := receiver.NewUDPListener(receiver.UDPListenerConfig{
		Address:        udpListenAddr,
		RcvBuf:         *rcvBuf,
		LogInterval:    time.Duration(*logInterval) * time.Second,
		VerifyChecksum: *verifyChecksum,
		Handler:        builder,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("UDP listener error: %v", err)
		}
	}()

	wg.Wait()

	// The listener has stopped, so the builder is quiescent; flush the
	// open frame exactly once.
	if f := builder.Flush(); f != nil {
		handleFrame(f)
	}

	log.Printf("Final receiver stats: %s", listener.Stats().Snapshot())
	log.Printf("Final frame stats: %s", builder.Stats().Snapshot())
	log.Print("Graceful shutdown complete")
}
