// Command pointsend streams sensor point clouds to a UDP consumer.
//
// The sensor driver delivers per-sweep point batches through a callback;
// pointsend filters them, segments them into MTU-bounded datagrams, and
// transmits them with monotonic sequence numbers and an optional CRC-32.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/pointstream/internal/driver"
	"github.com/banshee-data/pointstream/internal/monitoring"
	"github.com/banshee-data/pointstream/internal/sender"
	"github.com/banshee-data/pointstream/internal/timeutil"
	"github.com/banshee-data/pointstream/internal/version"
	"github.com/banshee-data/pointstream/internal/wire"
)

var (
	configPath  = flag.String("config", "mid360_config.json", "Sensor driver configuration file")
	driverName  = flag.String("driver", "synthetic", "Sensor driver to use (synthetic)")
	targetHost  = flag.String("target-host", "127.0.0.1", "Destination host for point datagrams")
	targetPort  = flag.Int("target-port", 8888, "Destination UDP port")
	minRange    = flag.Float64("min-range", 0.1, "Minimum point range in metres")
	maxRange    = flag.Float64("max-range", 20.0, "Maximum point range in metres")
	downsample  = flag.Int("downsample", 1, "Keep every Nth raw point (1 = keep all)")
	checksum    = flag.Bool("checksum", false, "Attach CRC-32 checksums to datagrams")
	sensorID    = flag.Int("sensor-id", 0, "Sensor id stamped on datagrams (0 = primary)")
	logInterval = flag.Int("log-interval", 10, "Statistics logging interval in seconds")
	debug       = flag.Bool("debug", false, "Verbose per-event logging")
)

// quiesceDelay is the pause between setting the shutdown flag and
// uninitialising the driver, so in-flight callbacks observe the flag.
const quiesceDelay = 200 * time.Millisecond

func main() {
	flag.Parse()

	if *debug {
		monitoring.SetDebugWriter(os.Stderr)
	}

	log.Printf("pointsend %s", version.String())

	// The wire format and the SDK's packed structs are little-endian;
	// refuse to start anywhere else.
	if !wire.HostLittleEndian() {
		log.Fatal("pointsend requires a little-endian host")
	}

	if *checksum {
		if err := wire.SelfTest(); err != nil {
			log.Fatalf("CRC-32 self-test failed: %v", err)
		}
		log.Print("CRC-32 self-test passed")
	}

	cfg := sender.DefaultConfig()
	cfg.ConfigPath = *configPath
	cfg.TargetHost = *targetHost
	cfg.TargetPort = *targetPort
	cfg.MinRange = *minRange
	cfg.MaxRange = *maxRange
	cfg.Downsample = *downsample
	cfg.ChecksumEnabled = *checksum
	cfg.SensorID = uint16(*sensorID)
	cfg.Debug = *debug

	conn, err := sender.Dial(cfg)
	if err != nil {
		log.Fatalf("Failed to allocate UDP socket: %v", err)
	}

	clock := timeutil.RealClock{}
	snd, err := sender.New(cfg, conn, clock)
	if err != nil {
		log.Fatalf("Invalid sender configuration: %v", err)
	}

	drv, err := newDriver(*driverName)
	if err != nil {
		log.Fatal(err)
	}

	if err := drv.Init(cfg.ConfigPath); err != nil {
		log.Fatalf("Driver initialisation failed: %v", err)
	}
	drv.SetPointCloudHandler(snd.HandleSweep)

	log.Printf("Streaming to %s:%d (checksum=%v, range=[%g, %g]m, downsample=%d)",
		cfg.TargetHost, cfg.TargetPort, cfg.ChecksumEnabled, cfg.MinRange, cfg.MaxRange, cfg.Downsample)

	// Periodic stats logging until shutdown.
	statsDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Duration(*logInterval) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-statsDone:
				return
			case <-ticker.C:
				log.Printf("Sender stats: %s", snd.Stats().Snapshot())
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Print("Shutting down...")
	close(statsDone)

	// Teardown order is load-bearing: flag first so callbacks stop
	// touching the socket, quiesce so in-flight callbacks drain, driver
	// uninit so no further callbacks arrive, and only then the socket.
	snd.BeginShutdown()
	clock.Sleep(quiesceDelay)
	drv.Uninit()
	if err := snd.CloseSocket(); err != nil {
		log.Printf("Socket close error: %v", err)
	}

	log.Printf("Final sender stats: %s", snd.Stats().Snapshot())
	log.Print("Shutdown complete")
}

func newDriver(name string) (driver.Driver, error) {
	switch name {
	case "synthetic":
		return driver.NewSynthetic(), nil
	default:
		return nil, fmt.Errorf("unknown driver %q (production SDK bindings are built separately)", name)
	}
}
