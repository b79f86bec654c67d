// Command pcap-replay streams captured point-cloud datagrams from a pcap
// file to a live receiver. Build with -tags pcap to link libpcap.
//
// Usage:
//
//	go run -tags pcap ./cmd/tools/pcap-replay -pcap capture.pcap -target 127.0.0.1:8888
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/banshee-data/pointstream/internal/replay"
)

func main() {
	pcapFile := flag.String("pcap", "", "Pcap file to replay (required)")
	udpPort := flag.Int("udp-port", 8888, "Capture port to filter on")
	target := flag.String("target", "127.0.0.1:8888", "Destination address")
	realtime := flag.Bool("realtime", true, "Pace datagrams by capture timestamps")
	flag.Parse()

	if *pcapFile == "" {
		log.Fatal("Error: -pcap flag is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sent, err := replay.Run(ctx, replay.Options{
		PcapFile: *pcapFile,
		UDPPort:  *udpPort,
		Target:   *target,
		Realtime: *realtime,
	})
	if err != nil && err != context.Canceled {
		log.Fatalf("Replay failed after %d datagrams: %v", sent, err)
	}
	log.Printf("Done: %d datagrams sent", sent)
}
