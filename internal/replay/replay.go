//go:build pcap
// +build pcap

// Package replay re-emits captured point-cloud datagrams from a pcap file
// to a live UDP endpoint, for offline receiver debugging.
package replay

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/pointstream/internal/monitoring"
)

// Options configures a replay run.
type Options struct {
	PcapFile string // capture to read
	UDPPort  int    // source capture port to filter on
	Target   string // destination address, e.g. "127.0.0.1:8888"
	Realtime bool   // pace packets by capture timestamps
}

// Run streams the capture's UDP payloads to the target until the file is
// exhausted or ctx is cancelled. Returns the number of datagrams sent.
func Run(ctx context.Context, opts Options) (int, error) {
	handle, err := pcap.OpenOffline(opts.PcapFile)
	if err != nil {
		return 0, fmt.Errorf("failed to open pcap file %s: %w", opts.PcapFile, err)
	}
	defer handle.Close()

	filter := fmt.Sprintf("udp port %d", opts.UDPPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		return 0, fmt.Errorf("failed to set BPF filter %q: %w", filter, err)
	}

	addr, err := net.ResolveUDPAddr("udp", opts.Target)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve target %s: %w", opts.Target, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return 0, fmt.Errorf("failed to dial target: %w", err)
	}
	defer conn.Close()

	monitoring.Logf("Replaying %s to %s (filter: %s)", opts.PcapFile, opts.Target, filter)

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	sent := 0
	var lastCapture time.Time

	for {
		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		case packet := <-source.Packets():
			if packet == nil {
				monitoring.Logf("Replay complete: %d datagrams sent", sent)
				return sent, nil
			}

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}

			if opts.Realtime {
				ts := packet.Metadata().Timestamp
				if !lastCapture.IsZero() && ts.After(lastCapture) {
					time.Sleep(ts.Sub(lastCapture))
				}
				lastCapture = ts
			}

			if _, err := conn.Write(udp.Payload); err != nil {
				monitoring.Logf("Replay send error (continuing): %v", err)
				continue
			}
			sent++
		}
	}
}
