//go:build !pcap
// +build !pcap

// Package replay re-emits captured point-cloud datagrams from a pcap file
// to a live UDP endpoint, for offline receiver debugging.
package replay

import (
	"context"
	"fmt"
)

// Options configures a replay run.
type Options struct {
	PcapFile string // capture to read
	UDPPort  int    // source capture port to filter on
	Target   string // destination address, e.g. "127.0.0.1:8888"
	Realtime bool   // pace packets by capture timestamps
}

// Run is unavailable without the pcap build tag (libpcap is not linked in
// default builds).
func Run(ctx context.Context, opts Options) (int, error) {
	return 0, fmt.Errorf("pcap replay not available: rebuild with -tags pcap")
}
