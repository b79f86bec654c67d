package wire

import "unsafe"

// HostLittleEndian reports whether the host stores integers little-endian.
// The wire format is little-endian and the sender binaries refuse to start
// on big-endian hosts, matching the packed-layout precondition of the
// sensor SDK side of the protocol.
func HostLittleEndian() bool {
	var x uint16 = 0x0102
	return *(*byte)(unsafe.Pointer(&x)) == 0x02
}
