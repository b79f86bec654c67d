package wire

import (
	"fmt"
	"hash/crc32"
)

// The wire checksum is IEEE 802.3 CRC-32: reflected polynomial 0xEDB88320,
// init 0xFFFFFFFF, final XOR 0xFFFFFFFF. hash/crc32 dispatches to the
// platform's accelerated IEEE implementation where one exists and falls
// back to the table-driven path otherwise. The Castagnoli polynomial
// (crc32.Castagnoli, the one behind the x86 CRC32 instruction) is a
// different CRC and must never be substituted here.

// Checksum computes the datagram CRC-32 over the header prefix (bytes
// [0:23] of the encoded header) followed by the point payload.
func Checksum(headerPrefix, payload []byte) uint32 {
	crc := crc32.Update(0, crc32.IEEETable, headerPrefix)
	return crc32.Update(crc, crc32.IEEETable, payload)
}

// crcVectors are the canonical IEEE CRC-32 test vectors the engine must
// reproduce byte-exactly.
var crcVectors = []struct {
	in   string
	want uint32
}{
	{"123456789", 0xCBF43926},
	{"", 0x00000000},
	{"The quick brown fox jumps over the lazy dog", 0x414FA339},
}

// SelfTest verifies the checksum implementation against the canonical
// vectors. It is run once at startup when checksumming is enabled; a
// failure means the platform CRC dispatch is broken and is fatal.
func SelfTest() error {
	for _, v := range crcVectors {
		if got := crc32.ChecksumIEEE([]byte(v.in)); got != v.want {
			return fmt.Errorf("wire: CRC-32 self-test failed for %q: got 0x%08X want 0x%08X", v.in, got, v.want)
		}
	}
	return nil
}
