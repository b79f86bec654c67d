// Package wire implements the point-cloud datagram format shared by the
// sender and receiver pipelines.
//
// Each UDP datagram carries a 27-byte packed header followed by up to 105
// packed 13-byte points. All multi-byte fields are little-endian with no
// padding; fields are written and read byte-wise through encoding/binary
// so the codec never performs unaligned loads.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Datagram format constants. These define the fixed wire layout; changing
// any of them is a protocol break.
const (
	MAGIC   = 0x4C495652 // "RVIL" little-endian on the wire
	VERSION = 1          // current wire format version

	HEADER_SIZE = 27 // packed header bytes
	POINT_SIZE  = 13 // packed point bytes: 3 × float32 + 1 × uint8

	// MAX_POINTS_PER_PACKET bounds one datagram to a single 1400-byte MTU:
	// 27 + 13*105 = 1392 bytes.
	MAX_POINTS_PER_PACKET = 105
	MAX_DATAGRAM_SIZE     = HEADER_SIZE + POINT_SIZE*MAX_POINTS_PER_PACKET

	// CRC_OFFSET is the byte offset of the crc32 field within the header.
	// The checksum covers header bytes [0, CRC_OFFSET) plus the payload.
	CRC_OFFSET = 23
)

// Decode failure kinds, ordered from cheapest structural check to the
// checksum. The receiver counts discarded datagrams by kind.
var (
	ErrTooShort       = errors.New("wire: datagram shorter than header")
	ErrBadMagic       = errors.New("wire: bad magic")
	ErrBadVersion     = errors.New("wire: unsupported version")
	ErrInvalidCount   = errors.New("wire: point count out of range")
	ErrLengthMismatch = errors.New("wire: datagram length does not match point count")
	ErrBadChecksum    = errors.New("wire: checksum mismatch")
)

// Header is the decoded form of the 27-byte packet header. Magic and
// version are implied; the codec writes and verifies them itself.
type Header struct {
	DeviceTimestampNs uint64 // sensor acquisition time, nanoseconds
	Seq               uint32 // monotonic datagram sequence, wraps at 2^32
	PointCount        uint16 // 1..MAX_POINTS_PER_PACKET
	Flags             uint16 // reserved, producer writes 0
	SensorID          uint16 // 0 for the primary sensor
	CRC32             uint32 // IEEE 802.3 over header[0:23] + payload, or 0 when disabled
}

// Point is one packed wire point: Cartesian metres plus reflectivity.
type Point struct {
	X, Y, Z   float32
	Intensity uint8
}

// DatagramSize returns the encoded size of a datagram carrying n points.
func DatagramSize(n int) int {
	return HEADER_SIZE + POINT_SIZE*n
}

// AppendHeader appends the 27-byte encoding of h to dst. The crc32 field is
// written as stored in h; callers that checksum pass 0 here and patch bytes
// [23:27] afterwards via PatchChecksum.
func AppendHeader(dst []byte, h Header) []byte {
	var b [HEADER_SIZE]byte
	binary.LittleEndian.PutUint32(b[0:4], MAGIC)
	b[4] = VERSION
	binary.LittleEndian.PutUint64(b[5:13], h.DeviceTimestampNs)
	binary.LittleEndian.PutUint32(b[13:17], h.Seq)
	binary.LittleEndian.PutUint16(b[17:19], h.PointCount)
	binary.LittleEndian.PutUint16(b[19:21], h.Flags)
	binary.LittleEndian.PutUint16(b[21:23], h.SensorID)
	binary.LittleEndian.PutUint32(b[23:27], h.CRC32)
	return append(dst, b[:]...)
}

// AppendPoint appends the 13-byte encoding of p to dst.
func AppendPoint(dst []byte, p Point) []byte {
	var b [POINT_SIZE]byte
	binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(p.X))
	binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(p.Y))
	binary.LittleEndian.PutUint32(b[8:12], math.Float32bits(p.Z))
	b[12] = p.Intensity
	return append(dst, b[:]...)
}

// EncodeDatagram encodes a complete datagram into dst (reusing its capacity)
// and returns the encoded slice. PointCount in the header is taken from
// len(points). When checksum is true the crc32 field is computed over
// header[0:23] + payload and patched in; otherwise it stays 0.
func EncodeDatagram(dst []byte, h Header, points []Point, checksum bool) ([]byte, error) {
	if len(points) == 0 || len(points) > MAX_POINTS_PER_PACKET {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, len(points))
	}
	h.PointCount = uint16(len(points))
	h.CRC32 = 0

	dst = dst[:0]
	dst = AppendHeader(dst, h)
	for _, p := range points {
		dst = AppendPoint(dst, p)
	}
	if checksum {
		PatchChecksum(dst)
	}
	return dst, nil
}

// PatchChecksum computes the IEEE CRC-32 of an encoded datagram and writes
// it into the header's crc32 field. The buffer must hold a full datagram.
func PatchChecksum(datagram []byte) {
	crc := Checksum(datagram[:CRC_OFFSET], datagram[HEADER_SIZE:])
	binary.LittleEndian.PutUint32(datagram[CRC_OFFSET:HEADER_SIZE], crc)
}

// Decode validates buf and parses it into a header and point slice. Points
// are decoded into pts (reusing its capacity) so a receive loop can decode
// every datagram without allocating; the returned slice aliases pts.
//
// The check order is fixed: length, magic, version, point count, exact
// length, then checksum. Checksum verification runs only when verify is
// true and the header carries a non-zero crc32; a zero crc32 marks the
// datagram as explicitly unchecksummed and it is accepted as-is.
func Decode(buf []byte, pts []Point, verify bool) (Header, []Point, error) {
	var h Header
	if len(buf) < HEADER_SIZE {
		return h, nil, fmt.Errorf("%w: %d bytes", ErrTooShort, len(buf))
	}
	if magic := binary.LittleEndian.Uint32(buf[0:4]); magic != MAGIC {
		return h, nil, fmt.Errorf("%w: 0x%08X", ErrBadMagic, magic)
	}
	if buf[4] != VERSION {
		return h, nil, fmt.Errorf("%w: %d", ErrBadVersion, buf[4])
	}
	h.DeviceTimestampNs = binary.LittleEndian.Uint64(buf[5:13])
	h.Seq = binary.LittleEndian.Uint32(buf[13:17])
	h.PointCount = binary.LittleEndian.Uint16(buf[17:19])
	h.Flags = binary.LittleEndian.Uint16(buf[19:21])
	h.SensorID = binary.LittleEndian.Uint16(buf[21:23])
	h.CRC32 = binary.LittleEndian.Uint32(buf[23:27])

	n := int(h.PointCount)
	if n < 1 || n > MAX_POINTS_PER_PACKET {
		return h, nil, fmt.Errorf("%w: %d", ErrInvalidCount, n)
	}
	if len(buf) != DatagramSize(n) {
		return h, nil, fmt.Errorf("%w: %d bytes for %d points", ErrLengthMismatch, len(buf), n)
	}
	payload := buf[HEADER_SIZE:]
	if verify && h.CRC32 != 0 {
		if crc := Checksum(buf[:CRC_OFFSET], payload); crc != h.CRC32 {
			return h, nil, fmt.Errorf("%w: got 0x%08X want 0x%08X", ErrBadChecksum, crc, h.CRC32)
		}
	}

	if cap(pts) < n {
		pts = make([]Point, n)
	}
	pts = pts[:n]
	for i := 0; i < n; i++ {
		rec := payload[i*POINT_SIZE:]
		pts[i] = Point{
			X:         math.Float32frombits(binary.LittleEndian.Uint32(rec[0:4])),
			Y:         math.Float32frombits(binary.LittleEndian.Uint32(rec[4:8])),
			Z:         math.Float32frombits(binary.LittleEndian.Uint32(rec[8:12])),
			Intensity: rec[12],
		}
	}
	return h, pts, nil
}
