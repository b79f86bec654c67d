// Package driver defines the boundary to the sensor driver SDK.
//
// The production sensor is driven by a vendor SDK that delivers per-sweep
// point batches through a registered callback on an SDK-owned thread. This
// package models that boundary: the sender core consumes Sweep values and
// never sees SDK types directly. A synthetic in-process driver is provided
// for development and loopback testing.
package driver

// TimeSource identifies the clock domain of a sweep's device timestamp.
type TimeSource uint8

const (
	TimeSourceNoSync TimeSource = iota // free-running device-monotonic clock
	TimeSourcePTP                      // IEEE 1588 synchronised
	TimeSourceGPS
	TimeSourcePPS
)

func (t TimeSource) String() string {
	switch t {
	case TimeSourceNoSync:
		return "no-sync"
	case TimeSourcePTP:
		return "ptp"
	case TimeSourceGPS:
		return "gps"
	case TimeSourcePPS:
		return "pps"
	}
	return "unknown"
}

// DataType identifies the payload variant of a sweep. Only the Cartesian
// high-precision variant is processed by the sender; other variants are
// ignored at the callback.
type DataType uint8

const (
	DataTypeImu           DataType = 0x00
	DataTypeCartesianHigh DataType = 0x01 // int32 millimetre coordinates
	DataTypeCartesianLow  DataType = 0x02
	DataTypeSpherical     DataType = 0x03
)

// RawPoint is one sensor return in millimetre Cartesian coordinates, as
// delivered by the SDK. (0,0,0) is the sentinel for an invalid return.
type RawPoint struct {
	X, Y, Z      int32 // millimetres
	Reflectivity uint8
	Tag          uint8
}

// Sweep is one callback invocation's worth of points: a contiguous batch
// belonging to a single acquisition cycle. The slice is owned by the
// driver and is only valid for the duration of the callback.
type Sweep struct {
	TimestampNs uint64
	TimeSource  TimeSource
	DataType    DataType
	Points      []RawPoint
}

// PointCloudHandler is the per-sweep callback. It runs on a driver-owned
// goroutine and must return quickly; blocking here stalls the sensor
// delivery thread.
type PointCloudHandler func(handle uint32, deviceType uint8, sweep *Sweep)

// Driver is the lifecycle surface the sender binary needs from an SDK
// binding. Init must complete before SetPointCloudHandler takes effect;
// after Uninit returns no further callbacks are delivered.
type Driver interface {
	Init(configPath string) error
	SetPointCloudHandler(h PointCloudHandler)
	Uninit()
}
