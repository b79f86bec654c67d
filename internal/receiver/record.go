// Package receiver validates incoming point-cloud datagrams and surfaces
// parsed records to a handler.
package receiver

import "github.com/banshee-data/pointstream/internal/wire"

// Record is one validated datagram: the decoded header plus its points.
// The Points slice aliases the listener's reusable decode scratch, so a
// Record is only valid for the duration of the handler call; handlers that
// keep points must copy them (the frame builder does).
type Record struct {
	Header wire.Header
	Points []wire.Point
}

// XYZ returns a copy of the points as (N,3) xyz rows in metres.
func (r *Record) XYZ() [][3]float32 {
	out := make([][3]float32, len(r.Points))
	for i, p := range r.Points {
		out[i] = [3]float32{p.X, p.Y, p.Z}
	}
	return out
}

// XYZI returns a copy of the points as (N,4) rows: xyz in metres plus
// intensity as a float.
func (r *Record) XYZI() [][4]float32 {
	out := make([][4]float32, len(r.Points))
	for i, p := range r.Points {
		out[i] = [4]float32{p.X, p.Y, p.Z, float32(p.Intensity)}
	}
	return out
}

// Handler consumes validated records. Implementations are invoked from the
// listener's read goroutine only.
type Handler interface {
	HandleRecord(rec *Record)
}
