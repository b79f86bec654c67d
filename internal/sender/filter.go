package sender

import (
	"github.com/banshee-data/pointstream/internal/driver"
	"github.com/banshee-data/pointstream/internal/wire"
)

// pointFilter applies the per-point gates: the (0,0,0) invalid-return
// sentinel, the squared-range window in metres, and raw-index
// downsampling. Ranges are compared squared to avoid a sqrt per point.
type pointFilter struct {
	minRangeSq float64
	maxRangeSq float64
	downsample int
}

func newPointFilter(cfg Config) pointFilter {
	return pointFilter{
		minRangeSq: cfg.MinRange * cfg.MinRange,
		maxRangeSq: cfg.MaxRange * cfg.MaxRange,
		downsample: cfg.Downsample,
	}
}

// filterInto appends surviving points to dst (converted to metres),
// preserving raw traversal order and never growing dst beyond its
// capacity. It returns the extended slice plus the number of points
// removed by filtering and the number dropped because dst was full.
func (f pointFilter) filterInto(dst []wire.Point, raw []driver.RawPoint) (out []wire.Point, filtered, capacityDropped uint64) {
	out = dst
	for i, p := range raw {
		if p.X == 0 && p.Y == 0 && p.Z == 0 {
			filtered++
			continue
		}
		x := float64(p.X) / 1000.0
		y := float64(p.Y) / 1000.0
		z := float64(p.Z) / 1000.0
		rangeSq := x*x + y*y + z*z
		if rangeSq < f.minRangeSq || rangeSq > f.maxRangeSq {
			filtered++
			continue
		}
		if f.downsample > 1 && i%f.downsample != 0 {
			filtered++
			continue
		}
		if len(out) == cap(out) {
			capacityDropped++
			continue
		}
		out = append(out, wire.Point{
			X:         float32(x),
			Y:         float32(y),
			Z:         float32(z),
			Intensity: p.Reflectivity,
		})
	}
	return out, filtered, capacityDropped
}
