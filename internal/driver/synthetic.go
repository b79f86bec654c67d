package driver

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/banshee-data/pointstream/internal/monitoring"
)

// Synthetic is a software Driver that emits plausible rotating-scan sweeps
// for development and loopback testing. Each sweep covers a slice of a
// rotation: points on a noisy ring plus a floor return, with occasional
// (0,0,0) invalid returns mixed in the way real sensors produce them.
type Synthetic struct {
	SweepRate  float64 // sweeps per second (default 100)
	PointCount int     // raw points per sweep (default 300)
	Radius     float64 // metres, nominal ring radius (default 8)

	handler PointCloudHandler
	mu      sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
	rng     *rand.Rand
}

// NewSynthetic creates a synthetic driver with default geometry.
func NewSynthetic() *Synthetic {
	return &Synthetic{
		SweepRate:  100.0,
		PointCount: 300,
		Radius:     8.0,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Init starts the sweep generator goroutine. The configPath is accepted
// for interface compatibility and ignored.
func (d *Synthetic) Init(configPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done != nil {
		return nil // already running
	}
	d.done = make(chan struct{})
	d.wg.Add(1)
	go d.run()
	monitoring.Logf("synthetic driver started: %.0f sweeps/s, %d points/sweep", d.SweepRate, d.PointCount)
	return nil
}

// SetPointCloudHandler registers the per-sweep callback.
func (d *Synthetic) SetPointCloudHandler(h PointCloudHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// Uninit stops the generator and waits for the delivery goroutine to exit.
// No callbacks are delivered after Uninit returns.
func (d *Synthetic) Uninit() {
	d.mu.Lock()
	done := d.done
	d.done = nil
	d.mu.Unlock()
	if done == nil {
		return
	}
	close(done)
	d.wg.Wait()
}

func (d *Synthetic) run() {
	defer d.wg.Done()

	period := time.Duration(float64(time.Second) / d.SweepRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	baseNs := uint64(time.Now().UnixNano())
	points := make([]RawPoint, 0, d.PointCount)
	var angle float64

	d.mu.Lock()
	done := d.done
	d.mu.Unlock()

	for sweepIdx := uint64(0); ; sweepIdx++ {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		points = points[:0]
		arc := 2 * math.Pi / 10 // one tenth of a rotation per sweep
		for i := 0; i < d.PointCount; i++ {
			// ~2% invalid returns
			if d.rng.Float64() < 0.02 {
				points = append(points, RawPoint{})
				continue
			}
			a := angle + arc*float64(i)/float64(d.PointCount)
			r := d.Radius * (1 + 0.05*d.rng.NormFloat64())
			points = append(points, RawPoint{
				X:            int32(r * math.Cos(a) * 1000),
				Y:            int32(r * math.Sin(a) * 1000),
				Z:            int32((0.2*d.rng.NormFloat64() - 0.5) * 1000),
				Reflectivity: uint8(40 + d.rng.Intn(180)),
			})
		}
		angle += arc

		sweep := &Sweep{
			TimestampNs: baseNs + sweepIdx*uint64(period.Nanoseconds()),
			TimeSource:  TimeSourceNoSync,
			DataType:    DataTypeCartesianHigh,
			Points:      points,
		}

		d.mu.Lock()
		h := d.handler
		d.mu.Unlock()
		if h != nil {
			h(0, 0, sweep)
		}
	}
}
