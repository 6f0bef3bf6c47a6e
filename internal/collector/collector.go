// Package collector accumulates raw data points and running statistics for
// one sensor during one recording. Each collector is an isolated resource:
// all operations on the same collector serialize on its own mutex, while
// collectors for different sensors never contend with each other.
package collector

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/urap-lab/pulse-engine/internal/session"
	"github.com/urap-lab/pulse-engine/internal/timing"
)

// DefaultHRVWindow is the trailing window over which SDNN and RMSSD are
// computed.
const DefaultHRVWindow = 300 * time.Second

// minHRVSamples is the smallest windowed RR count for which the HRV metrics
// are meaningful. Below it both metrics report a defined zero.
const minHRVSamples = 5

// Collector buffers heart rate and RR interval samples for a single sensor
// and maintains running heart rate statistics.
type Collector struct {
	mu sync.Mutex

	sensorID   string
	sensorName string
	clock      *timing.Session
	hrvWindow  float64 // seconds

	hr []session.HeartRatePoint
	rr []session.RRIntervalPoint

	sum   int64
	count int
	min   int
	max   int

	monotonicSource func() float64
}

// New creates a collector anchored to a fresh timing session.
func New(sensorID, sensorName string, hrvWindow time.Duration) *Collector {
	return NewWithClock(sensorID, sensorName, hrvWindow, timing.Monotonic)
}

// NewWithClock creates a collector with an injectable monotonic source so
// tests can control window math.
func NewWithClock(sensorID, sensorName string, hrvWindow time.Duration, now func() float64) *Collector {
	if hrvWindow <= 0 {
		hrvWindow = DefaultHRVWindow
	}
	return &Collector{
		sensorID:        sensorID,
		sensorName:      sensorName,
		clock:           timing.NewSessionWithClock(uuid.NewString(), now),
		hrvWindow:       hrvWindow.Seconds(),
		monotonicSource: now,
	}
}

// SensorID returns the sensor this collector belongs to.
func (c *Collector) SensorID() string { return c.sensorID }

// SensorName returns the advertised sensor name.
func (c *Collector) SensorName() string { return c.sensorName }

// AddHeartRate records one heart rate sample in BPM, stamped with the
// current monotonic reading and its wall-clock conversion. Values outside
// the sensor's 8-bit range are clamped.
func (c *Collector) AddHeartRate(value int) {
	if value < 0 {
		value = 0
	} else if value > 255 {
		value = 255
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	mono := c.clock.Now()
	c.hr = append(c.hr, session.HeartRatePoint{
		Timestamp:          c.clock.MonotonicToDate(mono),
		MonotonicTimestamp: mono,
		Value:              value,
	})

	c.sum += int64(value)
	if c.count == 0 {
		// First sample wins for both bounds; no sentinel value leaks out.
		c.min = value
		c.max = value
	} else {
		if value < c.min {
			c.min = value
		}
		if value > c.max {
			c.max = value
		}
	}
	c.count++
}

// AddRRInterval records one RR interval sample in milliseconds. RR samples
// feed only the HRV window; they do not contribute to the heart rate
// statistics. Values outside the sensor's 16-bit range are clamped.
func (c *Collector) AddRRInterval(valueMs int) {
	if valueMs < 0 {
		valueMs = 0
	} else if valueMs > 65535 {
		valueMs = 65535
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	mono := c.clock.Now()
	c.rr = append(c.rr, session.RRIntervalPoint{
		Timestamp:          c.clock.MonotonicToDate(mono),
		MonotonicTimestamp: mono,
		Value:              valueMs,
	})
}

// Counts returns the buffered sample counts (heart rate, RR interval).
func (c *Collector) Counts() (hr, rr int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.hr), len(c.rr)
}

// SDNN returns the population standard deviation of the windowed RR values
// in milliseconds, or 0 when fewer than five samples fall in the window.
func (c *Collector) SDNN() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sdnn(c.windowedRRLocked())
}

// RMSSD returns the root mean square of successive differences among the
// windowed RR values in milliseconds, or 0 when fewer than five samples
// fall in the window.
func (c *Collector) RMSSD() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return rmssd(c.windowedRRLocked())
}

// LatestHeartRate returns the most recent heart rate sample, or 0 when none
// has been recorded yet.
func (c *Collector) LatestHeartRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.hr) == 0 {
		return 0
	}
	return c.hr[len(c.hr)-1].Value
}

// Capture finalizes the buffered data into an immutable sensor recording.
// It returns nil when no heart rate samples were collected; such a sensor
// is dropped from the session rather than included with empty fields.
// Capture does not consume the buffers; call Reset to clear them.
func (c *Collector) Capture() *session.SensorRecording {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.hr) == 0 {
		return nil
	}

	windowed := c.windowedRRLocked()
	now := c.clock.Now()

	rec := &session.SensorRecording{
		ID:             uuid.NewString(),
		SensorID:       c.sensorID,
		SensorName:     c.sensorName,
		HeartRateData:  append([]session.HeartRatePoint(nil), c.hr...),
		RRIntervalData: append([]session.RRIntervalPoint(nil), c.rr...),
		Statistics: session.Statistics{
			MinHeartRate:      c.min,
			MaxHeartRate:      c.max,
			AverageHeartRate:  int(c.sum / int64(c.count)),
			HeartRateSamples:  len(c.hr),
			RRIntervalSamples: len(c.rr),
			SDNN:              sdnn(windowed),
			RMSSD:             rmssd(windowed),
			HRVWindow:         formatWindow(c.hrvWindow),
			HRVSampleCount:    len(windowed),
		},
		Timing: timing.Metadata{
			SessionID:          c.clock.ID,
			StartWallTime:      c.clock.StartWallTime,
			StartMonotonicTime: c.clock.StartMonotonicTime,
			EndWallTime:        c.clock.MonotonicToDate(now),
		},
	}
	return rec
}

// Reset clears all buffers and statistics and re-anchors a fresh timing
// session.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hr = nil
	c.rr = nil
	c.sum = 0
	c.count = 0
	c.min = 0
	c.max = 0
	c.clock = timing.NewSessionWithClock(uuid.NewString(), c.monotonicSource)
}

// windowedRRLocked returns the RR values whose monotonic timestamp falls
// within the trailing HRV window. The filter compares monotonic readings
// only; wall time may jump under clock adjustments.
func (c *Collector) windowedRRLocked() []float64 {
	cutoff := c.clock.Now() - c.hrvWindow
	out := make([]float64, 0, len(c.rr))
	for i := range c.rr {
		if c.rr[i].MonotonicTimestamp >= cutoff {
			out = append(out, float64(c.rr[i].Value))
		}
	}
	return out
}

// sdnn computes the population standard deviation (divide by N, not N-1).
func sdnn(values []float64) float64 {
	if len(values) < minHRVSamples {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

// rmssd computes the root mean square of successive differences, dividing
// the squared-difference sum by N-1.
func rmssd(values []float64) float64 {
	if len(values) < minHRVSamples {
		return 0
	}
	var sq float64
	for i := 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)-1))
}

func formatWindow(seconds float64) string {
	return time.Duration(seconds * float64(time.Second)).Truncate(time.Second).String()
}
