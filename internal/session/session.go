// Package session defines the finalized recording data model and its wire
// JSON shape. A Recording is assembled once at the end of a successful stop
// and is immutable from then on; everything here is plain data with no
// concurrency concerns.
package session

import (
	"time"

	"github.com/urap-lab/pulse-engine/internal/timing"
)

// HeartRatePoint is a single heart rate sample in BPM. The wall-clock
// timestamp is for display; the monotonic timestamp is what interval and
// window math uses.
type HeartRatePoint struct {
	Timestamp          time.Time `json:"timestamp"`
	MonotonicTimestamp float64   `json:"monotonicTimestamp"`
	Value              int       `json:"value"`
}

// RRIntervalPoint is a single beat-to-beat interval sample in milliseconds.
type RRIntervalPoint struct {
	Timestamp          time.Time `json:"timestamp"`
	MonotonicTimestamp float64   `json:"monotonicTimestamp"`
	Value              int       `json:"value"`
}

// Statistics is the derived per-sensor summary computed at capture time.
// AverageHeartRate is the integer-truncated sum/count, matching the
// app's historical output.
type Statistics struct {
	MinHeartRate      int     `json:"minHeartRate"`
	MaxHeartRate      int     `json:"maxHeartRate"`
	AverageHeartRate  int     `json:"averageHeartRate"`
	HeartRateSamples  int     `json:"heartRateSamples"`
	RRIntervalSamples int     `json:"rrIntervalSamples"`
	SDNN              float64 `json:"sdnn"`
	RMSSD             float64 `json:"rmssd"`
	HRVWindow         string  `json:"hrvWindow"`
	HRVSampleCount    int     `json:"hrvSampleCount"`
}

// SensorRecording is the finalized, immutable data captured from one sensor
// during one recording.
type SensorRecording struct {
	ID             string            `json:"id"`
	SensorID       string            `json:"sensorId"`
	SensorName     string            `json:"sensorName"`
	HeartRateData  []HeartRatePoint  `json:"heartRateData"`
	RRIntervalData []RRIntervalPoint `json:"rrIntervalData"`
	Statistics     Statistics        `json:"statistics"`
	Timing         timing.Metadata   `json:"timing"`
}

// Duration returns the sensor recording length in seconds, measured between
// the timing anchors.
func (s *SensorRecording) Duration() float64 {
	return s.Timing.EndWallTime.Sub(s.Timing.StartWallTime).Seconds()
}

// Recording is a complete finalized session across all sensors.
type Recording struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	StartDate        time.Time         `json:"startDate"`
	EndDate          time.Time         `json:"endDate"`
	SensorRecordings []SensorRecording `json:"sensorRecordings"`
}

// Duration returns the session length in seconds.
func (r *Recording) Duration() float64 {
	return r.EndDate.Sub(r.StartDate).Seconds()
}

// TotalDataPoints counts every HR and RR sample across all sensors.
func (r *Recording) TotalDataPoints() int {
	n := 0
	for i := range r.SensorRecordings {
		n += len(r.SensorRecordings[i].HeartRateData)
		n += len(r.SensorRecordings[i].RRIntervalData)
	}
	return n
}

// Summary is the compact listing shape served by GET /recordings.
type Summary struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	StartDate        time.Time `json:"startDate"`
	EndDate          time.Time `json:"endDate"`
	Duration         float64   `json:"duration"`
	SensorCount      int       `json:"sensorCount"`
	AverageHeartRate float64   `json:"averageHeartRate"`
	AverageSDNN      float64   `json:"averageSDNN"`
	AverageRMSSD     float64   `json:"averageRMSSD"`
}

// Summarize derives the listing summary from a full recording.
//
// AverageHeartRate is the mean of the per-sensor truncated averages. The
// HRV means skip sensors that reported zero (too few windowed samples), so
// one silent sensor does not drag the session metric to zero.
func (r *Recording) Summarize() Summary {
	s := Summary{
		ID:          r.ID,
		Name:        r.Name,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Duration:    r.Duration(),
		SensorCount: len(r.SensorRecordings),
	}

	if len(r.SensorRecordings) == 0 {
		return s
	}

	var hrSum float64
	var sdnnSum, rmssdSum float64
	var sdnnN, rmssdN int
	for i := range r.SensorRecordings {
		st := &r.SensorRecordings[i].Statistics
		hrSum += float64(st.AverageHeartRate)
		if st.SDNN > 0 {
			sdnnSum += st.SDNN
			sdnnN++
		}
		if st.RMSSD > 0 {
			rmssdSum += st.RMSSD
			rmssdN++
		}
	}

	s.AverageHeartRate = hrSum / float64(len(r.SensorRecordings))
	if sdnnN > 0 {
		s.AverageSDNN = sdnnSum / float64(sdnnN)
	}
	if rmssdN > 0 {
		s.AverageRMSSD = rmssdSum / float64(rmssdN)
	}
	return s
}
