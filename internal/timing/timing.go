// Package timing anchors a recording session to both clocks: the wall clock
// for human-readable timestamps and the monotonic clock for interval math.
// Wall time can jump when the OS adjusts the clock; the monotonic reading
// cannot, so every window filter and duration in the recorder is computed
// from monotonic values and only converted to wall time for display.
package timing

import "time"

// processStart is the monotonic anchor for the whole process. time.Since on
// a time.Time uses Go's monotonic reading, so the result is immune to
// wall-clock adjustments.
var processStart = time.Now()

// Monotonic returns the seconds elapsed since process start, read from the
// monotonic clock.
func Monotonic() float64 {
	return time.Since(processStart).Seconds()
}

// Session captures a fixed start instant on both clocks and converts
// between them. It is created once per sensor per recording.
type Session struct {
	ID                 string
	StartWallTime      time.Time
	StartMonotonicTime float64

	now func() float64
}

// NewSession anchors a session to the current instant.
func NewSession(id string) *Session {
	return NewSessionWithClock(id, Monotonic)
}

// NewSessionWithClock anchors a session using the given monotonic source.
// Tests inject a fake clock here to make window math deterministic.
func NewSessionWithClock(id string, now func() float64) *Session {
	return &Session{
		ID:                 id,
		StartWallTime:      time.Now().UTC(),
		StartMonotonicTime: now(),
		now:                now,
	}
}

// Now returns the current monotonic reading in seconds.
func (s *Session) Now() float64 {
	return s.now()
}

// MonotonicToDate converts a monotonic reading into wall-clock time relative
// to the session's start instant.
func (s *Session) MonotonicToDate(t float64) time.Time {
	return s.StartWallTime.Add(secondsToDuration(t - s.StartMonotonicTime))
}

// Elapsed returns the seconds elapsed since the session started, measured on
// the monotonic clock.
func (s *Session) Elapsed() float64 {
	return s.now() - s.StartMonotonicTime
}

// Metadata is the immutable timing snapshot attached to a finalized sensor
// recording.
type Metadata struct {
	SessionID          string    `json:"sessionId"`
	StartWallTime      time.Time `json:"startWallTime"`
	StartMonotonicTime float64   `json:"startMonotonicTime"`
	EndWallTime        time.Time `json:"endWallTime"`
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
