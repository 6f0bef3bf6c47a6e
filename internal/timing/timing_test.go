package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonotonicAdvances(t *testing.T) {
	a := Monotonic()
	time.Sleep(5 * time.Millisecond)
	b := Monotonic()
	assert.Greater(t, b, a)
}

func TestSessionAnchorsBothClocks(t *testing.T) {
	clock := 100.0
	s := NewSessionWithClock("sess-1", func() float64 { return clock })

	assert.Equal(t, "sess-1", s.ID)
	assert.Equal(t, 100.0, s.StartMonotonicTime)
	assert.WithinDuration(t, time.Now().UTC(), s.StartWallTime, time.Second)

	clock = 130.5
	assert.Equal(t, 130.5, s.Now())
	assert.InDelta(t, 30.5, s.Elapsed(), 1e-9)
}

func TestMonotonicToDate(t *testing.T) {
	clock := 50.0
	s := NewSessionWithClock("sess-2", func() float64 { return clock })

	// A reading 12.25s after the anchor maps 12.25s past the wall start.
	got := s.MonotonicToDate(62.25)
	want := s.StartWallTime.Add(12250 * time.Millisecond)
	require.WithinDuration(t, want, got, time.Millisecond)

	// Readings before the anchor map backwards.
	before := s.MonotonicToDate(49.0)
	assert.True(t, before.Before(s.StartWallTime))
}

func TestMonotonicToDateImmuneToWallJumps(t *testing.T) {
	// The conversion only depends on the captured anchors, so a wall clock
	// jump after session start cannot skew interval placement.
	clock := 0.0
	s := NewSessionWithClock("sess-3", func() float64 { return clock })

	first := s.MonotonicToDate(10)
	second := s.MonotonicToDate(10)
	assert.Equal(t, first, second)
	assert.InDelta(t, 10, second.Sub(s.StartWallTime).Seconds(), 1e-9)
}
