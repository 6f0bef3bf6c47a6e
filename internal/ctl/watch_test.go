package ctl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatEventTime(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 30, 12, 0, time.UTC)
	got := formatEventTime(map[string]any{"ts": ts.Format(time.RFC3339Nano)})
	assert.Regexp(t, `^\d{2}:\d{2}:\d{2}$`, got)

	// Events without a usable timestamp render a fixed-width blank.
	assert.Equal(t, "          ", formatEventTime(map[string]any{}))
	assert.Equal(t, "          ", formatEventTime(map[string]any{"ts": 12345}))

	// Unparsable timestamps fall back to their date prefix.
	assert.Equal(t, "2026-03-14", formatEventTime(map[string]any{"ts": "2026-03-14 09:30:00"}))

	// Short garbage must not panic the renderer mid-stream.
	assert.Equal(t, "bad", formatEventTime(map[string]any{"ts": "bad"}))
	assert.Equal(t, "", formatEventTime(map[string]any{"ts": ""}))
}
