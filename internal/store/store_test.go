package store

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urap-lab/pulse-engine/internal/session"
	"github.com/urap-lab/pulse-engine/internal/timing"
)

func testRecording(id string, start time.Time) *session.Recording {
	return &session.Recording{
		ID:        id,
		Name:      "test " + id,
		StartDate: start,
		EndDate:   start.Add(5 * time.Minute),
		SensorRecordings: []session.SensorRecording{
			{
				ID:         "sr-" + id,
				SensorID:   "ABC123",
				SensorName: "Polar H10 ABC123",
				HeartRateData: []session.HeartRatePoint{
					{Timestamp: start, MonotonicTimestamp: 1.0, Value: 72},
					{Timestamp: start.Add(time.Second), MonotonicTimestamp: 2.0, Value: 74},
				},
				RRIntervalData: []session.RRIntervalPoint{
					{Timestamp: start, MonotonicTimestamp: 1.0, Value: 820},
				},
				Statistics: session.Statistics{
					MinHeartRate:      72,
					MaxHeartRate:      74,
					AverageHeartRate:  73,
					HeartRateSamples:  2,
					RRIntervalSamples: 1,
					SDNN:              7.07,
					RMSSD:             14.36,
					HRVWindow:         "5m0s",
					HRVSampleCount:    1,
				},
				Timing: timing.Metadata{
					SessionID:     "ts-" + id,
					StartWallTime: start,
					EndWallTime:   start.Add(5 * time.Minute),
				},
			},
		},
	}
}

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	rec := testRecording("abc", start)

	require.NoError(t, s.Save(rec))

	loaded, err := s.LoadByID("abc")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, loaded.ID)
	assert.Equal(t, rec.Name, loaded.Name)
	require.Len(t, loaded.SensorRecordings, 1)
	assert.Equal(t, rec.SensorRecordings[0].Statistics, loaded.SensorRecordings[0].Statistics)
	assert.True(t, rec.StartDate.Equal(loaded.StartDate))
}

func TestLoadByIDNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadByID("nope")
	assert.ErrorIs(t, err, ErrRecordingNotFound)
}

func TestLoadByIDRejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"../etc/passwd", "a/b", "a\\b", ""} {
		_, err := s.LoadByID(id)
		assert.ErrorIs(t, err, ErrRecordingNotFound, "id %q", id)
	}
}

func TestLoadAllSortsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(testRecording("old", base)))
	require.NoError(t, s.Save(testRecording("new", base.Add(time.Hour))))
	require.NoError(t, s.Save(testRecording("mid", base.Add(30*time.Minute))))

	summaries, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, "new", summaries[0].ID)
	assert.Equal(t, "mid", summaries[1].ID)
	assert.Equal(t, "old", summaries[2].ID)

	assert.Equal(t, 300.0, summaries[0].Duration)
	assert.Equal(t, 1, summaries[0].SensorCount)
	assert.Equal(t, 73.0, summaries[0].AverageHeartRate)
}

func TestLoadAllSkipsCorruptFiles(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(testRecording("good", time.Now().UTC())))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "recording_bad.json"), []byte("{not json"), 0o644))

	summaries, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "good", summaries[0].ID)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(testRecording("abc", time.Now().UTC())))

	require.NoError(t, s.Delete("abc"))
	_, err := s.LoadByID("abc")
	assert.ErrorIs(t, err, ErrRecordingNotFound)
	assert.ErrorIs(t, s.Delete("abc"), ErrRecordingNotFound)
}

func TestExportCSVZipLayout(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	rec := testRecording("abc", start)

	var buf bytes.Buffer
	require.NoError(t, ExportCSVZip(rec, &buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	names := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		names[f.Name] = string(b)
	}

	info, ok := names["recording_abc_csv/session_info.csv"]
	require.True(t, ok, "missing session_info.csv, got %v", keys(names))
	assert.Contains(t, info, "Session ID,abc")
	assert.Contains(t, info, "Recording Name,test abc")
	assert.Contains(t, info, "Number of Sensors,1")
	assert.Contains(t, info, "Sensors\n")
	assert.Contains(t, info, "Sensor ID,Sensor Name,HR Samples,RR Samples,Avg HR,SDNN,RMSSD")
	assert.Contains(t, info, "ABC123,Polar H10 ABC123,2,1,73,7.07,14.36")

	hr, ok := names["recording_abc_csv/sensor_1_ABC123_hr.csv"]
	require.True(t, ok)
	lines := strings.Split(strings.TrimSpace(hr), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Timestamp,Unix Time,Monotonic Time,Heart Rate (BPM)", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], ",72"))

	rr, ok := names["recording_abc_csv/sensor_1_ABC123_rr.csv"]
	require.True(t, ok)
	assert.Contains(t, rr, "RR Interval (ms)")

	stats, ok := names["recording_abc_csv/sensor_1_ABC123_statistics.csv"]
	require.True(t, ok)
	assert.Contains(t, stats, "Metric,Value")
	assert.Contains(t, stats, "Min Heart Rate (BPM),72")
	assert.Contains(t, stats, "SDNN (ms),7.07")
	assert.Contains(t, stats, "HRV Window,5m0s")
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
