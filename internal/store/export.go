package store

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/urap-lab/pulse-engine/internal/session"
)

// ExportCSVZip writes a recording as the app's CSV zip export: a
// recording_<id>_csv/ folder containing session_info.csv plus per-sensor
// _hr.csv, _rr.csv, and _statistics.csv files. Downstream analysis tooling
// parses this layout, so the file names and column headers are load-bearing.
func ExportCSVZip(rec *session.Recording, w io.Writer) error {
	zw := zip.NewWriter(w)
	prefix := fmt.Sprintf("recording_%s_csv/", rec.ID)

	if err := writeSessionInfo(zw, prefix, rec); err != nil {
		return err
	}

	for i := range rec.SensorRecordings {
		sr := &rec.SensorRecordings[i]
		base := fmt.Sprintf("%ssensor_%d_%s", prefix, i+1, sr.SensorID)

		if err := writeHRCSV(zw, base+"_hr.csv", sr.HeartRateData); err != nil {
			return err
		}
		if err := writeRRCSV(zw, base+"_rr.csv", sr.RRIntervalData); err != nil {
			return err
		}
		if err := writeStatisticsCSV(zw, base+"_statistics.csv", sr); err != nil {
			return err
		}
	}

	return zw.Close()
}

func writeSessionInfo(zw *zip.Writer, prefix string, rec *session.Recording) error {
	f, err := zw.Create(prefix + "session_info.csv")
	if err != nil {
		return err
	}
	cw := csv.NewWriter(f)

	summary := rec.Summarize()
	rows := [][]string{
		{"Session ID", rec.ID},
		{"Recording Name", rec.Name},
		{"Start Time", rec.StartDate.UTC().Format(time.RFC3339)},
		{"End Time", rec.EndDate.UTC().Format(time.RFC3339)},
		{"Duration (seconds)", formatFloat(rec.Duration())},
		{"Number of Sensors", strconv.Itoa(len(rec.SensorRecordings))},
		{"Total Data Points", strconv.Itoa(rec.TotalDataPoints())},
		{"Average Heart Rate (BPM)", formatFloat(summary.AverageHeartRate)},
		{"Average SDNN (ms)", formatFloat(summary.AverageSDNN)},
		{"Average RMSSD (ms)", formatFloat(summary.AverageRMSSD)},
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}

	// Sensor summary table, separated by a blank line and a section marker.
	if err := cw.Write([]string{""}); err != nil {
		return err
	}
	if err := cw.Write([]string{"Sensors"}); err != nil {
		return err
	}
	if err := cw.Write([]string{"Sensor ID", "Sensor Name", "HR Samples", "RR Samples", "Avg HR", "SDNN", "RMSSD"}); err != nil {
		return err
	}
	for i := range rec.SensorRecordings {
		sr := &rec.SensorRecordings[i]
		st := &sr.Statistics
		row := []string{
			sr.SensorID,
			sr.SensorName,
			strconv.Itoa(st.HeartRateSamples),
			strconv.Itoa(st.RRIntervalSamples),
			strconv.Itoa(st.AverageHeartRate),
			formatFloat(st.SDNN),
			formatFloat(st.RMSSD),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeHRCSV(zw *zip.Writer, name string, points []session.HeartRatePoint) error {
	f, err := zw.Create(name)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"Timestamp", "Unix Time", "Monotonic Time", "Heart Rate (BPM)"}); err != nil {
		return err
	}
	for _, p := range points {
		row := []string{
			p.Timestamp.UTC().Format(time.RFC3339Nano),
			formatFloat(float64(p.Timestamp.UnixNano()) / 1e9),
			formatFloat(p.MonotonicTimestamp),
			strconv.Itoa(p.Value),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeRRCSV(zw *zip.Writer, name string, points []session.RRIntervalPoint) error {
	f, err := zw.Create(name)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"Timestamp", "Unix Time", "Monotonic Time", "RR Interval (ms)"}); err != nil {
		return err
	}
	for _, p := range points {
		row := []string{
			p.Timestamp.UTC().Format(time.RFC3339Nano),
			formatFloat(float64(p.Timestamp.UnixNano()) / 1e9),
			formatFloat(p.MonotonicTimestamp),
			strconv.Itoa(p.Value),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeStatisticsCSV(zw *zip.Writer, name string, sr *session.SensorRecording) error {
	f, err := zw.Create(name)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(f)
	st := &sr.Statistics
	rows := [][]string{
		{"Metric", "Value"},
		{"Sensor ID", sr.SensorID},
		{"Sensor Name", sr.SensorName},
		{"Duration (seconds)", formatFloat(sr.Duration())},
		{"Heart Rate Samples", strconv.Itoa(st.HeartRateSamples)},
		{"RR Interval Samples", strconv.Itoa(st.RRIntervalSamples)},
		{"Min Heart Rate (BPM)", strconv.Itoa(st.MinHeartRate)},
		{"Max Heart Rate (BPM)", strconv.Itoa(st.MaxHeartRate)},
		{"Average Heart Rate (BPM)", strconv.Itoa(st.AverageHeartRate)},
		{"SDNN (ms)", formatFloat(st.SDNN)},
		{"RMSSD (ms)", formatFloat(st.RMSSD)},
		{"HRV Window", st.HRVWindow},
		{"HRV Sample Count", strconv.Itoa(st.HRVSampleCount)},
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
