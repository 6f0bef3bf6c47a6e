package ctl

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RecordingsOptions configures the recordings command.
type RecordingsOptions struct {
	Delete string
	JSON   bool
}

// Recordings lists saved recordings or deletes one by ID.
func Recordings(baseURL string, opts RecordingsOptions) error {
	baseURL = strings.TrimRight(baseURL, "/")

	if opts.Delete != "" {
		url := baseURL + "/api/recordings?id=" + opts.Delete
		req, err := http.NewRequest(http.MethodDelete, url, nil)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var result struct {
			OK      bool   `json:"ok"`
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if opts.JSON {
			return printJSON(result)
		}
		if result.OK {
			fmt.Printf("\n  %s  %s\n\n", colorize(green, "DELETED"), result.Message)
		} else {
			fmt.Printf("\n  %s  %s\n\n", colorize(red, "ERROR"), result.Error)
		}
		return nil
	}

	var resp struct {
		Recordings []struct {
			ID               string  `json:"id"`
			Name             string  `json:"name"`
			StartDate        string  `json:"startDate"`
			Duration         float64 `json:"duration"`
			SensorCount      int     `json:"sensorCount"`
			AverageHeartRate float64 `json:"averageHeartRate"`
			AverageSDNN      float64 `json:"averageSDNN"`
			AverageRMSSD     float64 `json:"averageRMSSD"`
		} `json:"recordings"`
	}
	if err := getJSON(baseURL, "/api/recordings", &resp); err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  RECORDINGS"))

	if len(resp.Recordings) == 0 {
		fmt.Println(colorize(dim, "  ────────────────────────"))
		fmt.Println("  No recordings found.")
	} else {
		t := newTable("  ", "Started", "Name", "Duration", "Sensors", "Avg HR", "SDNN", "RMSSD", "ID")
		t.alignRight(3)
		t.alignRight(4)
		t.alignRight(5)
		t.alignRight(6)
		for _, r := range resp.Recordings {
			started := r.StartDate
			if ts, err := time.Parse(time.RFC3339, r.StartDate); err == nil {
				started = ts.Local().Format("2006-01-02 15:04")
			}
			t.row(
				started,
				r.Name,
				formatDuration(time.Duration(r.Duration)*time.Second),
				strconv.Itoa(r.SensorCount),
				fmt.Sprintf("%.0f bpm", r.AverageHeartRate),
				fmt.Sprintf("%.1f", r.AverageSDNN),
				fmt.Sprintf("%.1f", r.AverageRMSSD),
				r.ID,
			)
		}
		t.flush()
	}
	fmt.Println()
	return nil
}
