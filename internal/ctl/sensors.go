package ctl

import (
	"fmt"
	"strconv"
	"strings"
)

// Sensors lists the sensors currently connected to the daemon.
func Sensors(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var resp struct {
		Sensors []struct {
			ID              string `json:"id"`
			Name            string `json:"name"`
			LatestHeartRate int    `json:"latest_heart_rate"`
			HRSamples       int    `json:"hr_samples"`
			RRSamples       int    `json:"rr_samples"`
		} `json:"sensors"`
	}
	if err := getJSON(baseURL, "/api/sensors", &resp); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  SENSORS"))

	if len(resp.Sensors) == 0 {
		fmt.Println(colorize(dim, "  ────────────────────────"))
		fmt.Println("  No sensors connected.")
	} else {
		t := newTable("  ", "ID", "Name", "HR", "HR Samples", "RR Samples")
		t.alignRight(2)
		t.alignRight(3)
		t.alignRight(4)
		for _, s := range resp.Sensors {
			hr := "-"
			if s.LatestHeartRate > 0 {
				hr = strconv.Itoa(s.LatestHeartRate) + " bpm"
			}
			t.row(s.ID, s.Name, hr, strconv.Itoa(s.HRSamples), strconv.Itoa(s.RRSamples))
		}
		t.flush()
	}
	fmt.Println()
	return nil
}

type sensorResult struct {
	OK          bool   `json:"ok"`
	SensorID    string `json:"sensor_id"`
	SensorCount int    `json:"sensor_count"`
	Error       string `json:"error"`
}

// AddSensor registers a sensor with the daemon by id, with an optional
// display name.
func AddSensor(baseURL, id, name string, jsonOutput bool) error {
	body := map[string]string{"id": id}
	if name != "" {
		body["name"] = name
	}

	var res sensorResult
	if err := postJSON(baseURL, "/api/sensors/add", body, &res); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}
	if !res.OK {
		return fmt.Errorf("%s", res.Error)
	}
	fmt.Printf("\n  %s  sensor %s (%d connected)\n\n", colorize(green, "ADDED"), res.SensorID, res.SensorCount)
	return nil
}

// RemoveSensor disconnects a sensor from the daemon by id.
func RemoveSensor(baseURL, id string, jsonOutput bool) error {
	var res sensorResult
	if err := postJSON(baseURL, "/api/sensors/remove", map[string]string{"id": id}, &res); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}
	if !res.OK {
		return fmt.Errorf("%s", res.Error)
	}
	fmt.Printf("\n  %s  sensor %s (%d connected)\n\n", colorize(green, "REMOVED"), res.SensorID, res.SensorCount)
	return nil
}
