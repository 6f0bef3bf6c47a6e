package ctl

import (
	"fmt"
	"strings"
	"time"
)

// StatusResponse mirrors the JSON returned by GET /api/status.
type StatusResponse struct {
	Name           string         `json:"name"`
	State          string         `json:"state"`
	UptimeSeconds  int64          `json:"uptime_seconds"`
	DataRoot       string         `json:"data_root"`
	SensorCount    int            `json:"sensor_count"`
	Mode           string         `json:"mode"`
	Broker         string         `json:"broker"`
	RecordingID    string         `json:"recording_id"`
	RecordingName  string         `json:"recording_name"`
	ElapsedSeconds int64          `json:"elapsed_seconds"`
	Error          string         `json:"error"`
	Disk           map[string]any `json:"disk"`
}

// Status fetches the daemon status and prints a formatted summary.
func Status(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var s StatusResponse
	if err := getJSON(baseURL, "/api/status", &s); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(s)
	}

	uptime := formatDuration(time.Duration(s.UptimeSeconds) * time.Second)
	stateStr := colorize(stateColor(s.State), s.State)

	fmt.Println()
	fmt.Println(header("  PULSE ENGINE STATUS"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 38)))
	fmt.Printf("  %-12s %s\n", colorize(dim, "Daemon:"), s.Name)
	fmt.Printf("  %-12s %s\n", colorize(dim, "State:"), stateStr)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Uptime:"), uptime)
	fmt.Printf("  %-12s %d\n", colorize(dim, "Sensors:"), s.SensorCount)
	mode := s.Mode
	if s.Mode == "mqtt" && s.Broker != "" {
		mode += " (" + s.Broker + ")"
	}
	fmt.Printf("  %-12s %s\n", colorize(dim, "Mode:"), mode)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Data:"), s.DataRoot)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Host:"), baseURL)

	if s.RecordingID != "" {
		elapsed := formatDuration(time.Duration(s.ElapsedSeconds) * time.Second)
		fmt.Println(colorize(dim, "  "+strings.Repeat("─", 38)))
		fmt.Printf("  %-12s %s\n", colorize(dim, "Recording:"), s.RecordingName)
		fmt.Printf("  %-12s %s\n", colorize(dim, "ID:"), s.RecordingID)
		fmt.Printf("  %-12s %s\n", colorize(dim, "Elapsed:"), elapsed)
	}
	if s.Error != "" {
		fmt.Printf("  %-12s %s\n", colorize(dim, "Error:"), colorize(red, s.Error))
	}
	if total, ok := s.Disk["total_bytes"].(float64); ok {
		if avail, ok := s.Disk["available_bytes"].(float64); ok {
			fmt.Printf("  %-12s %s free of %s\n", colorize(dim, "Disk:"),
				formatBytes(int64(avail)), formatBytes(int64(total)))
		}
	}
	fmt.Println()

	return nil
}
