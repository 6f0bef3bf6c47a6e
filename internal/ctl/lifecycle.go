package ctl

import (
	"fmt"
	"strings"
)

type lifecycleResult struct {
	OK          bool   `json:"ok"`
	State       string `json:"state"`
	RecordingID string `json:"recording_id"`
	Error       string `json:"error"`
}

// Start begins a new recording. Name may be empty; the daemon generates a
// timestamped name in that case.
func Start(baseURL, name string, jsonOutput bool) error {
	var body any
	if name != "" {
		body = map[string]string{"name": name}
	}

	var result lifecycleResult
	if err := postJSON(strings.TrimRight(baseURL, "/"), "/api/start", body, &result); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}
	fmt.Printf("\n  %s  recording %s\n\n",
		colorize(stateColor(result.State), result.State), result.RecordingID)
	return nil
}

// Pause pauses the active recording.
func Pause(baseURL string, jsonOutput bool) error {
	return lifecycleCommand(baseURL, "/api/pause", jsonOutput)
}

// Resume resumes a paused recording.
func Resume(baseURL string, jsonOutput bool) error {
	return lifecycleCommand(baseURL, "/api/resume", jsonOutput)
}

// Stop finalizes the active recording and saves it to disk.
func Stop(baseURL string, jsonOutput bool) error {
	return lifecycleCommand(baseURL, "/api/stop", jsonOutput)
}

// Cancel discards the active recording without saving.
func Cancel(baseURL string, jsonOutput bool) error {
	return lifecycleCommand(baseURL, "/api/cancel", jsonOutput)
}

func lifecycleCommand(baseURL, path string, jsonOutput bool) error {
	var result lifecycleResult
	if err := postJSON(strings.TrimRight(baseURL, "/"), path, nil, &result); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}
	fmt.Printf("\n  %s\n\n", colorize(stateColor(result.State), result.State))
	return nil
}
