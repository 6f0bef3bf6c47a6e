package ctl

import (
	"fmt"
	"os"
	"strings"
)

// Export downloads a recording's CSV zip archive and writes it to outPath.
// An empty outPath derives the filename from the recording ID.
func Export(baseURL, id, outPath string) error {
	baseURL = strings.TrimRight(baseURL, "/")

	if id == "" {
		return fmt.Errorf("recording id required")
	}
	if outPath == "" {
		outPath = "recording_" + id + "_csv.zip"
	}

	status, body, err := getRaw(baseURL, "/api/export?id="+id)
	if err != nil {
		return err
	}
	if status != 200 {
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return fmt.Errorf("HTTP %d: %s", status, msg)
		}
		return fmt.Errorf("HTTP %d from /api/export", status)
	}

	if err := os.WriteFile(outPath, body, 0o644); err != nil {
		return err
	}

	fmt.Printf("\n  %s  wrote %s (%s)\n\n",
		colorize(green, "EXPORTED"), outPath, formatBytes(int64(len(body))))
	return nil
}
