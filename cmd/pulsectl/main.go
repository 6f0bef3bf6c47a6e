// Pulsectl is the command-line client for monitoring and controlling a
// running pulsed instance. It connects over HTTP and WebSocket to query
// status, drive the recording lifecycle, and stream live sensor events.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/urap-lab/pulse-engine/internal/ctl"
)

func main() {
	var (
		host    = pflag.StringP("host", "H", "http://127.0.0.1:8081", "Pulse daemon URL (e.g. http://192.168.8.1:8081)")
		jsonOut = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		filter  = pflag.StringSlice("filter", nil, "Event types to show in watch (e.g. --filter state,log)")
	)

	// Stop parsing global flags at the first non-flag argument (the command
	// name), so subcommand-specific flags like --out are not rejected.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	var err error
	switch cmd {
	// ── Query commands ────────────────────────────────────────────
	case "status":
		err = ctl.Status(*host, *jsonOut)

	case "health":
		err = ctl.Health(*host, *jsonOut)

	case "version":
		err = ctl.VersionInfo(*host, *jsonOut)

	case "sensors":
		err = ctl.Sensors(*host, *jsonOut)

	case "add-sensor":
		var name string
		addFlags := pflag.NewFlagSet("add-sensor", pflag.ContinueOnError)
		addFlags.StringVar(&name, "name", "", "Sensor display name (default: Polar <id>)")
		_ = addFlags.Parse(subArgs)
		if addFlags.NArg() < 1 {
			err = fmt.Errorf("usage: pulsectl add-sensor <sensor-id> [--name NAME]")
		} else {
			err = ctl.AddSensor(*host, addFlags.Arg(0), name, *jsonOut)
		}

	case "remove-sensor":
		if len(subArgs) < 1 {
			err = fmt.Errorf("usage: pulsectl remove-sensor <sensor-id>")
		} else {
			err = ctl.RemoveSensor(*host, subArgs[0], *jsonOut)
		}

	case "recordings":
		opts := ctl.RecordingsOptions{JSON: *jsonOut}
		recFlags := pflag.NewFlagSet("recordings", pflag.ContinueOnError)
		recFlags.StringVar(&opts.Delete, "delete", "", "Delete a recording by ID")
		_ = recFlags.Parse(subArgs)
		err = ctl.Recordings(*host, opts)

	case "export":
		var outPath string
		exportFlags := pflag.NewFlagSet("export", pflag.ContinueOnError)
		exportFlags.StringVar(&outPath, "out", "", "Output zip path (default recording_<id>_csv.zip)")
		_ = exportFlags.Parse(subArgs)
		if exportFlags.NArg() < 1 {
			err = fmt.Errorf("usage: pulsectl export <recording-id> [--out file.zip]")
		} else {
			err = ctl.Export(*host, exportFlags.Arg(0), outPath)
		}

	case "logs":
		opts := ctl.LogsOptions{JSON: *jsonOut}
		logFlags := pflag.NewFlagSet("logs", pflag.ContinueOnError)
		logFlags.StringVar(&opts.Level, "level", "", "Filter by log level (info, error, warn)")
		logFlags.IntVar(&opts.Limit, "limit", 0, "Limit number of log entries shown")
		logFlags.BoolVar(&opts.Tail, "tail", false, "Stream live log events (like watch --filter log)")
		_ = logFlags.Parse(subArgs)
		err = ctl.Logs(*host, opts)

	// ── Recording lifecycle ───────────────────────────────────────
	case "start":
		var name string
		startFlags := pflag.NewFlagSet("start", pflag.ContinueOnError)
		startFlags.StringVar(&name, "name", "", "Recording name (default: timestamped)")
		_ = startFlags.Parse(subArgs)
		err = ctl.Start(*host, name, *jsonOut)

	case "pause":
		err = ctl.Pause(*host, *jsonOut)

	case "resume":
		err = ctl.Resume(*host, *jsonOut)

	case "stop":
		err = ctl.Stop(*host, *jsonOut)

	case "cancel":
		err = ctl.Cancel(*host, *jsonOut)

	case "reload":
		err = ctl.Reload(*host, *jsonOut)

	// ── Live streaming ────────────────────────────────────────────
	case "watch":
		err = ctl.Watch(*host, ctl.WatchOptions{
			Filter: *filter,
			JSON:   *jsonOut,
		})

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Print(`
  pulsectl — Pulse Engine control CLI

  USAGE
    pulsectl [flags] <command> [command-flags]

  COMMANDS (query)
    status          Show daemon state, uptime, and the active recording
    health          Check daemon and component health
    version         Show CLI and daemon version information
    sensors         List connected sensors and their latest readings
    add-sensor      Register a sensor with the daemon by ID
    remove-sensor   Disconnect a sensor from the daemon by ID
    recordings      List saved recordings
    logs            Show recent daemon log messages

  COMMANDS (recording)
    start           Start a new recording over all connected sensors
    pause           Pause the active recording (live display continues)
    resume          Resume a paused recording
    stop            Stop and save the active recording
    cancel          Discard the active recording without saving
    reload          Reload configuration from disk

  COMMANDS (data)
    export          Download a recording as a CSV zip archive

  COMMANDS (live)
    watch           Stream live events from the daemon (Ctrl-C to stop)

  GLOBAL FLAGS
    -H, --host URL      Daemon base URL (default: http://127.0.0.1:8081)
        --json          Output raw JSON instead of formatted text
        --filter TYPE   Event types to show in watch (comma-separated)

  COMMAND FLAGS
    start:
        --name NAME         Recording name (default: timestamped)

    add-sensor:
        --name NAME         Sensor display name (default: Polar <id>)

    recordings:
        --delete ID         Delete a recording by ID

    export:
        --out FILE          Output zip path

    logs:
        --level LEVEL       Filter by log level (info, error, warn)
        --limit N           Limit number of log entries shown
        --tail              Stream live log events

  EXAMPLES
    pulsectl status
    pulsectl --json status
    pulsectl --host http://192.168.8.1:8081 watch
    pulsectl sensors
    pulsectl add-sensor A0B1C2D3 --name "Polar H10 chest"
    pulsectl start --name "morning cohort"
    pulsectl pause
    pulsectl resume
    pulsectl stop
    pulsectl recordings
    pulsectl export 6f1c2a3e --out session.zip
    pulsectl logs --level error --limit 20
    pulsectl watch --filter state,live_sample

`)
}
