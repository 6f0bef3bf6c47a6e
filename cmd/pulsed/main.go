// Pulsed is the recording daemon for the Pulse Engine heart rate lab rig.
//
// It loads configuration, starts the control HTTP/WebSocket server and the
// read-only recordings API, and bridges sensor traffic from MQTT or the
// built-in demo mode into the recording coordinator. Shutdown is handled
// gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/urap-lab/pulse-engine/internal/app"
	"github.com/urap-lab/pulse-engine/internal/config"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "/etc/pulse-engine/pulsed.toml", "Path to config TOML")
		bind       = pflag.String("bind", "", "Control bind address (overrides config)")
		demoMode   = pflag.Bool("demo", false, "Force demo mode with simulated sensors")
	)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("config load failed: %v", err)
		}
		// Missing config is fine for bench use; run on defaults.
		cfg = config.Default()
	}
	if *demoMode {
		cfg.Demo.Enabled = true
	}

	logger := log.New(os.Stdout, "pulsed ", log.LstdFlags|log.Lmicroseconds)

	a := app.New(app.Options{
		Logger:     logger,
		Cfg:        cfg,
		ConfigPath: *configPath,
		Bind:       *bind,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		logger.Fatalf("pulsed failed: %v", err)
	}

	// Brief pause so in-flight log writes can flush before exit.
	time.Sleep(50 * time.Millisecond)
}
