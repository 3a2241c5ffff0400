// Command kiri grabs one or more physical keyboards, rewrites their
// event stream through a stack of declarative remap layers, and
// re-emits it through a synthetic virtual keyboard.
//
// Configuration is data-in-code (spec.md §6): the layer pipeline
// shipped here is layers.Default(). The binary accepts no positional
// arguments; a handful of debug flags and environment variables tune
// runtime behavior without changing the pipeline's semantics.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"kiri/internal/keycodes"
	"kiri/internal/layer"
	"kiri/internal/supervisor"
	"kiri/layers"
)

func main() {
	var (
		listDevices = flag.Bool("list-devices", false, "Print /proc/bus/input/devices names/handlers and exit")
		debug       = flag.Bool("debug", getenvBoolDefault("DEBUG", false), "Enable debug-level logging")
		dumpEvents  = flag.Bool("dump-events", getenvBoolDefault("DUMP_EVENTS", false), "Log every raw key event (noisy)")
	)
	flag.Parse()

	log := newLogger(*debug)

	emergencyStopKey := keycodes.KeyEsc
	if name := os.Getenv("KIRI_EMERGENCY_STOP_KEY"); name != "" {
		if k, ok := keycodes.Lookup(name); ok {
			emergencyStopKey = k
		} else {
			log.Warnf("KIRI_EMERGENCY_STOP_KEY=%q not recognized, using default KEY_ESC", name)
		}
	}

	cfg := supervisor.Config{
		DevicePath:       os.Getenv("KIRI_DEVICE"),
		OutputKeys:       keycodes.All(),
		EmergencyStopKey: emergencyStopKey,
		DiagAddr:         os.Getenv("KIRI_DIAG_ADDR"),
		ListDevices:      *listDevices,
		DumpEvents:       *dumpEvents,
		BuildPipeline: func(terminal layer.Sink) (*layer.Pipeline, error) {
			return layer.NewPipeline(layers.Default(), terminal, log)
		},
	}

	stop := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received interrupt, shutting down")
		close(stop)
	}()

	if err := supervisor.Run(cfg, stop, log); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(debug bool) *logrus.Logger {
	log := logrus.New()
	level := getenvDefault("KIRI_LOG", "info")
	if debug {
		level = "debug"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return log
}
