// Package supervisor wires the Input Reader, the layer pipeline, and
// the Output Writer together: device enumeration, exclusive grab,
// virtual device creation, pipeline construction, and graceful
// shutdown on emergency-stop or fatal I/O error (spec.md §4.5).
package supervisor

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"kiri/internal/diagnostics"
	"kiri/internal/inputdevice"
	"kiri/internal/keycodes"
	"kiri/internal/layer"
	"kiri/internal/outputdevice"
)

// Config carries everything the supervisor needs beyond a logger.
// BuildPipeline is supplied by the caller (cmd/kiri) because only it
// knows the concrete LayerState type parameter(s) of the statically
// assembled layer.Config values (spec.md §6: "the runtime binary
// takes a statically-built pipeline; configuration is data-in-code").
type Config struct {
	// DevicePath, if non-empty, names the single device to use,
	// bypassing capability-based discovery (KIRI_DEVICE).
	DevicePath string

	// OutputKeys is the set of key capabilities the virtual device
	// advertises (spec.md §6: "the union of key capabilities needed");
	// cmd/kiri passes every key named in keycodes.All().
	OutputKeys []keycodes.Key

	EmergencyStopKey keycodes.Key

	// DiagAddr, if non-empty, starts the optional diagnostics
	// WebSocket server on this address (KIRI_DIAG_ADDR).
	DiagAddr string

	ListDevices bool
	DumpEvents  bool

	// BuildPipeline constructs the layer pipeline given the terminal
	// sink (the Output Writer, optionally wrapped by diagnostics).
	BuildPipeline func(terminal layer.Sink) (*layer.Pipeline, error)
}

// ErrNoDevices is returned when no keyboard could be opened at all
// (spec.md §7/§4.5: "If no keyboards are found... exits with a clear
// message and non-zero status").
var ErrNoDevices = errors.New("supervisor: no keyboard devices found")

// Run performs the full startup sequence and blocks until shutdown.
// stop, if closed, requests graceful shutdown (e.g. on SIGINT/SIGTERM);
// it behaves like an ordinary (non-emergency-stop) shutdown. Returns
// nil for a normal shutdown (emergency-stop key or stop closed), a
// non-nil error for any initialization failure or fatal runtime error.
func Run(cfg Config, stop <-chan struct{}, log logrus.FieldLogger) error {
	if cfg.ListDevices {
		for _, d := range inputdevice.ListProcInputDevices() {
			fmt.Printf("name=%q handlers=%v\n", d.Name, d.Handlers)
		}
		return nil
	}

	devices, err := discoverDevices(cfg)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return ErrNoDevices
	}

	grabbed := grabAll(devices, log)
	if len(grabbed) == 0 {
		for _, d := range devices {
			d.Close()
		}
		return fmt.Errorf("supervisor: every discovered device was busy")
	}
	defer func() {
		for _, d := range grabbed {
			d.Close()
		}
	}()

	vk, err := outputdevice.CreateVirtualKeyboard(keysToUint16(cfg.OutputKeys))
	if err != nil {
		return err
	}
	defer vk.Close()

	var sink layer.Sink = outputdevice.NewWriter(vk, log)

	var diagServer *diagnostics.Server
	if cfg.DiagAddr != "" {
		diagServer, err = diagnostics.NewServer(cfg.DiagAddr, log)
		if err != nil {
			return fmt.Errorf("starting diagnostics server: %w", err)
		}
		defer diagServer.Close()
		sink = diagnostics.NewSink(sink, diagServer)
	}

	pipeline, err := cfg.BuildPipeline(sink)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	reader := inputdevice.NewReader(grabbed, pipeline, cfg.EmergencyStopKey, cfg.DumpEvents, log)
	emergencyStop, runErr := reader.Run(stop)
	if runErr != nil {
		return runErr
	}
	if emergencyStop {
		log.Info("shutting down after emergency-stop")
	}
	return nil
}

func discoverDevices(cfg Config) ([]*inputdevice.Device, error) {
	if cfg.DevicePath != "" {
		d, err := inputdevice.Open(cfg.DevicePath)
		if err != nil {
			return nil, err
		}
		return []*inputdevice.Device{d}, nil
	}
	return inputdevice.DiscoverKeyboards()
}

// grabAll grabs every device, logging and dropping (not failing) any
// that report EBUSY (spec.md §7: "Device busy on grab: log at error,
// continue with remaining devices").
func grabAll(devices []*inputdevice.Device, log logrus.FieldLogger) []*inputdevice.Device {
	var grabbed []*inputdevice.Device
	for _, d := range devices {
		if err := d.Grab(); err != nil {
			if errors.Is(err, inputdevice.ErrDeviceBusy) {
				log.Errorf("device %s already in use, skipping", d.Path)
				d.Close()
				continue
			}
			log.Errorf("grabbing %s: %v", d.Path, err)
			d.Close()
			continue
		}
		grabbed = append(grabbed, d)
	}
	return grabbed
}

func keysToUint16(keys []keycodes.Key) []uint16 {
	out := make([]uint16, len(keys))
	for i, k := range keys {
		out[i] = uint16(k)
	}
	return out
}
