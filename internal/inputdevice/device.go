package inputdevice

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrDeviceBusy is returned by Grab when the device is already
// exclusively held by another process (spec.md §7: "Device busy on
// grab: log at error, continue with remaining devices").
var ErrDeviceBusy = errors.New("inputdevice: device already in use")

// Device is one grabbed /dev/input/eventN keyboard.
type Device struct {
	Path string
	f    *os.File
	fd   int

	grabbed bool
}

// Open opens path without grabbing it.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := unix.SetNonblock(int(f.Fd()), true); err != nil {
		f.Close()
		return nil, fmt.Errorf("set nonblocking %s: %w", path, err)
	}
	return &Device{Path: path, f: f, fd: int(f.Fd())}, nil
}

// Grab issues EVIOCGRAB, claiming exclusive access. EBUSY is reported
// as ErrDeviceBusy so the supervisor can continue with other devices
// rather than failing outright.
func (d *Device) Grab() error {
	if err := grabFD(d.fd); err != nil {
		if errors.Is(err, unix.EBUSY) {
			return ErrDeviceBusy
		}
		return fmt.Errorf("EVIOCGRAB %s: %w", d.Path, err)
	}
	d.grabbed = true
	return nil
}

// FD returns the underlying file descriptor, for use with unix.Poll.
func (d *Device) FD() int { return d.fd }

// Read reads raw bytes from the device (non-blocking; caller polls first).
func (d *Device) Read(buf []byte) (int, error) {
	return d.f.Read(buf)
}

// Close releases the grab (if held) and closes the device.
func (d *Device) Close() error {
	if d.grabbed {
		_ = ungrabFD(d.fd)
	}
	return d.f.Close()
}
