package inputdevice

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"kiri/internal/keycodes"
)

// ProcDeviceInfo is one block of /proc/bus/input/devices, used only
// for -list-devices diagnostics; device selection itself relies on
// the EVIOCGBIT capability probe in IsKeyboard, not on this name.
type ProcDeviceInfo struct {
	Name     string
	Handlers []string
}

// ListProcInputDevices parses /proc/bus/input/devices into blocks
// separated by blank lines, extracting the N: Name= and H: Handlers=
// fields. Returns nil if the file can't be read (e.g. non-Linux, or
// permission denied).
func ListProcInputDevices() []ProcDeviceInfo {
	b, err := os.ReadFile("/proc/bus/input/devices")
	if err != nil {
		return nil
	}
	blocks := strings.Split(string(b), "\n\n")
	var out []ProcDeviceInfo
	for _, blk := range blocks {
		info := ProcDeviceInfo{}
		for _, line := range strings.Split(blk, "\n") {
			if strings.HasPrefix(line, "N: Name=") {
				if parts := strings.SplitN(line, "=", 2); len(parts) == 2 {
					info.Name = strings.Trim(parts[1], " \"")
				}
			}
			if strings.HasPrefix(line, "H: Handlers=") {
				if parts := strings.SplitN(line, "=", 2); len(parts) == 2 {
					info.Handlers = strings.Fields(parts[1])
				}
			}
		}
		if info.Name != "" || len(info.Handlers) > 0 {
			out = append(out, info)
		}
	}
	return out
}

// maxKeycode bounds the EVIOCGBIT query: large enough to cover every
// KEY_* this package names plus headroom, matching keycodes.KeyMax.
const maxKeycode = int(keycodes.KeyMax) + 1

// IsKeyboard implements spec.md §6's device-selection rule: "any
// device that advertises capability for at least three representative
// keys (A, Z, SPACE) is considered a keyboard," mirroring the
// original's get_keyboard_devices (supported_keys.contains(KEY_A) &&
// ... KEY_Z && ... KEY_SPACE).
func IsKeyboard(fd int) bool {
	bits, err := getEVKeyBits(fd, maxKeycode)
	if err != nil {
		return false
	}
	return bitSet(bits, int(keycodes.KeyA)) &&
		bitSet(bits, int(keycodes.KeyZ)) &&
		bitSet(bits, int(keycodes.KeySpace))
}

// DiscoverKeyboards opens every /dev/input/event* node, keeping only
// those that pass IsKeyboard; devices that fail to open are skipped.
// Non-keyboard devices are closed immediately.
func DiscoverKeyboards() ([]*Device, error) {
	matches, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	var out []*Device
	for _, path := range matches {
		dev, err := Open(path)
		if err != nil {
			continue
		}
		if !IsKeyboard(dev.fd) {
			dev.Close()
			continue
		}
		out = append(out, dev)
	}
	return out, nil
}
