// Package outputdevice implements the Output Writer: a synthetic
// /dev/uinput keyboard that the remap pipeline's terminal sink writes
// press/release events to.
package outputdevice

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	evSyn = 0x00
	evKey = 0x01

	synReport = 0x00
)

// uinput ioctl constants (linux/uinput.h), written as precomputed
// _IOC request values (the same encoding the Input Reader's ioc()
// builder produces for EVIOCGRAB/EVIOCGBIT) and issued through the
// same unix.Syscall(SYS_IOCTL, ...) call shape.
const (
	uinputMaxNameSize = 80

	uiSetEVBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiDevSetup   = 0x405c5503

	busUSB = 0x03
)

// uinputSetup mirrors struct uinput_setup.
type uinputSetup struct {
	ID struct {
		Bustype uint16
		Vendor  uint16
		Product uint16
		Version uint16
	}
	Name      [uinputMaxNameSize]byte
	FFEffects uint32
}

// virtualDeviceName is mandated verbatim by spec.md §6.
const virtualDeviceName = "kiri virtual keyboard"

// VirtualKeyboard owns the /dev/uinput handle for the synthetic
// output device, created with EV_KEY capability for every key in the
// given set (spec.md §6: "the union of key capabilities needed").
type VirtualKeyboard struct {
	fd int
}

// CreateVirtualKeyboard opens /dev/uinput and creates the synthetic
// device. ENOENT/EPERM/EACCES while opening surfaces as a privilege
// error the caller should present per spec.md §7's "Permission denied
// creating the virtual output device: report 'requires elevated
// privileges', exit 1."
func CreateVirtualKeyboard(keys []uint16) (*VirtualKeyboard, error) {
	fd, err := unix.Open("/dev/uinput", unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.ENOENT) {
			return nil, fmt.Errorf("open /dev/uinput: requires elevated privileges (%w)", err)
		}
		return nil, fmt.Errorf("open /dev/uinput: %w", err)
	}

	v := &VirtualKeyboard{fd: fd}
	if err := v.ioctl(uiSetEVBit, uintptr(evKey)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("UI_SET_EVBIT: %w", err)
	}
	for _, k := range keys {
		if err := v.ioctl(uiSetKeyBit, uintptr(k)); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("UI_SET_KEYBIT(%d): %w", k, err)
		}
	}

	var setup uinputSetup
	setup.ID.Bustype = busUSB
	setup.ID.Vendor = 0x1234
	setup.ID.Product = 0x4b52 // "KR" (kiri remapper)
	setup.ID.Version = 1
	copy(setup.Name[:], virtualDeviceName)

	if err := v.ioctlPtr(uiDevSetup, unsafe.Pointer(&setup)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("UI_DEV_SETUP: %w", err)
	}
	if err := v.ioctl(uiDevCreate, 0); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("UI_DEV_CREATE: %w", err)
	}

	// Give udev a moment to create the /dev/input/eventN node before
	// anything tries to open it back (e.g. a future re-grab).
	time.Sleep(100 * time.Millisecond)
	return v, nil
}

func (v *VirtualKeyboard) ioctl(req uintptr, val uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(v.fd), req, val)
	if errno != 0 {
		return errno
	}
	return nil
}

func (v *VirtualKeyboard) ioctlPtr(req uintptr, ptr unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(v.fd), req, uintptr(ptr))
	if errno != 0 {
		return errno
	}
	return nil
}

// writeEvent marshals and writes one input_event, 24-byte (64-bit
// timeval) layout — the layout this binary's own kernel expects,
// unlike inputdevice's inputParser which must cope with either size
// coming from an arbitrary source device.
func (v *VirtualKeyboard) writeEvent(etype, code uint16, value int32) error {
	var tv unix.Timeval
	_ = unix.Gettimeofday(&tv)

	buf := make([]byte, 24)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(tv.Sec))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(tv.Usec))
	binary.LittleEndian.PutUint16(buf[16:18], etype)
	binary.LittleEndian.PutUint16(buf[18:20], code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(value))

	_, err := unix.Write(v.fd, buf)
	return err
}

func (v *VirtualKeyboard) sync() error {
	return v.writeEvent(evSyn, synReport, 0)
}

// EmitKey writes a single key event (value 1 press, 0 release)
// followed by a SYN_REPORT, per spec.md §4.4.
func (v *VirtualKeyboard) EmitKey(code uint16, value int32) error {
	if err := v.writeEvent(evKey, code, value); err != nil {
		return err
	}
	return v.sync()
}

// Close destroys the virtual device.
func (v *VirtualKeyboard) Close() error {
	_ = v.ioctl(uiDevDestroy, 0)
	return unix.Close(v.fd)
}

