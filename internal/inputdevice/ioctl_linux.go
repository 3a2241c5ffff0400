// Package inputdevice implements the Input Reader: enumerating,
// grabbing, and reading Linux /dev/input/eventN keyboard devices and
// forwarding their key events into a layer.Sink.
package inputdevice

import (
	"encoding/binary"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Event types/codes this package cares about (linux/input-event-codes.h).
const (
	evSyn = 0x00
	evKey = 0x01

	synReport = 0x00
)

// ioctl request encoding (Linux _IOC macro).
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14
	iocDirBits  = 2

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocWrite = 1
	iocRead  = 2
)

func ioc(dir uint32, typ uint32, nr uint32, size uint32) uintptr {
	return uintptr((dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift))
}

// evioCGrab is EVIOCGRAB = _IOW('E', 0x90, int).
func evioCGrab() uintptr {
	return ioc(iocWrite, uint32('E'), 0x90, uint32(unsafe.Sizeof(int32(0))))
}

// evioCGBit is EVIOCGBIT(ev, len) = _IOR('E', 0x20 + ev, char[len]),
// used to query a device's capability bitmask for a given event type
// (here always EV_KEY, to test for KEY_A/KEY_Z/KEY_SPACE support).
func evioCGBit(ev int, length int) uintptr {
	return ioc(iocRead, uint32('E'), uint32(0x20+ev), uint32(length))
}

func getEVKeyBits(fd int, nbits int) ([]byte, error) {
	nbytes := (nbits + 7) / 8
	buf := make([]byte, nbytes)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), evioCGBit(evKey, nbytes), uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return nil, errno
	}
	return buf, nil
}

func bitSet(bits []byte, n int) bool {
	idx := n / 8
	if idx >= len(bits) {
		return false
	}
	return bits[idx]&(1<<uint(n%8)) != 0
}

func grabFD(fd int) error {
	var one int32 = 1
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), evioCGrab(), uintptr(unsafe.Pointer(&one)))
	if errno != 0 {
		return errno
	}
	return nil
}

func ungrabFD(fd int) error {
	var zero int32
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), evioCGrab(), uintptr(unsafe.Pointer(&zero)))
	if errno != 0 {
		return errno
	}
	return nil
}

// inputParser parses Linux input_event structs from a byte stream.
// The kernel's struct size depends on timeval width (32-bit vs
// 64-bit time_t), so the parser sniffs 16 vs 24 bytes per record from
// the first full buffer it sees.
type inputParser struct {
	buf []byte
	sz  int // 0 unknown, else 16 or 24
}

// feed parses chunk as a stream of input_event records, invoking cb for
// each with the kernel-reported event time (spec.md §3/§6: the
// timestamp a TimedKeyInput carries is the kernel event time, which
// matters for pair-threshold accuracy), not the time the record was
// read off the fd.
func (p *inputParser) feed(chunk []byte, cb func(etype uint16, code uint16, value int32, t time.Time)) {
	p.buf = append(p.buf, chunk...)
	if p.sz == 0 {
		if len(p.buf) >= 48 && len(p.buf)%24 == 0 {
			p.sz = 24
		} else if len(p.buf) >= 32 && len(p.buf)%16 == 0 {
			p.sz = 16
		} else if len(p.buf) >= 24 {
			p.sz = 24 // fallback: assume 64-bit timeval
		}
	}
	for p.sz != 0 && len(p.buf) >= p.sz {
		ev := p.buf[:p.sz]
		p.buf = p.buf[p.sz:]
		var etype, code uint16
		var value int32
		var sec, usec int64
		if p.sz == 24 {
			sec = int64(binary.LittleEndian.Uint64(ev[0:8]))
			usec = int64(binary.LittleEndian.Uint64(ev[8:16]))
			etype = binary.LittleEndian.Uint16(ev[16:18])
			code = binary.LittleEndian.Uint16(ev[18:20])
			value = int32(binary.LittleEndian.Uint32(ev[20:24]))
		} else {
			sec = int64(int32(binary.LittleEndian.Uint32(ev[0:4])))
			usec = int64(int32(binary.LittleEndian.Uint32(ev[4:8])))
			etype = binary.LittleEndian.Uint16(ev[8:10])
			code = binary.LittleEndian.Uint16(ev[10:12])
			value = int32(binary.LittleEndian.Uint32(ev[12:16]))
		}
		cb(etype, code, value, time.Unix(sec, usec*int64(time.Microsecond)))
	}
}
