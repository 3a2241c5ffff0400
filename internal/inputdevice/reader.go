package inputdevice

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"kiri/internal/keycodes"
	"kiri/internal/layer"
)

// rawEvent is one parsed key event with its kernel event time, carried
// across the per-device goroutine -> merge goroutine channel.
type rawEvent struct {
	input layer.KeyInput
	t     time.Time
}

// Reader merges N grabbed keyboards into a single ordered stream fed
// into a layer.Sink (spec.md §4.3), matching the teacher's runOnce
// read loop (bufio.Reader + inputParser.feed) generalized from one
// device to N, and the original's make_read_channel (one thread per
// device, all sending into one mpsc channel) — one goroutine per
// device feeding a single shared Go channel is the direct translation
// of that pattern.
type Reader struct {
	devices          []*Device
	sink             layer.Sink
	emergencyStopKey keycodes.Key
	dumpEvents       bool
	log              logrus.FieldLogger

	events chan rawEvent
	errs   chan deviceError
}

type deviceError struct {
	dev *Device
	err error
}

// NewReader constructs a Reader over already-grabbed devices. sink is
// typically a *layer.Pipeline. dumpEvents logs every raw key event at
// debug level, mirroring the teacher's -dump-events flag.
func NewReader(devices []*Device, sink layer.Sink, emergencyStopKey keycodes.Key, dumpEvents bool, log logrus.FieldLogger) *Reader {
	return &Reader{
		devices:          devices,
		sink:             sink,
		emergencyStopKey: emergencyStopKey,
		dumpEvents:       dumpEvents,
		log:              log,
		events:           make(chan rawEvent, 256),
		errs:             make(chan deviceError, len(devices)),
	}
}

// Run starts one reader goroutine per device and merges their output
// into sink until an emergency-stop key press is observed, every
// device has dropped out, or stop is closed. Returns true if shutdown
// was triggered by the emergency-stop key.
func (r *Reader) Run(stop <-chan struct{}) (emergencyStop bool, err error) {
	var wg sync.WaitGroup
	done := make(chan struct{})
	for _, d := range r.devices {
		wg.Add(1)
		go r.readDevice(d, done, &wg)
	}
	go func() {
		wg.Wait()
		close(r.events)
	}()

	active := len(r.devices)
	for {
		select {
		case <-stop:
			close(done)
			return false, nil

		case ev, ok := <-r.events:
			if !ok {
				return false, errors.New("inputdevice: all devices disconnected")
			}
			if r.dumpEvents {
				r.log.Debugf("event key=%v kind=%v", ev.input.Key, ev.input.Kind)
			}
			if ev.input.Kind == layer.Press && ev.input.Key == r.emergencyStopKey {
				r.log.Info("emergency-stop key pressed, shutting down")
				close(done)
				return true, nil
			}
			if submitErr := r.sink.Submit(ev.input, ev.t); submitErr != nil {
				r.log.Debugf("downstream sink closed: %v", submitErr)
				close(done)
				return false, submitErr
			}

		case de := <-r.errs:
			r.log.Warnf("device %s dropped: %v", de.dev.Path, de.err)
			active--
			if active <= 0 {
				close(done)
				return false, errors.New("inputdevice: all devices disconnected")
			}
		}
	}
}

// readDevice polls dev for readability and parses its input_event
// stream, forwarding EV_KEY records into r.events. A transient,
// recoverable read error is retried (spec.md §7: "Transient I/O on
// read: log and re-try the read"); a non-recoverable error reports
// through r.errs and the goroutine exits, dropping the device.
func (r *Reader) readDevice(d *Device, done <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	parser := &inputParser{}
	buf := make([]byte, 4096)

	for {
		select {
		case <-done:
			return
		default:
		}

		pfd := []unix.PollFd{{Fd: int32(d.FD()), Events: unix.POLLIN}}
		n, perr := unix.Poll(pfd, 200)
		if perr != nil {
			if errors.Is(perr, unix.EINTR) {
				r.log.Debugf("device %s: poll interrupted, retrying: %v", d.Path, perr)
				continue
			}
			r.errs <- deviceError{dev: d, err: perr}
			return
		}
		if n == 0 || pfd[0].Revents&unix.POLLIN == 0 {
			continue
		}

		nread, rerr := d.Read(buf)
		if rerr != nil {
			if errors.Is(rerr, unix.EAGAIN) || errors.Is(rerr, unix.EWOULDBLOCK) {
				r.log.Debugf("device %s: transient read error, retrying: %v", d.Path, rerr)
				continue
			}
			r.errs <- deviceError{dev: d, err: rerr}
			return
		}
		if nread == 0 {
			continue
		}

		parser.feed(buf[:nread], func(etype uint16, code uint16, value int32, t time.Time) {
			if etype != evKey {
				return
			}
			in := layer.KeyInput{Key: keycodes.Key(code), Kind: layer.KindFromValue(value)}
			select {
			case r.events <- rawEvent{input: in, t: t}:
			case <-done:
			}
		})
	}
}
