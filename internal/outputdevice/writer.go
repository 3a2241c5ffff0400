package outputdevice

import (
	"time"

	"github.com/sirupsen/logrus"

	"kiri/internal/layer"
)

// interEventDelay is the fixed pause between consecutive emissions
// spec.md §4.4 calls for ("≈5 ms ... to tolerate downstream consumers
// that drop bursts"), grounded on bnema-uinputd-go's SendKey
// press+syn+release+syn sequencing pattern.
const interEventDelay = 5 * time.Millisecond

// Writer is the pipeline's terminal sink: it implements layer.Sink
// and writes one key event to the virtual device per Submit call,
// the only place in the pipeline that blocks on output I/O.
type Writer struct {
	dev *VirtualKeyboard
	log logrus.FieldLogger

	wrote bool
}

// NewWriter wraps an already-created VirtualKeyboard as a layer.Sink.
func NewWriter(dev *VirtualKeyboard, log logrus.FieldLogger) *Writer {
	return &Writer{dev: dev, log: log}
}

// Submit writes a single press (value 1) or release (value 0) event,
// per spec.md §4.4; t is accepted for interface conformance but not
// itself written (the kernel stamps its own event time on write).
func (w *Writer) Submit(input layer.KeyInput, t time.Time) error {
	if w.wrote {
		time.Sleep(interEventDelay)
	}
	value := int32(1)
	if input.Kind == layer.Release {
		value = 0
	}
	if err := w.dev.EmitKey(uint16(input.Key), value); err != nil {
		w.log.Errorf("writing %v %v to virtual device: %v", input.Key, input.Kind, err)
		return err
	}
	w.wrote = true
	return nil
}

// Close destroys the virtual device, completing the pipeline's
// cascading shutdown (spec.md §5).
func (w *Writer) Close() error {
	return w.dev.Close()
}
