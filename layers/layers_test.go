package layers

import (
	"testing"
	"time"

	"kiri/internal/keycodes"
	"kiri/internal/layer"
)

type fakeSink struct {
	events chan layer.KeyInput
}

func newFakeSink() *fakeSink { return &fakeSink{events: make(chan layer.KeyInput, 64)} }

func (f *fakeSink) Submit(input layer.KeyInput, t time.Time) error {
	f.events <- input
	return nil
}

func (f *fakeSink) expectNext(t *testing.T, want layer.KeyInput) {
	t.Helper()
	select {
	case got := <-f.events:
		if got != want {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %+v", want)
	}
}

func TestDefaultPipeline_CapsLockRemapsToControl(t *testing.T) {
	sink := newFakeSink()
	p, err := layer.NewPipeline(Default(), sink, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.Close()

	now := time.Now()
	if err := p.Submit(press(keycodes.KeyCapsLock), now); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	sink.expectNext(t, press(keycodes.KeyLeftCtrl))
}

func TestDefaultPipeline_VimLeaderChord(t *testing.T) {
	sink := newFakeSink()
	p, err := layer.NewPipeline(Default(), sink, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.Close()

	t0 := time.Now()
	if err := p.Submit(press(keycodes.KeyJ), t0); err != nil {
		t.Fatalf("Submit J: %v", err)
	}
	if err := p.Submit(press(keycodes.KeyK), t0.Add(10*time.Millisecond)); err != nil {
		t.Fatalf("Submit K: %v", err)
	}
	// The chord itself emits nothing; the next key selects a direction.
	if err := p.Submit(press(keycodes.KeyL), t0.Add(20*time.Millisecond)); err != nil {
		t.Fatalf("Submit L: %v", err)
	}
	sink.expectNext(t, press(keycodes.KeyRight))
	sink.expectNext(t, release(keycodes.KeyRight))
}

func TestDefaultPipeline_UnmappedKeyPassesThroughBothLayers(t *testing.T) {
	sink := newFakeSink()
	p, err := layer.NewPipeline(Default(), sink, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.Close()

	in := press(keycodes.KeyQ)
	if err := p.Submit(in, time.Now()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	sink.expectNext(t, in)
}
