package layer

import (
	"testing"
	"time"

	"kiri/internal/keycodes"
)

// recordingSink captures every submitted event on a channel so tests
// can wait for emissions instead of racing the engine's goroutine with
// a sleep.
type recordingSink struct {
	events  chan KeyInput
	closed  chan struct{}
	failAll bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan KeyInput, 64), closed: make(chan struct{})}
}

func (s *recordingSink) Submit(input KeyInput, t time.Time) error {
	if s.failAll {
		return ErrEngineClosed
	}
	s.events <- input
	return nil
}

func (s *recordingSink) Close() error {
	close(s.closed)
	return nil
}

func (s *recordingSink) expectNext(t *testing.T, want KeyInput) {
	t.Helper()
	select {
	case got := <-s.events:
		if got != want {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %+v", want)
	}
}

func (s *recordingSink) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case got := <-s.events:
		t.Fatalf("expected no event, got %+v", got)
	case <-time.After(wait):
	}
}

func pressA() KeyInput { return KeyInput{Key: keycodes.KeyA, Kind: Press} }
func pressB() KeyInput { return KeyInput{Key: keycodes.KeyB, Kind: Press} }
func pressX() KeyInput { return KeyInput{Key: keycodes.KeyX, Kind: Press} }

func TestEngine_PlainSingleRemap(t *testing.T) {
	cfg := Config[testState]{
		Name:         "remap",
		States:       []testState{stBase},
		InitialState: stBase,
		Singles: []SingleEntry[testState]{
			{Condition: stBase, Input: pressA(), Output: []KeyInput{pressX()}, Transition: stBase},
		},
	}
	sink := newRecordingSink()
	e, err := NewEngine(cfg, sink, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	now := time.Now()
	if err := e.Submit(pressA(), now); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	sink.expectNext(t, pressX())
}

func TestEngine_UnmappedKeyPassesThrough(t *testing.T) {
	cfg := Config[testState]{Name: "passthrough", States: []testState{stBase}, InitialState: stBase}
	sink := newRecordingSink()
	e, err := NewEngine(cfg, sink, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	in := KeyInput{Key: keycodes.KeyQ, Kind: Press}
	if err := e.Submit(in, time.Now()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	sink.expectNext(t, in)
}

func TestEngine_PairWithinThreshold(t *testing.T) {
	out := KeyInput{Key: keycodes.KeyLeftShift, Kind: Press}
	cfg := Config[testState]{
		Name:         "chord",
		States:       []testState{stBase},
		InitialState: stBase,
		Pairs: []PairEntry[testState]{
			{Condition: stBase, Keys: [2]keycodes.Key{keycodes.KeyA, keycodes.KeyB}, Output: []KeyInput{out}, Transition: stBase, ThresholdMS: 50},
		},
	}
	sink := newRecordingSink()
	e, err := NewEngine(cfg, sink, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	t0 := time.Now()
	if err := e.Submit(pressA(), t0); err != nil {
		t.Fatalf("Submit A: %v", err)
	}
	if err := e.Submit(pressB(), t0.Add(10*time.Millisecond)); err != nil {
		t.Fatalf("Submit B: %v", err)
	}
	sink.expectNext(t, out)
	// No leftover standalone A or B should surface once the flush timer
	// would otherwise have fired.
	sink.expectNone(t, 80*time.Millisecond)
}

func TestEngine_PairExceedsThreshold(t *testing.T) {
	out := KeyInput{Key: keycodes.KeyLeftShift, Kind: Press}
	cfg := Config[testState]{
		Name:         "chord",
		States:       []testState{stBase},
		InitialState: stBase,
		Pairs: []PairEntry[testState]{
			{Condition: stBase, Keys: [2]keycodes.Key{keycodes.KeyA, keycodes.KeyB}, Output: []KeyInput{out}, Transition: stBase, ThresholdMS: 20},
		},
	}
	sink := newRecordingSink()
	e, err := NewEngine(cfg, sink, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	t0 := time.Now()
	if err := e.Submit(pressA(), t0); err != nil {
		t.Fatalf("Submit A: %v", err)
	}
	// B arrives long after the pair's threshold: A flushes immediately
	// as a standalone press, and B becomes the new pending key.
	if err := e.Submit(pressB(), t0.Add(50*time.Millisecond)); err != nil {
		t.Fatalf("Submit B: %v", err)
	}
	sink.expectNext(t, pressA())
	sink.expectNext(t, pressB())
}

func TestEngine_InterleavedNonPairKeyFlushesPending(t *testing.T) {
	out := KeyInput{Key: keycodes.KeyLeftShift, Kind: Press}
	cfg := Config[testState]{
		Name:         "chord",
		States:       []testState{stBase},
		InitialState: stBase,
		Pairs: []PairEntry[testState]{
			{Condition: stBase, Keys: [2]keycodes.Key{keycodes.KeyA, keycodes.KeyB}, Output: []KeyInput{out}, Transition: stBase, ThresholdMS: 50},
		},
	}
	sink := newRecordingSink()
	e, err := NewEngine(cfg, sink, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	t0 := time.Now()
	other := KeyInput{Key: keycodes.KeyC, Kind: Press}
	if err := e.Submit(pressA(), t0); err != nil {
		t.Fatalf("Submit A: %v", err)
	}
	if err := e.Submit(other, t0.Add(5*time.Millisecond)); err != nil {
		t.Fatalf("Submit C: %v", err)
	}
	sink.expectNext(t, pressA())
	sink.expectNext(t, other)
}

func TestEngine_FlushRaceIsResolvedByTimestamp(t *testing.T) {
	out := KeyInput{Key: keycodes.KeyLeftShift, Kind: Press}
	cfg := Config[testState]{
		Name:         "chord",
		States:       []testState{stBase},
		InitialState: stBase,
		Pairs: []PairEntry[testState]{
			{Condition: stBase, Keys: [2]keycodes.Key{keycodes.KeyA, keycodes.KeyB}, Output: []KeyInput{out}, Transition: stBase, ThresholdMS: 60},
		},
	}
	sink := newRecordingSink()
	e, err := NewEngine(cfg, sink, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	t0 := time.Now()
	if err := e.Submit(pressA(), t0); err != nil {
		t.Fatalf("Submit A: %v", err)
	}
	// B matches the pair well inside the threshold, shortly before the
	// Flush timer armed for A would otherwise fire.
	if err := e.Submit(pressB(), t0.Add(10*time.Millisecond)); err != nil {
		t.Fatalf("Submit B: %v", err)
	}
	sink.expectNext(t, out)
	// Wait past the original Flush deadline: it must be recognized as
	// stale (pending already consumed) and emit nothing extra.
	sink.expectNone(t, 100*time.Millisecond)
}

func TestEngine_FlushEmitsStandalonePressAfterThreshold(t *testing.T) {
	cfg := Config[testState]{
		Name:         "chord",
		States:       []testState{stBase},
		InitialState: stBase,
		Pairs: []PairEntry[testState]{
			{Condition: stBase, Keys: [2]keycodes.Key{keycodes.KeyA, keycodes.KeyB}, Output: []KeyInput{{Key: keycodes.KeyLeftShift, Kind: Press}}, Transition: stBase, ThresholdMS: 20},
		},
	}
	sink := newRecordingSink()
	e, err := NewEngine(cfg, sink, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	if err := e.Submit(pressA(), time.Now()); err != nil {
		t.Fatalf("Submit A: %v", err)
	}
	sink.expectNext(t, pressA())
}

func TestEngine_CloseDrainsPendingAndClosesDownstream(t *testing.T) {
	cfg := Config[testState]{
		Name:         "chord",
		States:       []testState{stBase},
		InitialState: stBase,
		Pairs: []PairEntry[testState]{
			{Condition: stBase, Keys: [2]keycodes.Key{keycodes.KeyA, keycodes.KeyB}, Output: []KeyInput{{Key: keycodes.KeyLeftShift, Kind: Press}}, Transition: stBase, ThresholdMS: 500},
		},
	}
	sink := newRecordingSink()
	e, err := NewEngine(cfg, sink, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if err := e.Submit(pressA(), time.Now()); err != nil {
		t.Fatalf("Submit A: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	sink.expectNext(t, pressA())
	select {
	case <-sink.closed:
	case <-time.After(time.Second):
		t.Fatal("downstream sink was never closed")
	}

	if err := e.Submit(pressA(), time.Now()); err != ErrEngineClosed {
		t.Fatalf("Submit after Close: got %v, want ErrEngineClosed", err)
	}
}
