package layer

import (
	"testing"

	"kiri/internal/keycodes"
)

type testState int

const (
	stBase testState = iota
	stShift
)

func TestCompile_DuplicateSingleRejected(t *testing.T) {
	cfg := Config[testState]{
		Name:         "dup-single",
		States:       []testState{stBase},
		InitialState: stBase,
		Singles: []SingleEntry[testState]{
			{Condition: stBase, Input: KeyInput{Key: keycodes.KeyA, Kind: Press}, Output: []KeyInput{{Key: keycodes.KeyB, Kind: Press}}, Transition: stBase},
			{Condition: stBase, Input: KeyInput{Key: keycodes.KeyA, Kind: Press}, Output: []KeyInput{{Key: keycodes.KeyC, Kind: Press}}, Transition: stBase},
		},
	}
	if _, err := compile(cfg); err == nil {
		t.Fatal("expected error for duplicate single entry, got nil")
	}
}

func TestCompile_DuplicatePairRejected(t *testing.T) {
	cfg := Config[testState]{
		Name:         "dup-pair",
		States:       []testState{stBase},
		InitialState: stBase,
		Pairs: []PairEntry[testState]{
			{Condition: stBase, Keys: [2]keycodes.Key{keycodes.KeyA, keycodes.KeyB}, Output: nil, Transition: stBase, ThresholdMS: 50},
			// Same unordered pair, keys reversed.
			{Condition: stBase, Keys: [2]keycodes.Key{keycodes.KeyB, keycodes.KeyA}, Output: nil, Transition: stBase, ThresholdMS: 50},
		},
	}
	if _, err := compile(cfg); err == nil {
		t.Fatal("expected error for duplicate pair entry, got nil")
	}
}

func TestCompile_EqualKeyPairRejected(t *testing.T) {
	cfg := Config[testState]{
		Name:         "equal-key-pair",
		States:       []testState{stBase},
		InitialState: stBase,
		Pairs: []PairEntry[testState]{
			{Condition: stBase, Keys: [2]keycodes.Key{keycodes.KeyA, keycodes.KeyA}, ThresholdMS: 50},
		},
	}
	if _, err := compile(cfg); err == nil {
		t.Fatal("expected error for pair entry with equal keys, got nil")
	}
}

func TestCompile_UnknownTransitionRejected(t *testing.T) {
	// States deliberately excludes testState(99): it is not a member of
	// the layer's declared finite state set, so referencing it as a
	// transition must be a genuine rejection, not a self-derived no-op.
	cfg := Config[testState]{
		Name:         "unknown-state",
		States:       []testState{stBase},
		InitialState: stBase,
		Singles: []SingleEntry[testState]{
			{Condition: stBase, Input: KeyInput{Key: keycodes.KeyA, Kind: Press}, Transition: testState(99)},
		},
	}
	if _, err := compile(cfg); err == nil {
		t.Fatal("expected error for unknown transition state, got nil")
	}
}

func TestCompile_ValidConfigDerivesMaxThreshold(t *testing.T) {
	cfg := Config[testState]{
		Name:         "thresholds",
		States:       []testState{stBase, stShift},
		InitialState: stBase,
		Pairs: []PairEntry[testState]{
			{Condition: stBase, Keys: [2]keycodes.Key{keycodes.KeyA, keycodes.KeyB}, Transition: stBase, ThresholdMS: 30},
			{Condition: stBase, Keys: [2]keycodes.Key{keycodes.KeyC, keycodes.KeyD}, Transition: stShift, ThresholdMS: 80},
		},
	}
	c, err := compile(cfg)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if c.maxThresholdMS != 80 {
		t.Errorf("maxThresholdMS = %d, want 80", c.maxThresholdMS)
	}
	if !c.pairFirstKeys[pairFirstKey[testState]{key: keycodes.KeyA, state: stBase}] {
		t.Error("keyA not registered as a pair-first key under stBase")
	}
	if !c.pairFirstKeys[pairFirstKey[testState]{key: keycodes.KeyB, state: stBase}] {
		t.Error("keyB not registered as a pair-first key under stBase")
	}
}
