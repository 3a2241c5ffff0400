// Package layers holds example, statically-assembled layer.Config
// values: the declarative content spec.md §1 treats as call-site data
// out of scope for the core engine. Plays the role of the reference
// implementation's large inline keymap tables, scaled down to a
// reviewable example.
package layers

import (
	"kiri/internal/keycodes"
	"kiri/internal/layer"
)

// State is the shared LayerState for every layer in Default: a single
// enum is enough for this example set, though spec.md §9 notes a
// layer's state can be any comparable struct/tuple when richer
// composition is needed.
type State int

const (
	StateBase State = iota
	// StateLeader is entered by the Vim-style chord in Leader and left
	// by whichever single-key navigation entry fires next.
	StateLeader
)

// press/release shorthands for building Output slices tersely.
func press(k keycodes.Key) layer.KeyInput   { return layer.KeyInput{Key: k, Kind: layer.Press} }
func release(k keycodes.Key) layer.KeyInput { return layer.KeyInput{Key: k, Kind: layer.Release} }

// CapsLockToControl remaps the physical Caps Lock key to Left Ctrl,
// a common ergonomic remap. It never changes state.
func CapsLockToControl() layer.Config[State] {
	return layer.Config[State]{
		Name:         "capslock-to-control",
		States:       []State{StateBase},
		InitialState: StateBase,
		Singles: []layer.SingleEntry[State]{
			{Condition: StateBase, Input: press(keycodes.KeyCapsLock), Output: []layer.KeyInput{press(keycodes.KeyLeftCtrl)}, Transition: StateBase},
			{Condition: StateBase, Input: release(keycodes.KeyCapsLock), Output: []layer.KeyInput{release(keycodes.KeyLeftCtrl)}, Transition: StateBase},
		},
	}
}

// VimLeader is a two-key chord "leader" layer: pressing J and K
// together within 50ms enters StateLeader without emitting anything;
// the next H/J/K/L press is consumed as an arrow key and the layer
// returns to StateBase, a one-shot modal navigation chord.
func VimLeader() layer.Config[State] {
	return layer.Config[State]{
		Name:         "vim-leader",
		States:       []State{StateBase, StateLeader},
		InitialState: StateBase,
		Pairs: []layer.PairEntry[State]{
			{
				Condition:   StateBase,
				Keys:        [2]keycodes.Key{keycodes.KeyJ, keycodes.KeyK},
				Output:      nil,
				Transition:  StateLeader,
				ThresholdMS: 50,
			},
		},
		Singles: []layer.SingleEntry[State]{
			{Condition: StateLeader, Input: press(keycodes.KeyH), Output: []layer.KeyInput{press(keycodes.KeyLeft), release(keycodes.KeyLeft)}, Transition: StateBase},
			{Condition: StateLeader, Input: press(keycodes.KeyJ), Output: []layer.KeyInput{press(keycodes.KeyDown), release(keycodes.KeyDown)}, Transition: StateBase},
			{Condition: StateLeader, Input: press(keycodes.KeyK), Output: []layer.KeyInput{press(keycodes.KeyUp), release(keycodes.KeyUp)}, Transition: StateBase},
			{Condition: StateLeader, Input: press(keycodes.KeyL), Output: []layer.KeyInput{press(keycodes.KeyRight), release(keycodes.KeyRight)}, Transition: StateBase},
		},
	}
}

// Default is the pipeline order shipped by cmd/kiri: the Caps Lock
// remap runs first, feeding the Vim leader chord.
func Default() []layer.Config[State] {
	return []layer.Config[State]{CapsLockToControl(), VimLeader()}
}
