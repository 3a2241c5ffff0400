// Package layer implements the chord-and-state remap engine: the
// data model of a single layer, its pair-detection/dispatch
// algorithm, and the composition of many layers into a pipeline.
package layer

import (
	"time"

	"kiri/internal/keycodes"
)

// Key identifies a physical or virtual keyboard key.
type Key = keycodes.Key

// Kind is the direction of a key transition.
type Kind int

const (
	Press Kind = iota
	Release
)

func (k Kind) String() string {
	if k == Press {
		return "press"
	}
	return "release"
}

// KindFromValue normalizes a raw kernel event value (0=release,
// 1=press, 2=auto-repeat) to a Kind. Auto-repeat is folded into Press:
// the engine never distinguishes first-press from repeat.
func KindFromValue(value int32) Kind {
	if value == 0 {
		return Release
	}
	return Press
}

// KeyInput is a key paired with its press/release direction.
type KeyInput struct {
	Key  Key
	Kind Kind
}

// TimedKeyInput is a KeyInput tagged with the time it was observed.
type TimedKeyInput struct {
	Input KeyInput
	Time  time.Time
}
