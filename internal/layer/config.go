package layer

import "fmt"

// SingleEntry rewrites one inbound KeyInput to an output sequence and
// an optional state transition. A transition equal to the entry's
// condition is a no-op (spec.md §3).
type SingleEntry[S comparable] struct {
	Condition  S
	Input      KeyInput
	Output     []KeyInput
	Transition S
}

// PairEntry matches two Press events for two distinct keys arriving,
// in either order, within ThresholdMS of each other while the layer
// is in Condition.
type PairEntry[S comparable] struct {
	Condition  S
	Keys       [2]Key
	Output     []KeyInput
	Transition S
	ThresholdMS uint32
}

// Config is the declarative content of one remap layer: its name, its
// finite state set, its initial state, and its singles/pairs rule
// sets. Layer content is static data assembled before start (spec.md
// §1 Non-goals) — Config values are immutable once constructed.
//
// States enumerates the layer author's complete, finite state set
// (spec.md §3 "the set of admissible states is finite and enumerated
// by the layer's author"); every Condition and Transition referenced
// by Singles/Pairs, and InitialState itself, must appear in it. This
// is the independent ground truth compile validates references
// against — it is never derived from the entries being validated.
type Config[S comparable] struct {
	Name         string
	States       []S
	InitialState S
	Singles      []SingleEntry[S]
	Pairs        []PairEntry[S]
}

// ConfigError reports a configuration invariant violation detected at
// construction time (spec.md §7: refuse to construct, report the
// offending entry, exit 1 at the call site).
type ConfigError struct {
	Layer string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("layer %q: %s", e.Layer, e.Msg)
}

type singleKey[S comparable] struct {
	cond  S
	input KeyInput
}

type pairKey[S comparable] struct {
	cond S
	a, b Key
}

func canonicalPair(k1, k2 Key) (Key, Key) {
	if k1 <= k2 {
		return k1, k2
	}
	return k2, k1
}

// compiled is the set of derived indexes built once at Engine
// construction (spec.md §4.1 "Internal state / Derived indexes").
type compiled[S comparable] struct {
	states map[S]bool

	singleMap map[singleKey[S]]compiledAction[S]
	pairMap   map[pairKey[S]]compiledPair[S]

	pairFirstKeys map[pairFirstKey[S]]bool

	maxThresholdMS uint32
}

type pairFirstKey[S comparable] struct {
	key   Key
	state S
}

type compiledAction[S comparable] struct {
	output     []KeyInput
	transition S
}

type compiledPair[S comparable] struct {
	action      compiledAction[S]
	thresholdMS uint32
}

// compile validates Config's invariants (spec.md §3) and builds the
// lookup structures spec.md §4.1 names. It is the generalization of
// the original's KeyRecorder::new (read_keys.rs), which builds
// equivalent maps from a flat key_config slice but performs no
// duplicate/validity checking — spec.md §3 requires rejecting
// duplicates at construction, so that checking is new here.
func compile[S comparable](cfg Config[S]) (*compiled[S], error) {
	states := make(map[S]bool, len(cfg.States))
	for _, s := range cfg.States {
		states[s] = true
	}
	if !states[cfg.InitialState] {
		return nil, &ConfigError{Layer: cfg.Name, Msg: fmt.Sprintf(
			"initial state %v is not in the declared state set", cfg.InitialState)}
	}
	for _, s := range cfg.Singles {
		if !states[s.Condition] || !states[s.Transition] {
			return nil, &ConfigError{Layer: cfg.Name, Msg: fmt.Sprintf(
				"single entry references an unknown state (condition=%v transition=%v)", s.Condition, s.Transition)}
		}
	}
	for _, p := range cfg.Pairs {
		if !states[p.Condition] || !states[p.Transition] {
			return nil, &ConfigError{Layer: cfg.Name, Msg: fmt.Sprintf(
				"pair entry references an unknown state (condition=%v transition=%v)", p.Condition, p.Transition)}
		}
	}

	c := &compiled[S]{
		states:        states,
		singleMap:     make(map[singleKey[S]]compiledAction[S], len(cfg.Singles)),
		pairMap:       make(map[pairKey[S]]compiledPair[S], len(cfg.Pairs)),
		pairFirstKeys: make(map[pairFirstKey[S]]bool),
	}

	for _, s := range cfg.Singles {
		key := singleKey[S]{cond: s.Condition, input: s.Input}
		if _, dup := c.singleMap[key]; dup {
			return nil, &ConfigError{Layer: cfg.Name, Msg: fmt.Sprintf(
				"duplicate single entry for condition=%v input=%v", s.Condition, s.Input)}
		}
		c.singleMap[key] = compiledAction[S]{output: s.Output, transition: s.Transition}
	}

	for _, p := range cfg.Pairs {
		if p.Keys[0] == p.Keys[1] {
			return nil, &ConfigError{Layer: cfg.Name, Msg: fmt.Sprintf(
				"pair entry has equal keys: %v", p.Keys[0])}
		}
		a, b := canonicalPair(p.Keys[0], p.Keys[1])
		key := pairKey[S]{cond: p.Condition, a: a, b: b}
		if _, dup := c.pairMap[key]; dup {
			return nil, &ConfigError{Layer: cfg.Name, Msg: fmt.Sprintf(
				"duplicate pair entry for condition=%v keys={%v,%v}", p.Condition, a, b)}
		}
		c.pairMap[key] = compiledPair[S]{
			action:      compiledAction[S]{output: p.Output, transition: p.Transition},
			thresholdMS: p.ThresholdMS,
		}
		if p.ThresholdMS > c.maxThresholdMS {
			c.maxThresholdMS = p.ThresholdMS
		}
		c.pairFirstKeys[pairFirstKey[S]{key: p.Keys[0], state: p.Condition}] = true
		c.pairFirstKeys[pairFirstKey[S]{key: p.Keys[1], state: p.Condition}] = true
	}

	return c, nil
}
