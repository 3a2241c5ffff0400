package layer

import (
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrEngineClosed is returned by Submit once the engine has processed
// its close message; the caller (an upstream engine, or the Input
// Reader for layer 0) should treat it as ordinary shutdown (spec.md
// §7: "Downstream sink closed: treat as shutdown; propagate upstream").
var ErrEngineClosed = errors.New("layer: engine closed")

// Sink is the single-method abstraction every layer (and the terminal
// Output Writer) implements. Any polymorphic mechanism is acceptable
// per spec.md §9 as long as calls are ordered; Engine enforces that
// ordering by serializing its own inbox.
type Sink interface {
	Submit(input KeyInput, t time.Time) error
}

// closer is implemented by sinks that own a resource to release on
// shutdown (the Output Writer's virtual device handle, or a
// downstream Engine). Detected via type assertion, not required.
type closer interface {
	Close() error
}

type msgKind int

const (
	msgInput msgKind = iota
	msgFlush
	msgClose
)

type message[S comparable] struct {
	kind  msgKind
	input KeyInput
	key   Key
	t     time.Time
}

// pendingEntry is the at-most-one press a layer holds while awaiting a
// possible pair match (spec.md §3 "pending: Option<(Key, Timestamp)>").
type pendingEntry struct {
	key Key
	t   time.Time
}

// Engine is the per-layer stateful rewriter described in spec.md §4.1:
// constructed from one Config plus a downstream Sink, exposing a
// single Submit operation, consuming its inbox strictly serially so
// that outputs respect input arrival order.
//
// All mutable state (state, pending) is exclusively owned by the
// goroutine started in NewEngine; nothing outside that goroutine ever
// touches it, matching spec.md §3's Lifecycle invariant and §9's "this
// preserves single-owner state without locks."
type Engine[S comparable] struct {
	cfg Config[S]
	c   *compiled[S]
	sink Sink
	log  logrus.FieldLogger

	inbox chan message[S]
	done  chan struct{}

	state   S
	pending *pendingEntry
}

// NewEngine compiles cfg (validating its invariants per spec.md §3)
// and starts the engine's serial processing goroutine. log may be nil,
// in which case a discarding logger is used.
func NewEngine[S comparable](cfg Config[S], sink Sink, log logrus.FieldLogger) (*Engine[S], error) {
	c, err := compile(cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	e := &Engine[S]{
		cfg:   cfg,
		c:     c,
		sink:  sink,
		log:   log.WithField("layer", cfg.Name),
		inbox: make(chan message[S], 64),
		done:  make(chan struct{}),
		state: cfg.InitialState,
	}
	go e.run()
	return e, nil
}

// Submit enqueues (input, t) for processing in arrival order. It is
// the engine's entire public contract beyond construction and Close.
func (e *Engine[S]) Submit(input KeyInput, t time.Time) error {
	select {
	case <-e.done:
		return ErrEngineClosed
	default:
	}
	select {
	case e.inbox <- message[S]{kind: msgInput, input: input, t: t}:
		return nil
	case <-e.done:
		return ErrEngineClosed
	}
}

// Close requests graceful shutdown: the engine finishes any message
// already in flight, flushes a pending key via the ordinary flush
// path, closes its downstream sink if it is a closer, then exits.
// Close blocks until the engine's goroutine has exited.
func (e *Engine[S]) Close() error {
	select {
	case e.inbox <- message[S]{kind: msgClose}:
	case <-e.done:
	}
	<-e.done
	return nil
}

func (e *Engine[S]) run() {
	defer close(e.done)
	for {
		m := <-e.inbox
		switch m.kind {
		case msgInput:
			if !e.handleInput(m.input, m.t) {
				return
			}
		case msgFlush:
			if !e.handleFlush(m.key, m.t) {
				return
			}
		case msgClose:
			e.flushPending()
			if cl, ok := e.sink.(closer); ok {
				if err := cl.Close(); err != nil {
					e.log.Warnf("closing downstream sink: %v", err)
				}
			}
			return
		}
	}
}

// handleInput implements spec.md §4.1 rules 1 and 2. Returns false if
// a downstream emission failed and the engine should terminate.
func (e *Engine[S]) handleInput(in KeyInput, t time.Time) bool {
	if in.Kind == Press && e.c.pairFirstKeys[pairFirstKey[S]{key: in.Key, state: e.state}] {
		if e.pending == nil {
			e.pending = &pendingEntry{key: in.Key, t: t}
			e.scheduleFlush(in.Key, t)
			return true
		}

		prev := *e.pending
		a, b := canonicalPair(prev.key, in.Key)
		pk := pairKey[S]{cond: e.state, a: a, b: b}
		if cp, ok := e.c.pairMap[pk]; ok && t.Sub(prev.t) <= time.Duration(cp.thresholdMS)*time.Millisecond {
			e.pending = nil
			return e.applyAction(cp.action, t)
		}

		// No pair materialized: flush the pending key as a standalone
		// press, then this press becomes the new pending.
		e.pending = nil
		if !e.dispatch(KeyInput{Key: prev.key, Kind: Press}, prev.t) {
			return false
		}
		e.pending = &pendingEntry{key: in.Key, t: t}
		e.scheduleFlush(in.Key, t)
		return true
	}

	if !e.flushPending() {
		return false
	}
	return e.dispatch(in, t)
}

// handleFlush implements spec.md §4.1 rule 3: Flush races with a real
// pair match are resolved by comparing both key and timestamp against
// the current pending entry.
func (e *Engine[S]) handleFlush(k Key, t time.Time) bool {
	if e.pending == nil || e.pending.key != k || !e.pending.t.Equal(t) {
		return true // stale timer, pending already consumed
	}
	e.pending = nil
	return e.dispatch(KeyInput{Key: k, Kind: Press}, t)
}

// flushPending dispatches a held pending key as a standalone press, if
// any. Used both by rule 2 (non-pair-starting event arrives) and by
// Close's drain path.
func (e *Engine[S]) flushPending() bool {
	if e.pending == nil {
		return true
	}
	p := *e.pending
	e.pending = nil
	return e.dispatch(KeyInput{Key: p.key, Kind: Press}, p.t)
}

// dispatch implements spec.md §4.1 rule 4: a fully-decided key is
// rewritten via single_map, or emitted verbatim if unmapped.
func (e *Engine[S]) dispatch(in KeyInput, t time.Time) bool {
	if act, ok := e.c.singleMap[singleKey[S]{cond: e.state, input: in}]; ok {
		return e.applyAction(act, t)
	}
	return e.emit([]KeyInput{in}, t)
}

func (e *Engine[S]) applyAction(act compiledAction[S], t time.Time) bool {
	if !e.emit(act.output, t) {
		return false
	}
	e.transition(act.transition)
	return true
}

func (e *Engine[S]) emit(outputs []KeyInput, t time.Time) bool {
	for _, o := range outputs {
		if err := e.sink.Submit(o, t); err != nil {
			e.log.Debugf("downstream sink closed, stopping: %v", err)
			return false
		}
	}
	return true
}

// transition moves to newState, logging at debug level only when it
// actually changes (spec.md §4.1: "Transition equal to current state
// is not logged").
func (e *Engine[S]) transition(newState S) {
	if newState == e.state {
		return
	}
	e.log.Debugf("state %v -> %v", e.state, newState)
	e.state = newState
}

// scheduleFlush arms the uniform per-layer Flush timer for key/t. The
// timer never touches engine state directly (spec.md §9): it only
// posts a Flush message back into this engine's own inbox.
func (e *Engine[S]) scheduleFlush(k Key, t time.Time) {
	d := time.Duration(e.c.maxThresholdMS) * time.Millisecond
	time.AfterFunc(d, func() {
		select {
		case e.inbox <- message[S]{kind: msgFlush, key: k, t: t}:
		case <-e.done:
		}
	})
}
