package layer

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Pipeline chains N layer engines head-to-tail (spec.md §4.2): layer
// i's output is layer i+1's input, each layer owns its own FSM state,
// and submitting to the pipeline forwards to layer 0.
//
// Construction proceeds bottom-up (the terminal sink is built first),
// matching the teacher's RunBridgeForever composition order and
// spec.md §9's "per-layer task that holds only a sink handle to the
// next stage" — there is no cyclic reference anywhere in the chain.
type Pipeline struct {
	head       Sink
	headCloser closer
}

// NewPipeline builds one Engine per cfg in order, wiring layer i's
// sink to layer i+1's Engine, and the last layer's sink to terminal.
// cfgs must be non-empty (spec.md §3: Pipeline is "an ordered,
// non-empty list of LayerConfigs").
//
// NewPipeline covers the common case where every layer shares one
// LayerState type S; NewPipelineFrom covers a chain of heterogeneous
// per-layer state types assembled by the caller.
func NewPipeline[S comparable](cfgs []Config[S], terminal Sink, log logrus.FieldLogger) (*Pipeline, error) {
	if len(cfgs) == 0 {
		return nil, &ConfigError{Layer: "<pipeline>", Msg: "pipeline must have at least one layer"}
	}

	sink := terminal
	var head *Engine[S]
	for i := len(cfgs) - 1; i >= 0; i-- {
		eng, err := NewEngine(cfgs[i], sink, log)
		if err != nil {
			return nil, err
		}
		sink = eng
		head = eng
	}
	return &Pipeline{head: head, headCloser: head}, nil
}

// NewPipelineFrom assembles a Pipeline from a chain of engines the
// caller has already wired head-to-tail (e.g. because adjacent layers
// use different LayerState types, which NewPipeline's single type
// parameter can't express): head receives raw input and, once closed,
// cascades the close downstream through each engine's own sink.
func NewPipelineFrom(head Sink) *Pipeline {
	cl, _ := head.(closer)
	return &Pipeline{head: head, headCloser: cl}
}

// Submit forwards to layer 0.
func (p *Pipeline) Submit(input KeyInput, t time.Time) error {
	return p.head.Submit(input, t)
}

// Close shuts the pipeline down head-first: the head engine drains
// its own pending key, then closes its downstream sink, cascading all
// the way to the terminal Output Writer.
func (p *Pipeline) Close() error {
	if p.headCloser == nil {
		return nil
	}
	return p.headCloser.Close()
}
