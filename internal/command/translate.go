package command

import (
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/chabad360/scbridge/internal/registry"
	"github.com/chabad360/scbridge/osc"
)

// SamplerSynth is the synth every PlaySample voice is created on.
const SamplerSynth = "sampler"

// Engine wire addresses.
const (
	AddrSynthNew = "/s_new"
	AddrNodeSet  = "/n_set"
	AddrNodeFree = "/n_free"
)

// Timed is a wire message due Time units after the start of its batch:
// seconds on the live path, beats when rendering offline.
type Timed struct {
	Time    float64
	Message *osc.Message

	// Node is the handle the message addresses.
	Node int32
	// Release marks the message that ends a voice.
	Release bool
}

// SampleResolver maps a play request to an engine buffer.
type SampleResolver interface {
	Buffer(pack string, index int, category string) int32
}

// Env is what translation needs from the session.
type Env struct {
	Nodes   registry.Index
	Samples SampleResolver

	// Base is added to every produced time.
	Base float64

	// BPM converts gate times from beats to seconds. Zero keeps beats.
	BPM float64

	Logger *slog.Logger
}

func (env Env) logger() *slog.Logger {
	if env.Logger != nil {
		return env.Logger
	}
	return slog.Default()
}

// gate converts a gate time in beats to the unit of the timeline.
func (env Env) gate(beats float64) float64 {
	if env.BPM <= 0 {
		return beats
	}
	return beats * 60 / env.BPM
}

// Voice is a command that produces engine wire messages.
type Voice interface {
	Command
	// Translate assigns or resolves node handles in env.Nodes and returns
	// the resulting wire messages.
	Translate(env Env) ([]Timed, error)
	// DelayFloor is the caller-requested delay before the first message.
	DelayFloor() time.Duration
}

var (
	_ Voice = NoteOnTimed{}
	_ Voice = NoteOn{}
	_ Voice = NoteModify{}
	_ Voice = PlaySample{}
)

func (c NoteOnTimed) DelayFloor() time.Duration { return c.Delay }
func (c NoteOn) DelayFloor() time.Duration      { return c.Delay }
func (c NoteModify) DelayFloor() time.Duration  { return c.Delay }
func (c PlaySample) DelayFloor() time.Duration  { return c.Delay }

// Translate emits the voice creation at Base and its release GateTime
// later.
func (c NoteOnTimed) Translate(env Env) ([]Timed, error) {
	node, err := env.Nodes.Assign(c.ExternalID)
	if err != nil {
		return nil, errors.Wrap(err, AddrNoteOnTimed)
	}
	return []Timed{
		{Time: env.Base, Message: SynthNew(c.Synth, node, c.Args), Node: node},
		{Time: env.Base + env.gate(c.GateTime), Message: Release(node), Node: node, Release: true},
	}, nil
}

// Translate emits the voice creation at Base.
func (c NoteOn) Translate(env Env) ([]Timed, error) {
	node, err := env.Nodes.Assign(c.ExternalID)
	if err != nil {
		return nil, errors.Wrap(err, AddrNoteOn)
	}
	return []Timed{{Time: env.Base, Message: SynthNew(c.Synth, node, c.Args), Node: node}}, nil
}

// Translate emits one parameter change per voice matching Pattern. No
// match is not an error.
func (c NoteModify) Translate(env Env) ([]Timed, error) {
	nodes := env.Nodes.Search(c.Pattern)
	if len(nodes) == 0 {
		env.logger().Debug("no voices match", "address", AddrNoteModify, "pattern", c.Pattern)
	}
	out := make([]Timed, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, Timed{Time: env.Base, Message: NodeSet(node, c.Args), Node: node})
	}
	return out, nil
}

// Translate resolves the buffer, appends it as "buf" and emits a sampler
// voice creation at Base.
func (c PlaySample) Translate(env Env) ([]Timed, error) {
	var buf int32
	if env.Samples != nil {
		buf = env.Samples.Buffer(c.Pack, c.Index, c.Category)
	}

	if HasArg(c.Args, "buf") {
		env.logger().Warn("play request sets buf itself, the resolved buffer wins",
			"address", AddrPlaySample, "node", c.ExternalID, "buffer", buf)
	}
	args := make([]interface{}, 0, len(c.Args)+2)
	args = append(args, c.Args...)
	args = append(args, "buf", buf)

	node, err := env.Nodes.Assign(c.ExternalID)
	if err != nil {
		return nil, errors.Wrap(err, AddrPlaySample)
	}
	return []Timed{{Time: env.Base, Message: SynthNew(SamplerSynth, node, args), Node: node}}, nil
}

// SynthNew builds "/s_new synth node 0 0 args...": add to head of the
// default group.
func SynthNew(synth string, node int32, args []interface{}) *osc.Message {
	msg := osc.NewMessage(AddrSynthNew, synth, node, int32(0), int32(0))
	msg.Arguments = append(msg.Arguments, args...)
	return msg
}

// NodeSet builds "/n_set node args...".
func NodeSet(node int32, args []interface{}) *osc.Message {
	msg := osc.NewMessage(AddrNodeSet, node)
	msg.Arguments = append(msg.Arguments, args...)
	return msg
}

// Release builds the gate-to-zero message that ends a voice.
func Release(node int32) *osc.Message {
	return osc.NewMessage(AddrNodeSet, node, "gate", float32(0))
}

// NodeFree builds "/n_free node".
func NodeFree(node int32) *osc.Message {
	return osc.NewMessage(AddrNodeFree, node)
}
