// Package bridge is the interpreting loop between control surfaces and the
// engine. It owns the live session state: the node registry, the sample
// packs, the loaded synth definitions and the tempo. Packets are handled
// one at a time; an offline render blocks the loop until it finishes.
package bridge

import (
	_ "embed"
	"log/slog"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/chabad360/scbridge/internal/command"
	"github.com/chabad360/scbridge/internal/envelope"
	"github.com/chabad360/scbridge/internal/metrics"
	"github.com/chabad360/scbridge/internal/nrt"
	"github.com/chabad360/scbridge/internal/registry"
	"github.com/chabad360/scbridge/internal/sample"
	"github.com/chabad360/scbridge/osc"
)

// DefaultSampler is the definition of the synth sample voices play on.
//
//go:embed sampler.scd
var DefaultSampler string

// AddrEvent answers an event trigger.
const AddrEvent = "/event"

// Engine is what the loop needs from the engine connection.
type Engine interface {
	SendTimed(floor time.Duration, msgs []command.Timed) []time.Time
	Send(p osc.Packet) error
	Interpret(msg *osc.Message) error
	ReadScript(code string) error
	Reply(msg *osc.Message) error
	Now() time.Time
}

// Options configures an Interpreter.
type Options struct {
	// Sampler is the sampler synth definition. Empty uses DefaultSampler.
	Sampler    string
	BPM        float64
	FunnelTags []string
	// ServerName is the interpreter variable holding the server.
	ServerName string

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Interpreter routes inbound packets to their handlers.
type Interpreter struct {
	engine   Engine
	compiler *nrt.Compiler
	d        *osc.Dispatcher

	nodes     *registry.Registry
	samples   *sample.Dict
	synthdefs []string
	bpm       float64
	funnels   map[string]bool
	server    string

	logger  *slog.Logger
	metrics *metrics.Metrics
}

var _ osc.Handler = (*Interpreter)(nil)

// New returns an interpreter with an empty session.
func New(engine Engine, compiler *nrt.Compiler, opts Options) *Interpreter {
	if opts.Sampler == "" {
		opts.Sampler = DefaultSampler
	}
	if opts.BPM <= 0 {
		opts.BPM = 120
	}
	if opts.ServerName == "" {
		opts.ServerName = "s"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	i := &Interpreter{
		engine:    engine,
		compiler:  compiler,
		nodes:     registry.New(registry.WithLogger(logger), registry.WithClock(engine.Now)),
		samples:   sample.NewDict(logger),
		synthdefs: []string{opts.Sampler},
		bpm:       opts.BPM,
		funnels:   make(map[string]bool, len(opts.FunnelTags)),
		server:    opts.ServerName,
		logger:    logger,
		metrics:   opts.Metrics,
	}
	for _, tag := range opts.FunnelTags {
		i.funnels[tag] = true
	}

	i.d = &osc.Dispatcher{
		BundleMethod: func(b *osc.Bundle, _ net.Addr) { i.interpretBundle(b) },
		NotFound: func(msg *osc.Message) {
			i.logger.Debug("ignoring unknown address", "address", msg.Address)
			i.metrics.CommandRejected(msg.Address, "unknown")
		},
	}
	for addr, h := range map[string]osc.MethodFunc{
		command.AddrNoteOnTimed:    i.voice,
		command.AddrNoteOn:         i.voice,
		command.AddrNoteModify:     i.voice,
		command.AddrPlaySample:     i.voice,
		command.AddrLoadSample:     i.loadSample,
		command.AddrCreateSynthdef: i.createSynthdef,
		command.AddrSetBPM:         i.setBPM,
		command.AddrFreeNotes:      i.freeNotes,
		command.AddrReadScript:     i.readScript,
		command.AddrClearNRT:       i.clearNRT,
		command.AddrEventTrigger:   i.eventTrigger,
	} {
		if err := i.d.AddMethodFunc(addr, h); err != nil {
			panic(err)
		}
	}
	return i
}

// LoadSampler sends the sampler definition to the interpreter.
func (i *Interpreter) LoadSampler() error {
	return i.engine.ReadScript(i.synthdefs[0] + ".add;")
}

// HandlePacket implements osc.Handler.
func (i *Interpreter) HandlePacket(p osc.Packet, from net.Addr) {
	i.metrics.PacketReceived()
	i.Interpret(p)
}

// Interpret handles one packet to completion.
func (i *Interpreter) Interpret(p osc.Packet) {
	i.d.Dispatch(p, nil)
}

// BPM returns the current tempo.
func (i *Interpreter) BPM() float64 { return i.bpm }

// Nodes returns the live registry.
func (i *Interpreter) Nodes() *registry.Registry { return i.nodes }

func (i *Interpreter) parse(msg *osc.Message) (command.Command, bool) {
	cmd, err := command.Parse(msg)
	if err != nil {
		i.reject(msg.Address, "parse", err)
		return nil, false
	}
	return cmd, true
}

func (i *Interpreter) reject(address, reason string, err error) {
	attrs := []any{"address", address, "error", err}
	var fe *command.FieldError
	if errors.As(err, &fe) {
		attrs = append(attrs, "field", fe.Field)
	}
	i.logger.Warn("command rejected", attrs...)
	i.metrics.CommandRejected(address, reason)
}

func (i *Interpreter) handled(address string) {
	i.metrics.CommandHandled(address)
}

func (i *Interpreter) voice(msg *osc.Message) {
	cmd, ok := i.parse(msg)
	if !ok {
		return
	}
	v := cmd.(command.Voice)

	timed, err := v.Translate(command.Env{
		Nodes:   i.nodes,
		Samples: i.samples,
		BPM:     i.bpm,
		Logger:  i.logger,
	})
	if err != nil {
		reason := "parse"
		if errors.Is(err, registry.ErrDuplicateName) {
			reason = "duplicate"
		}
		i.reject(msg.Address, reason, err)
		return
	}

	// Sampler voices free themselves when the buffer ends, so their names
	// are released once playback starts.
	_, oneShot := v.(command.PlaySample)
	deadlines := i.engine.SendTimed(v.DelayFloor(), timed)
	for n, t := range timed {
		if t.Release || oneShot {
			i.nodes.Expire(t.Node, deadlines[n])
		}
	}
	i.metrics.RegistrySize(i.nodes.Len())
	i.handled(msg.Address)
}

func (i *Interpreter) loadSample(msg *osc.Message) {
	cmd, ok := i.parse(msg)
	if !ok {
		return
	}
	c := cmd.(command.LoadSample)
	s := sample.Sample{FilePath: c.FilePath, BufferNumber: c.BufferNumber, Category: c.Category, ToneIndex: c.ToneIndex}

	i.compiler.RegisterSample(c.Pack, s)
	s = i.samples.Register(c.Pack, s)
	i.logger.Info("sample registered", "pack", c.Pack, "file", s.FilePath, "buffer", s.BufferNumber, "tone_index", s.ToneIndex)

	if err := i.engine.ReadScript(s.BufferLoadScript(i.server)); err != nil {
		i.logger.Warn("could not load sample buffer", "file", s.FilePath, "error", err)
	}
	i.handled(msg.Address)
}

func (i *Interpreter) createSynthdef(msg *osc.Message) {
	cmd, ok := i.parse(msg)
	if !ok {
		return
	}
	def := cmd.(command.CreateSynthdef).Definition

	i.compiler.AddSynthdef(def)
	for _, d := range i.synthdefs {
		if d == def {
			i.handled(msg.Address)
			return
		}
	}
	i.synthdefs = append(i.synthdefs, def)
	if err := i.engine.ReadScript(def + ".add;"); err != nil {
		i.logger.Warn("could not load synth definition", "error", err)
	}
	i.handled(msg.Address)
}

func (i *Interpreter) setBPM(msg *osc.Message) {
	cmd, ok := i.parse(msg)
	if !ok {
		return
	}
	i.bpm = cmd.(command.SetBPM).BPM
	i.logger.Debug("tempo changed", "bpm", i.bpm)
	i.handled(msg.Address)
}

func (i *Interpreter) freeNotes(msg *osc.Message) {
	cmd, ok := i.parse(msg)
	if !ok {
		return
	}
	pattern := cmd.(command.FreeNotes).Pattern

	for _, node := range i.nodes.Search(pattern) {
		if err := i.engine.Send(command.NodeFree(node)); err != nil {
			i.logger.Warn("could not free voice", "node", node, "error", err)
		}
	}
	i.nodes.ClearMatching(pattern)
	i.metrics.RegistrySize(i.nodes.Len())
	i.handled(msg.Address)
}

func (i *Interpreter) readScript(msg *osc.Message) {
	if _, ok := i.parse(msg); !ok {
		return
	}
	if err := i.engine.Interpret(msg); err != nil {
		i.logger.Warn("could not forward script", "error", err)
	}
	i.handled(msg.Address)
}

func (i *Interpreter) clearNRT(msg *osc.Message) {
	i.compiler.Reset()
	i.handled(msg.Address)
}

func (i *Interpreter) eventTrigger(msg *osc.Message) {
	cmd, ok := i.parse(msg)
	if !ok {
		return
	}
	c := cmd.(command.EventTrigger)

	at := osc.NewTimetagFromTime(i.engine.Now().Add(c.Delay))
	if err := i.engine.Reply(osc.NewMessage(AddrEvent, c.Message, at)); err != nil {
		i.logger.Warn("could not answer event trigger", "error", err)
	}
	i.handled(msg.Address)
}

func (i *Interpreter) interpretBundle(b *osc.Bundle) {
	t, err := envelope.Parse(b)
	if err != nil {
		i.logger.Warn("dropping untagged bundle", "error", err)
		return
	}

	if i.funnels[t.Tag] {
		for _, p := range t.Contents {
			i.Interpret(p)
		}
		return
	}

	switch t.Tag {
	case envelope.TagPreload:
		packets, skipped := envelope.ParsePreload(t)
		for _, err := range skipped {
			i.logger.Warn("preload element skipped", "tag", t.Tag, "error", err)
		}
		i.compiler.Preload(packets)
		i.logger.Info("preloaded render elements", "added", len(packets), "total", i.compiler.Preloads())

	case envelope.TagRecord:
		rec, err := envelope.ParseRecord(t)
		if err != nil {
			i.logger.Error("dropping render request", "tag", t.Tag, "error", err)
			return
		}
		i.compiler.Render(rec)

	default:
		i.logger.Info("ignoring envelope", "tag", t.Tag)
	}
}
