// Package nrt compiles timelines of voice commands into offline render
// scores and drives the engine through the render.
//
// The compiler keeps its own shadow copy of the session's synth
// definitions and samples, plus a list of preloaded elements prepended to
// every render. Each render replays its timeline through a fresh node
// registry, so offline handles never collide with live ones.
package nrt

import (
	"bytes"
	"embed"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/chabad360/scbridge/internal/command"
	"github.com/chabad360/scbridge/internal/config"
	"github.com/chabad360/scbridge/internal/envelope"
	"github.com/chabad360/scbridge/internal/metrics"
	"github.com/chabad360/scbridge/internal/registry"
	"github.com/chabad360/scbridge/internal/sample"
	"github.com/chabad360/scbridge/osc"
)

// AddrFinished is the reply sent to the application after every render.
const AddrFinished = "/nrt_record_finished"

// Render outcome markers.
const (
	Success = "SUCCESS"
	Failure = "FAILURE"
)

//go:embed score.scd.tmpl
var templates embed.FS

// Engine is what a render needs from the engine connection.
type Engine interface {
	ReadScriptFile(path string) error
	Await(address string, args []interface{}, timeout time.Duration) error
	Reply(msg *osc.Message) error
}

// Options configures a Compiler.
type Options struct {
	// Spacing is config.SpacingAfter (the default) or config.SpacingBefore.
	Spacing     string
	DoneAddress string
	Timeout     time.Duration
	OutputDir   string
	Extension   string
	ReplySocket string

	// TemplatePath replaces the built-in score template when set. The
	// template must send DoneAddress with "ok" and the job ID once the
	// render is written.
	TemplatePath string

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// OptionsFromConfig maps the nrt section of the configuration.
func OptionsFromConfig(cfg config.NRTConfig) Options {
	return Options{
		Spacing:      cfg.Spacing,
		DoneAddress:  cfg.DoneAddress,
		Timeout:      cfg.Timeout.Std(),
		OutputDir:    cfg.OutputDir,
		Extension:    cfg.Extension,
		ReplySocket:  cfg.ReplySocket,
		TemplatePath: cfg.Template,
	}
}

// Compiler holds the shadow render state. It is owned by the interpreting
// goroutine.
type Compiler struct {
	engine  Engine
	opts    Options
	tmpl    *template.Template
	logger  *slog.Logger
	metrics *metrics.Metrics

	sampler   string
	synthdefs []string
	samples   *sample.Dict
	preloads  []envelope.TimedPacket
}

// New returns a compiler whose shadow definitions start with sampler.
func New(engine Engine, sampler string, opts Options) (*Compiler, error) {
	if opts.Spacing == "" {
		opts.Spacing = config.SpacingAfter
	}
	if opts.DoneAddress == "" {
		opts.DoneAddress = "/nrt_done"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Extension == "" {
		opts.Extension = ".scd"
	}
	if opts.ReplySocket == "" {
		opts.ReplySocket = "o"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tmpl := template.New("score").Funcs(template.FuncMap{"quote": quote})
	var err error
	if opts.TemplatePath != "" {
		tmpl, err = tmpl.ParseFiles(opts.TemplatePath)
		if err == nil {
			tmpl = tmpl.Lookup(filepath.Base(opts.TemplatePath))
		}
	} else {
		tmpl, err = tmpl.ParseFS(templates, "score.scd.tmpl")
		if err == nil {
			tmpl = tmpl.Lookup("score.scd.tmpl")
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "parse score template")
	}

	c := &Compiler{
		engine:  engine,
		opts:    opts,
		tmpl:    tmpl,
		logger:  logger,
		metrics: opts.Metrics,
		sampler: sampler,
	}
	c.Reset()
	return c, nil
}

// Reset forgets preloads, samples and every definition but the sampler.
func (c *Compiler) Reset() {
	c.synthdefs = []string{c.sampler}
	c.samples = sample.NewDict(c.logger)
	c.preloads = nil
}

// AddSynthdef adds def to the shadow definitions unless already present.
func (c *Compiler) AddSynthdef(def string) {
	for _, d := range c.synthdefs {
		if d == def {
			return
		}
	}
	c.synthdefs = append(c.synthdefs, def)
}

// RegisterSample adds s to the shadow sample packs.
func (c *Compiler) RegisterSample(pack string, s sample.Sample) {
	c.samples.Register(pack, s)
}

// Preload appends elements to the list prepended to every render.
func (c *Compiler) Preload(packets []envelope.TimedPacket) {
	c.preloads = append(c.preloads, packets...)
}

// Preloads returns the number of preloaded elements.
func (c *Compiler) Preloads() int {
	return len(c.preloads)
}

// Synthdefs returns the shadow definitions in registration order.
func (c *Compiler) Synthdefs() []string {
	return append([]string(nil), c.synthdefs...)
}

// Timeline translates the preloads followed by packets against a fresh
// registry and a beat clock starting at zero, and returns the wire
// messages sorted by time. Messages at equal times keep their order.
func (c *Compiler) Timeline(packets []envelope.TimedPacket) []command.Timed {
	nodes := registry.New(registry.WithLogger(c.logger))
	all := make([]envelope.TimedPacket, 0, len(c.preloads)+len(packets))
	all = append(all, c.preloads...)
	all = append(all, packets...)

	var (
		clock float64
		out   []command.Timed
	)
	for i, tp := range all {
		if c.opts.Spacing == config.SpacingBefore {
			clock += tp.Time
		}

		env := command.Env{Nodes: nodes, Samples: c.samples, Base: clock, Logger: c.logger}
		timed, err := c.translate(tp.Packet, env)
		if err != nil {
			c.logger.Warn("skipping timeline element", "element", i, "error", err)
		}
		out = append(out, timed...)

		if c.opts.Spacing != config.SpacingBefore {
			clock += tp.Time
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

func (c *Compiler) translate(p osc.Packet, env command.Env) ([]command.Timed, error) {
	msg, ok := p.(*osc.Message)
	if !ok {
		return nil, errors.New("nested bundles are not rendered")
	}
	cmd, err := command.Parse(msg)
	if err != nil {
		return nil, err
	}
	voice, ok := cmd.(command.Voice)
	if !ok {
		c.logger.Debug("command has no score form", "address", msg.Address)
		return nil, nil
	}
	return voice.Translate(env)
}

// Rows returns the score rows for rec: definitions and samples at time
// zero, then the timeline.
func (c *Compiler) Rows(rec *envelope.Record) []string {
	rows := make([]string, 0, len(c.synthdefs)+c.samples.Len()+len(rec.Packets))
	for _, def := range c.synthdefs {
		rows = append(rows, SynthdefRow(def))
	}
	for _, s := range c.samples.All() {
		rows = append(rows, s.ScoreRow())
	}
	for _, t := range c.Timeline(rec.Packets) {
		rows = append(rows, RenderRow(t))
	}
	return rows
}

type scriptData struct {
	JobID       string
	BPM         float64
	FileName    string
	EndBeat     float64
	Rows        []string
	ReplySocket string
	DoneAddress string
}

// Script renders the score script for rec.
func (c *Compiler) Script(jobID uuid.UUID, rec *envelope.Record) (string, error) {
	var buf bytes.Buffer
	err := c.tmpl.Execute(&buf, scriptData{
		JobID:       jobID.String(),
		BPM:         rec.BPM,
		FileName:    rec.FileName,
		EndBeat:     rec.EndBeat,
		Rows:        c.Rows(rec),
		ReplySocket: c.opts.ReplySocket,
		DoneAddress: c.opts.DoneAddress,
	})
	if err != nil {
		return "", errors.Wrap(err, "execute score template")
	}
	return buf.String(), nil
}

// ScriptPath is where the script for fileName is written.
func (c *Compiler) ScriptPath(fileName string) string {
	return filepath.Join(c.opts.OutputDir, fileName+c.opts.Extension)
}

// Result describes a finished render.
type Result struct {
	JobID    uuid.UUID
	FileName string
	Script   string
	Err      error
	Duration time.Duration
}

// OK reports whether the engine confirmed the render.
func (r Result) OK() bool { return r.Err == nil }

// Render writes the script for rec, has the engine interpret it and blocks
// until the engine signals completion or the timeout passes. The outcome is
// always reported to the application.
func (c *Compiler) Render(rec *envelope.Record) Result {
	start := time.Now()
	res := Result{JobID: uuid.New(), FileName: rec.FileName}
	logger := c.logger.With("job", res.JobID.String(), "file", rec.FileName)

	for _, err := range rec.Skipped {
		logger.Warn("timeline element skipped", "error", err)
	}

	res.Err = c.render(rec, &res, logger)
	res.Duration = time.Since(start)
	c.metrics.Render(res.OK(), res.Duration)

	marker := Success
	if !res.OK() {
		marker = Failure
		logger.Error("render failed", "error", res.Err)
	} else {
		logger.Info("render finished", "duration", res.Duration)
	}
	if err := c.engine.Reply(osc.NewMessage(AddrFinished, marker, rec.FileName)); err != nil {
		logger.Warn("could not report render result", "error", err)
	}
	return res
}

func (c *Compiler) render(rec *envelope.Record, res *Result, logger *slog.Logger) error {
	script, err := c.Script(res.JobID, rec)
	if err != nil {
		return err
	}
	res.Script = c.ScriptPath(rec.FileName)

	if err := os.WriteFile(res.Script, []byte(script), 0o644); err != nil {
		return errors.Wrap(err, "write score script")
	}
	logger.Info("score script written", "script", res.Script)

	// Scores are too large for one datagram, so the interpreter reads the file.
	if err := c.engine.ReadScriptFile(res.Script); err != nil {
		return err
	}
	// The job ID keeps a late signal from an earlier render from matching.
	return c.engine.Await(c.opts.DoneAddress, []interface{}{"ok", res.JobID.String()}, c.opts.Timeout)
}
