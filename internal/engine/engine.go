// Package engine talks to the SuperCollider processes: time-stamped voice
// messages to scsynth, interpreter directives to sclang, and replies to the
// controlling application. It also waits for the signals those processes
// send back to the bridge's reply socket.
package engine

import (
	"log/slog"
	"net"
	"reflect"
	"time"

	"github.com/pkg/errors"

	"github.com/chabad360/scbridge/internal/command"
	"github.com/chabad360/scbridge/internal/metrics"
	"github.com/chabad360/scbridge/osc"
)

// Interpreter channel addresses understood by the boot script.
const (
	AddrReadScript     = "/read_scd"
	AddrReadScriptFile = "/read_scd_file"

	// AddrReady is sent once by the engine when it accepts commands.
	AddrReady = "/init"
)

// Metric target labels.
const (
	targetSynth = "scsynth"
	targetLang  = "sclang"
	targetApp   = "application"
)

// DefaultLatency is added to every deadline to absorb the engine's own
// scheduling jitter.
const DefaultLatency = 50 * time.Millisecond

// ErrTimeout is returned when an awaited signal does not arrive in time.
var ErrTimeout = errors.New("timed out waiting for engine signal")

// Addrs are the UDP endpoints the engine uses.
type Addrs struct {
	// Reply is where the bridge listens for engine signals and sends from.
	Reply       string
	Scsynth     string
	Sclang      string
	Application string
}

// Engine is the bridge's connection to the engine processes. It is used
// from the interpreting goroutine only.
type Engine struct {
	client  *osc.Client
	scsynth net.Addr
	sclang  net.Addr
	app     net.Addr

	latency time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLatency overrides DefaultLatency.
func WithLatency(d time.Duration) Option {
	return func(e *Engine) { e.latency = d }
}

// WithClock sets the time source deadlines are computed from.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics records sends on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Dial binds the reply socket and resolves the process addresses.
func Dial(addrs Addrs, opts ...Option) (*Engine, error) {
	scsynth, err := net.ResolveUDPAddr("udp", addrs.Scsynth)
	if err != nil {
		return nil, errors.Wrap(err, "resolve scsynth address")
	}
	sclang, err := net.ResolveUDPAddr("udp", addrs.Sclang)
	if err != nil {
		return nil, errors.Wrap(err, "resolve sclang address")
	}
	app, err := net.ResolveUDPAddr("udp", addrs.Application)
	if err != nil {
		return nil, errors.Wrap(err, "resolve application address")
	}

	client, err := osc.Listen(addrs.Reply)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addrs.Reply)
	}
	return New(client, scsynth, sclang, app, opts...), nil
}

// New wraps an existing client.
func New(client *osc.Client, scsynth, sclang, app net.Addr, opts ...Option) *Engine {
	e := &Engine{
		client:  client,
		scsynth: scsynth,
		sclang:  sclang,
		app:     app,
		latency: DefaultLatency,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Deadline is the absolute delivery time of a message offset seconds into
// a batch that was requested with the given delay floor.
func Deadline(now time.Time, floor time.Duration, offset float64, latency time.Duration) time.Time {
	return now.Add(floor + time.Duration(offset*float64(time.Second)) + latency)
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Latency returns the latency added to every deadline.
func (e *Engine) Latency() time.Duration {
	return e.latency
}

// LocalAddr returns the reply socket's address.
func (e *Engine) LocalAddr() net.Addr {
	return e.client.LocalAddr()
}

// SendTimed sends every message wrapped in its own time-stamped bundle and
// returns the deadlines in the same order. Send failures are logged and the
// message is dropped.
func (e *Engine) SendTimed(floor time.Duration, msgs []command.Timed) []time.Time {
	now := e.now()
	deadlines := make([]time.Time, len(msgs))
	for i, m := range msgs {
		deadlines[i] = Deadline(now, floor, m.Time, e.latency)
		if err := e.SendAt(m.Message, deadlines[i]); err != nil {
			e.logger.Warn("dropping engine message", "address", m.Message.Address, "node", m.Node, "error", err)
		}
	}
	return deadlines
}

// SendAt sends p to scsynth in a bundle due at t.
func (e *Engine) SendAt(p osc.Packet, t time.Time) error {
	err := e.client.SendTo(osc.NewBundleWithTime(t, p), e.scsynth)
	e.metrics.EngineSend(targetSynth, err)
	return errors.Wrap(err, "send to scsynth")
}

// Send sends p to scsynth due after the latency.
func (e *Engine) Send(p osc.Packet) error {
	return e.SendAt(p, e.now().Add(e.latency))
}

// Interpret forwards msg to sclang as is.
func (e *Engine) Interpret(msg *osc.Message) error {
	err := e.client.SendTo(msg, e.sclang)
	e.metrics.EngineSend(targetLang, err)
	return errors.Wrap(err, "send to sclang")
}

// ReadScript asks sclang to interpret code.
func (e *Engine) ReadScript(code string) error {
	return e.Interpret(osc.NewMessage(AddrReadScript, code))
}

// ReadScriptFile asks sclang to interpret the file at path.
func (e *Engine) ReadScriptFile(path string) error {
	return e.Interpret(osc.NewMessage(AddrReadScriptFile, path))
}

// Reply sends msg to the application.
func (e *Engine) Reply(msg *osc.Message) error {
	err := e.client.SendTo(msg, e.app)
	e.metrics.EngineSend(targetApp, err)
	return errors.Wrap(err, "send to application")
}

// Await blocks until a message with address and exactly args arrives on the
// reply socket, or returns ErrTimeout. Other packets are discarded.
func (e *Engine) Await(address string, args []interface{}, timeout time.Duration) error {
	e.logger.Info("waiting for engine signal", "address", address, "args", args, "timeout", timeout)

	deadline := time.Now().Add(timeout)
	for {
		p, from, err := e.client.Receive(deadline)
		if err != nil {
			var pe *osc.ParseError
			var ne net.Error
			switch {
			case errors.As(err, &pe):
				e.logger.Debug("ignoring malformed packet", "from", from, "error", pe.Err)
				continue
			case errors.As(err, &ne) && ne.Timeout():
				return errors.Wrapf(ErrTimeout, "%s after %s", address, timeout)
			}
			return errors.Wrapf(err, "waiting for %s", address)
		}

		if msg, ok := p.(*osc.Message); ok && msg.Address == address && argsEqual(msg.Arguments, args) {
			e.logger.Info("engine signal received", "address", address)
			return nil
		}
		e.logger.Debug("not the awaited signal, still waiting", "address", address, "from", from)
	}
}

// WaitReady waits for the engine's one-time readiness signal.
func (e *Engine) WaitReady(timeout time.Duration) error {
	return e.Await(AddrReady, []interface{}{"ok"}, timeout)
}

// Close closes the reply socket.
func (e *Engine) Close() error {
	return e.client.Close()
}

func argsEqual(got, want []interface{}) bool {
	if len(got) == 0 && len(want) == 0 {
		return true
	}
	return reflect.DeepEqual(got, want)
}
