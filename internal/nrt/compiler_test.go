package nrt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chabad360/scbridge/internal/command"
	"github.com/chabad360/scbridge/internal/config"
	"github.com/chabad360/scbridge/internal/envelope"
	"github.com/chabad360/scbridge/internal/sample"
	"github.com/chabad360/scbridge/osc"
)

const samplerDef = `SynthDef(\sampler, { |buf = 0| Out.ar(0, PlayBuf.ar(2, buf, doneAction: 2)) })`

type fakeEngine struct {
	read    []string
	replies []*osc.Message
	awaited []string
	args    [][]interface{}
	err     error
}

func (f *fakeEngine) ReadScriptFile(path string) error {
	f.read = append(f.read, path)
	return nil
}

func (f *fakeEngine) Await(address string, args []interface{}, timeout time.Duration) error {
	f.awaited = append(f.awaited, address)
	f.args = append(f.args, args)
	return f.err
}

func (f *fakeEngine) Reply(msg *osc.Message) error {
	f.replies = append(f.replies, msg)
	return nil
}

func newCompiler(t *testing.T, eng Engine, opts Options) *Compiler {
	t.Helper()
	if opts.OutputDir == "" {
		opts.OutputDir = t.TempDir()
	}
	c, err := New(eng, samplerDef, opts)
	require.NoError(t, err)
	return c
}

func noteOn(id string) *osc.Message {
	return osc.NewMessage(command.AddrNoteOn, "bell", id, int32(0))
}

func times(timeline []command.Timed) []float64 {
	out := make([]float64, len(timeline))
	for i, t := range timeline {
		out[i] = t.Time
	}
	return out
}

func TestTimeline_Spacing(t *testing.T) {
	packets := []envelope.TimedPacket{
		{Time: 0.5, Packet: noteOn("a")},
		{Time: 0.0, Packet: noteOn("b")},
		{Time: 1.0, Packet: noteOn("c")},
	}

	before := newCompiler(t, &fakeEngine{}, Options{Spacing: config.SpacingBefore})
	assert.Equal(t, []float64{0.5, 0.5, 1.5}, times(before.Timeline(packets)))

	after := newCompiler(t, &fakeEngine{}, Options{Spacing: config.SpacingAfter})
	assert.Equal(t, []float64{0, 0.5, 0.5}, times(after.Timeline(packets)))

	byDefault := newCompiler(t, &fakeEngine{}, Options{})
	assert.Equal(t, []float64{0, 0.5, 0.5}, times(byDefault.Timeline(packets)))
}

func TestTimeline_GateDoesNotMoveClock(t *testing.T) {
	c := newCompiler(t, &fakeEngine{}, Options{})
	timeline := c.Timeline([]envelope.TimedPacket{
		{Time: 1, Packet: osc.NewMessage(command.AddrNoteOnTimed, "bell", "a", float32(4), int32(0))},
		{Time: 1, Packet: noteOn("b")},
	})

	require.Len(t, timeline, 3)
	assert.Equal(t, []float64{0, 1, 4}, times(timeline))
	assert.Equal(t, command.AddrSynthNew, timeline[0].Message.Address)
	assert.Equal(t, command.AddrSynthNew, timeline[1].Message.Address)
	assert.True(t, timeline[2].Release)
}

func TestTimeline_StableTies(t *testing.T) {
	c := newCompiler(t, &fakeEngine{}, Options{})
	timeline := c.Timeline([]envelope.TimedPacket{
		{Time: 0, Packet: noteOn("a")},
		{Time: 0, Packet: noteOn("b")},
		{Time: 0, Packet: noteOn("c")},
	})
	require.Len(t, timeline, 3)
	for i, want := range []int32{101, 102, 103} {
		assert.Equal(t, want, timeline[i].Node)
	}
}

func TestTimeline_ModifyOrderedByNode(t *testing.T) {
	c := newCompiler(t, &fakeEngine{}, Options{})
	var packets []envelope.TimedPacket
	for _, id := range []string{"a1", "a2", "a3", "a4", "a5", "a6"} {
		packets = append(packets, envelope.TimedPacket{Packet: noteOn(id)})
	}
	packets = append(packets, envelope.TimedPacket{
		Packet: osc.NewMessage(command.AddrNoteModify, "a.*", int32(0), "amp", float32(0.5)),
	})

	timeline := c.Timeline(packets)
	require.Len(t, timeline, 12)
	for i, tm := range timeline[6:] {
		assert.Equal(t, command.AddrNodeSet, tm.Message.Address)
		assert.Equal(t, int32(101+i), tm.Node)
	}

	rec := &envelope.Record{Packets: packets}
	first := c.Rows(rec)
	for i := 0; i < 20; i++ {
		require.Equal(t, first, c.Rows(rec))
	}
}

func TestTimeline_FreshRegistryPerRender(t *testing.T) {
	c := newCompiler(t, &fakeEngine{}, Options{})
	packets := []envelope.TimedPacket{{Time: 1, Packet: noteOn("a")}}

	first := c.Timeline(packets)
	second := c.Timeline(packets)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, int32(101), first[0].Node)
	assert.Equal(t, int32(101), second[0].Node, "same name renders again without a duplicate error")
}

func TestTimeline_SkipsUnusable(t *testing.T) {
	c := newCompiler(t, &fakeEngine{}, Options{})
	timeline := c.Timeline([]envelope.TimedPacket{
		{Time: 1, Packet: noteOn("a")},
		{Time: 1, Packet: noteOn("a")},                                 // duplicate name
		{Time: 1, Packet: osc.NewMessage(command.AddrNoteOn, "bell")}, // malformed
		{Time: 1, Packet: osc.NewMessage(command.AddrSetBPM, int32(1))},
		{Time: 1, Packet: osc.NewBundle()},
		{Time: 1, Packet: osc.NewMessage(command.AddrNoteModify, "^a$", int32(0), "amp", float32(0.5))},
	})

	require.Len(t, timeline, 2)
	assert.Equal(t, []float64{0, 5}, times(timeline))
	assert.Equal(t, command.AddrNodeSet, timeline[1].Message.Address)
}

func TestTimeline_Preload(t *testing.T) {
	c := newCompiler(t, &fakeEngine{}, Options{})
	c.Preload([]envelope.TimedPacket{{Time: 2, Packet: noteOn("pre")}})
	assert.Equal(t, 1, c.Preloads())

	timeline := c.Timeline([]envelope.TimedPacket{{Time: 1, Packet: noteOn("a")}})
	require.Len(t, timeline, 2)
	assert.Equal(t, []float64{0, 2}, times(timeline))
	assert.Equal(t, int32(101), timeline[0].Node, "preloads are translated first")
	assert.Equal(t, int32(102), timeline[1].Node)
}

func TestTimeline_SamplesFromShadowState(t *testing.T) {
	c := newCompiler(t, &fakeEngine{}, Options{})
	c.RegisterSample("drums", sample.Sample{FilePath: "bd.wav", BufferNumber: 7})

	timeline := c.Timeline([]envelope.TimedPacket{
		{Time: 0, Packet: osc.NewMessage(command.AddrPlaySample, "s", "drums", int32(3), "", int32(0))},
	})
	require.Len(t, timeline, 1)
	args := timeline[0].Message.Arguments
	assert.Equal(t, command.SamplerSynth, args[0])
	assert.Equal(t, int32(7), args[len(args)-1])
}

func TestReset(t *testing.T) {
	c := newCompiler(t, &fakeEngine{}, Options{})
	c.AddSynthdef("SynthDef(\\a, {})")
	c.AddSynthdef("SynthDef(\\a, {})")
	c.RegisterSample("p", sample.Sample{FilePath: "x.wav"})
	c.Preload([]envelope.TimedPacket{{Time: 1, Packet: noteOn("a")}})
	assert.Equal(t, []string{samplerDef, "SynthDef(\\a, {})"}, c.Synthdefs())

	c.Reset()
	assert.Equal(t, []string{samplerDef}, c.Synthdefs())
	assert.Equal(t, 0, c.Preloads())
	assert.Len(t, c.Rows(&envelope.Record{}), 1)
}

func TestRenderRow(t *testing.T) {
	row := RenderRow(command.Timed{
		Time:    0.5,
		Message: osc.NewMessage("/s_new", "bell", int32(101), int32(0), int32(0), "freq", float32(440), "q", `say "hi"`),
	})
	assert.Equal(t, `[ 0.50000, ["/s_new","bell",101,0,0,"freq",440.00000,"q","say \"hi\""] ]`, row)

	row = RenderRow(command.Timed{Time: 1, Message: osc.NewMessage("/x", int64(2), 0.25, true, []byte{1})})
	assert.Equal(t, `[ 1.00000, ["/x",2,0.25000,err,err] ]`, row)

	assert.Equal(t, `[ 0.00000, ["/n_free"] ]`, RenderRow(command.Timed{Message: osc.NewMessage("/n_free")}))
}

func TestRows(t *testing.T) {
	c := newCompiler(t, &fakeEngine{}, Options{})
	c.RegisterSample("drums", sample.Sample{FilePath: "bd.wav", BufferNumber: 7})

	rows := c.Rows(&envelope.Record{Packets: []envelope.TimedPacket{
		{Time: 1, Packet: osc.NewMessage(command.AddrNoteOnTimed, "bell", "a", float32(0.5), int32(0))},
		{Time: 1, Packet: noteOn("b")},
	}})

	require.Len(t, rows, 5)
	assert.Equal(t, SynthdefRow(samplerDef), rows[0])
	assert.Equal(t, `[0.0, (Buffer.new(server, 44100 * 8.0, 2, bufnum: 7)).allocReadMsg("bd.wav")]`, rows[1])
	assert.Equal(t, `[ 0.00000, ["/s_new","bell",101,0,0] ]`, rows[2])
	assert.Equal(t, `[ 0.50000, ["/n_set",101,"gate",0.00000] ]`, rows[3])
	assert.Equal(t, `[ 1.00000, ["/s_new","bell",102,0,0] ]`, rows[4])
}

func TestScript(t *testing.T) {
	c := newCompiler(t, &fakeEngine{}, Options{ReplySocket: "reply", DoneAddress: "/done"})
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	script, err := c.Script(id, &envelope.Record{BPM: 120, FileName: "out.wav", EndBeat: 8,
		Packets: []envelope.TimedPacket{{Time: 1, Packet: noteOn("a")}}})
	require.NoError(t, err)

	assert.Contains(t, script, id.String())
	assert.Contains(t, script, "var bpm = 120.00000;")
	assert.Contains(t, script, SynthdefRow(samplerDef)+",\n")
	assert.Contains(t, script, `[ 0.00000, ["/s_new","bell",101,0,0] ]`)
	assert.Contains(t, script, `outputFilePath: "out.wav".standardizePath`)
	assert.Contains(t, script, `reply.sendMsg("/done", "ok", "`+id.String()+`")`)
	assert.Contains(t, script, "duration: 8.00000 * beat")
}

func TestCustomTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("{{.FileName}}:{{len .Rows}}"), 0o644))

	c := newCompiler(t, &fakeEngine{}, Options{TemplatePath: path})
	script, err := c.Script(uuid.New(), &envelope.Record{FileName: "f"})
	require.NoError(t, err)
	assert.Equal(t, "f:1", script)

	_, err = New(&fakeEngine{}, samplerDef, Options{TemplatePath: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

func TestRender_Success(t *testing.T) {
	eng := &fakeEngine{}
	dir := t.TempDir()
	c := newCompiler(t, eng, Options{OutputDir: dir})

	res := c.Render(&envelope.Record{BPM: 120, FileName: "take", EndBeat: 4,
		Packets: []envelope.TimedPacket{{Time: 1, Packet: noteOn("a")}}})

	require.NoError(t, res.Err)
	assert.True(t, res.OK())
	assert.NotEqual(t, uuid.Nil, res.JobID)
	assert.Equal(t, filepath.Join(dir, "take.scd"), res.Script)

	data, err := os.ReadFile(res.Script)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `["/s_new","bell",101,0,0]`))

	assert.Equal(t, []string{res.Script}, eng.read)
	assert.Equal(t, []string{"/nrt_done"}, eng.awaited)
	assert.Equal(t, [][]interface{}{{"ok", res.JobID.String()}}, eng.args)
	require.Len(t, eng.replies, 1)
	assert.Equal(t, osc.NewMessage(AddrFinished, Success, "take"), eng.replies[0])
}

func TestRender_AwaitsOwnJob(t *testing.T) {
	eng := &fakeEngine{}
	c := newCompiler(t, eng, Options{})

	first := c.Render(&envelope.Record{BPM: 120, FileName: "one", EndBeat: 4})
	second := c.Render(&envelope.Record{BPM: 120, FileName: "two", EndBeat: 4})

	require.Len(t, eng.args, 2)
	assert.NotEqual(t, first.JobID, second.JobID)
	assert.Equal(t, []interface{}{"ok", first.JobID.String()}, eng.args[0])
	assert.Equal(t, []interface{}{"ok", second.JobID.String()}, eng.args[1])
}

func TestRender_Timeout(t *testing.T) {
	eng := &fakeEngine{err: errors.New("timed out")}
	c := newCompiler(t, eng, Options{})

	res := c.Render(&envelope.Record{BPM: 120, FileName: "take", EndBeat: 4})
	assert.False(t, res.OK())
	require.Len(t, eng.replies, 1)
	assert.Equal(t, osc.NewMessage(AddrFinished, Failure, "take"), eng.replies[0])
}

func TestRender_WriteFailure(t *testing.T) {
	eng := &fakeEngine{}
	c := newCompiler(t, eng, Options{OutputDir: filepath.Join(t.TempDir(), "missing", "dir")})

	res := c.Render(&envelope.Record{FileName: "take"})
	assert.False(t, res.OK())
	assert.Empty(t, eng.read, "the engine is not asked to read a script that was not written")
	require.Len(t, eng.replies, 1)
	assert.Equal(t, Failure, eng.replies[0].Arguments[0])
}
