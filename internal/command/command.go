// Package command parses the bridge's inbound command messages and
// translates voice commands into engine wire messages.
package command

import (
	"time"

	"github.com/pkg/errors"

	"github.com/chabad360/scbridge/osc"
)

// Inbound addresses.
const (
	AddrNoteOnTimed    = "/note_on_timed"
	AddrNoteOn         = "/note_on"
	AddrNoteModify     = "/note_modify"
	AddrPlaySample     = "/play_sample"
	AddrLoadSample     = "/load_sample"
	AddrCreateSynthdef = "/create_synthdef"
	AddrSetBPM         = "/set_bpm"
	AddrFreeNotes      = "/free_notes"
	AddrReadScript     = "/read_scd"
	AddrClearNRT       = "/clear_nrt"
	AddrEventTrigger   = "/event_trigger"
)

// ErrUnknownAddress is returned by Parse for addresses it does not know.
var ErrUnknownAddress = errors.New("unknown command address")

// Command is a parsed inbound message.
type Command interface {
	Address() string
}

// NoteOnTimed starts a voice and schedules its release GateTime later.
type NoteOnTimed struct {
	Synth      string
	ExternalID string
	GateTime   float64
	Delay      time.Duration
	Args       []interface{}
}

// NoteOn starts a voice that runs until modified or freed.
type NoteOn struct {
	Synth      string
	ExternalID string
	Delay      time.Duration
	Args       []interface{}
}

// NoteModify sets parameters on every voice whose name matches Pattern.
type NoteModify struct {
	Pattern string
	Delay   time.Duration
	Args    []interface{}
}

// PlaySample starts a sampler voice on the buffer resolved from Pack,
// Index and Category. An empty Category selects from the whole pack.
type PlaySample struct {
	ExternalID string
	Pack       string
	Index      int
	Category   string
	Delay      time.Duration
	Args       []interface{}
}

// LoadSample registers sample metadata and loads the file into a buffer.
type LoadSample struct {
	FilePath     string
	Pack         string
	BufferNumber int32
	Category     string
	ToneIndex    int32
}

// CreateSynthdef registers a synth definition with the interpreter.
type CreateSynthdef struct {
	Definition string
}

// SetBPM changes the tempo used to convert beats to seconds.
type SetBPM struct {
	BPM float64
}

// FreeNotes frees every voice whose name matches Pattern.
type FreeNotes struct {
	Pattern string
}

// ReadScript is passed through to the interpreter verbatim.
type ReadScript struct {
	Text string
}

// ClearNRT resets the offline render state.
type ClearNRT struct{}

// EventTrigger asks for Message to be echoed back stamped with the time it
// would fire at after Delay.
type EventTrigger struct {
	Message string
	Delay   time.Duration
}

func (NoteOnTimed) Address() string    { return AddrNoteOnTimed }
func (NoteOn) Address() string         { return AddrNoteOn }
func (NoteModify) Address() string     { return AddrNoteModify }
func (PlaySample) Address() string     { return AddrPlaySample }
func (LoadSample) Address() string     { return AddrLoadSample }
func (CreateSynthdef) Address() string { return AddrCreateSynthdef }
func (SetBPM) Address() string         { return AddrSetBPM }
func (FreeNotes) Address() string      { return AddrFreeNotes }
func (ReadScript) Address() string     { return AddrReadScript }
func (ClearNRT) Address() string       { return AddrClearNRT }
func (EventTrigger) Address() string   { return AddrEventTrigger }

// Parse builds the command for msg. Either a complete command or an error
// is returned, never both.
func Parse(msg *osc.Message) (Command, error) {
	if msg == nil {
		return nil, errors.New("command: nil message")
	}

	switch msg.Address {
	case AddrNoteOnTimed:
		return orNil(ParseNoteOnTimed(msg))
	case AddrNoteOn:
		return orNil(ParseNoteOn(msg))
	case AddrNoteModify:
		return orNil(ParseNoteModify(msg))
	case AddrPlaySample:
		return orNil(ParsePlaySample(msg))
	case AddrLoadSample:
		return orNil(parseLoadSample(msg))
	case AddrCreateSynthdef:
		r := newReader(msg, AddrCreateSynthdef)
		def, err := r.String(0, "definition")
		if err != nil {
			return nil, err
		}
		return CreateSynthdef{Definition: def}, nil
	case AddrSetBPM:
		r := newReader(msg, AddrSetBPM)
		bpm, err := r.Number(0, "bpm")
		if err != nil {
			return nil, err
		}
		if bpm <= 0 {
			return nil, r.fail(0, "bpm", errors.Errorf("must be positive, got %v", bpm))
		}
		return SetBPM{BPM: bpm}, nil
	case AddrFreeNotes:
		r := newReader(msg, AddrFreeNotes)
		pattern, err := r.String(0, "name_pattern")
		if err != nil {
			return nil, err
		}
		return FreeNotes{Pattern: pattern}, nil
	case AddrReadScript:
		r := newReader(msg, AddrReadScript)
		text, err := r.String(0, "raw_text")
		if err != nil {
			return nil, err
		}
		return ReadScript{Text: text}, nil
	case AddrClearNRT:
		return ClearNRT{}, nil
	case AddrEventTrigger:
		r := newReader(msg, AddrEventTrigger)
		text, err := r.String(0, "message")
		if err != nil {
			return nil, err
		}
		delay, err := r.Delay(1, "delay_ms")
		if err != nil {
			return nil, err
		}
		return EventTrigger{Message: text, Delay: delay}, nil
	}

	return nil, errors.Wrapf(ErrUnknownAddress, "command: %s", msg.Address)
}

func orNil(c Command, err error) (Command, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ParseNoteOnTimed reads synth, external_id, gate_time, delay_ms, args...
func ParseNoteOnTimed(msg *osc.Message) (NoteOnTimed, error) {
	r := newReader(msg, AddrNoteOnTimed)
	if err := r.expect(4); err != nil {
		return NoteOnTimed{}, err
	}

	var c NoteOnTimed
	var err error
	if c.Synth, err = r.String(0, "synth"); err != nil {
		return NoteOnTimed{}, err
	}
	if c.ExternalID, err = r.String(1, "external_id"); err != nil {
		return NoteOnTimed{}, err
	}
	if c.GateTime, err = r.Number(2, "gate_time"); err != nil {
		return NoteOnTimed{}, err
	}
	if c.GateTime < 0 {
		return NoteOnTimed{}, r.fail(2, "gate_time", errors.Errorf("negative: %v", c.GateTime))
	}
	if c.Delay, err = r.Delay(3, "delay_ms"); err != nil {
		return NoteOnTimed{}, err
	}
	if c.Args, err = r.Args(4); err != nil {
		return NoteOnTimed{}, err
	}
	return c, nil
}

// ParseNoteOn reads synth, external_id, delay_ms, args...
func ParseNoteOn(msg *osc.Message) (NoteOn, error) {
	r := newReader(msg, AddrNoteOn)
	if err := r.expect(3); err != nil {
		return NoteOn{}, err
	}

	var c NoteOn
	var err error
	if c.Synth, err = r.String(0, "synth"); err != nil {
		return NoteOn{}, err
	}
	if c.ExternalID, err = r.String(1, "external_id"); err != nil {
		return NoteOn{}, err
	}
	if c.Delay, err = r.Delay(2, "delay_ms"); err != nil {
		return NoteOn{}, err
	}
	if c.Args, err = r.Args(3); err != nil {
		return NoteOn{}, err
	}
	return c, nil
}

// ParseNoteModify reads external_id_pattern, delay_ms, args...
func ParseNoteModify(msg *osc.Message) (NoteModify, error) {
	r := newReader(msg, AddrNoteModify)
	if err := r.expect(2); err != nil {
		return NoteModify{}, err
	}

	var c NoteModify
	var err error
	if c.Pattern, err = r.String(0, "external_id_pattern"); err != nil {
		return NoteModify{}, err
	}
	if c.Delay, err = r.Delay(1, "delay_ms"); err != nil {
		return NoteModify{}, err
	}
	if c.Args, err = r.Args(2); err != nil {
		return NoteModify{}, err
	}
	return c, nil
}

// ParsePlaySample reads external_id, sample_pack, index, category,
// delay_ms, args...
func ParsePlaySample(msg *osc.Message) (PlaySample, error) {
	r := newReader(msg, AddrPlaySample)
	if err := r.expect(5); err != nil {
		return PlaySample{}, err
	}

	var c PlaySample
	var err error
	if c.ExternalID, err = r.String(0, "external_id"); err != nil {
		return PlaySample{}, err
	}
	if c.Pack, err = r.String(1, "sample_pack"); err != nil {
		return PlaySample{}, err
	}
	index, err := r.Int(2, "index")
	if err != nil {
		return PlaySample{}, err
	}
	if index < 0 {
		return PlaySample{}, r.fail(2, "index", errors.Errorf("negative: %d", index))
	}
	c.Index = int(index)
	if c.Category, err = r.String(3, "category"); err != nil {
		return PlaySample{}, err
	}
	if c.Delay, err = r.Delay(4, "delay_ms"); err != nil {
		return PlaySample{}, err
	}
	if c.Args, err = r.Args(5); err != nil {
		return PlaySample{}, err
	}
	return c, nil
}

func parseLoadSample(msg *osc.Message) (LoadSample, error) {
	r := newReader(msg, AddrLoadSample)
	if err := r.expect(5); err != nil {
		return LoadSample{}, err
	}

	var c LoadSample
	var err error
	if c.FilePath, err = r.String(0, "file_path"); err != nil {
		return LoadSample{}, err
	}
	if c.Pack, err = r.String(1, "sample_pack"); err != nil {
		return LoadSample{}, err
	}
	buf, err := r.Int(2, "buffer_number")
	if err != nil {
		return LoadSample{}, err
	}
	if c.Category, err = r.String(3, "category_tag"); err != nil {
		return LoadSample{}, err
	}
	tone, err := r.Int(4, "tone_index")
	if err != nil {
		return LoadSample{}, err
	}
	c.BufferNumber, c.ToneIndex = int32(buf), int32(tone)
	return c, nil
}
