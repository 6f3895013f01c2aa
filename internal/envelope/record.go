package envelope

import (
	"github.com/pkg/errors"

	"github.com/chabad360/scbridge/osc"
)

// Record is a request to render a timeline offline.
//
//	[/bundle_info "nrt_record"]
//	[/nrt_record_info 120.0 "out" 8.0]
//	[#bundle timed_msg, timed_msg, ...]
type Record struct {
	BPM      float64
	FileName string
	EndBeat  float64
	Packets  []TimedPacket

	// Skipped holds one error per timeline element that could not be read.
	// Those elements are left out of Packets.
	Skipped []error
}

// ParseRecord reads an nrt_record envelope.
func ParseRecord(t *Tagged) (*Record, error) {
	if t.Tag != TagRecord {
		return nil, errors.Errorf("envelope: cannot read %q as %s", t.Tag, TagRecord)
	}

	info, err := t.Message(0)
	if err != nil {
		return nil, err
	}
	if info.Address != RecordInfoAddress {
		return nil, errors.Errorf("envelope: expected %s, got %s", RecordInfoAddress, info.Address)
	}
	if len(info.Arguments) < 3 {
		return nil, errors.Errorf("envelope: %s needs 3 arguments, got %d", RecordInfoAddress, len(info.Arguments))
	}

	r := &Record{}
	if r.BPM, err = Number(info.Arguments[0]); err != nil {
		return nil, errors.Wrap(err, "envelope: bpm")
	}
	var ok bool
	if r.FileName, ok = info.Arguments[1].(string); !ok {
		return nil, errors.Errorf("envelope: file_name must be a string, got %T", info.Arguments[1])
	}
	if r.EndBeat, err = Number(info.Arguments[2]); err != nil {
		return nil, errors.Wrap(err, "envelope: end_beat")
	}

	timeline, err := t.Bundle(1)
	if err != nil {
		return nil, err
	}
	r.Packets, r.Skipped = parseTimeline(timeline.Elements)
	return r, nil
}

// ParsePreload reads an nrt_preload envelope. Every content element is a
// timed element; malformed ones are skipped and reported.
func ParsePreload(t *Tagged) ([]TimedPacket, []error) {
	if t.Tag != TagPreload {
		return nil, []error{errors.Errorf("envelope: cannot read %q as %s", t.Tag, TagPreload)}
	}
	return parseTimeline(t.Contents)
}

// NewRecord builds an nrt_record envelope.
func NewRecord(bpm float64, fileName string, endBeat float64, timeline ...TimedPacket) *osc.Bundle {
	elements := make([]osc.Packet, 0, len(timeline))
	for _, tp := range timeline {
		elements = append(elements, NewTimed(tp.Time, tp.Packet))
	}
	info := osc.NewMessage(RecordInfoAddress, float32(bpm), fileName, float32(endBeat))
	return New(TagRecord, info, osc.NewBundle(elements...))
}

// NewPreload builds an nrt_preload envelope.
func NewPreload(timeline ...TimedPacket) *osc.Bundle {
	elements := make([]osc.Packet, 0, len(timeline))
	for _, tp := range timeline {
		elements = append(elements, NewTimed(tp.Time, tp.Packet))
	}
	return New(TagPreload, elements...)
}

func parseTimeline(elements []osc.Packet) ([]TimedPacket, []error) {
	var (
		packets []TimedPacket
		skipped []error
	)
	for i, p := range elements {
		b, ok := p.(*osc.Bundle)
		if !ok {
			skipped = append(skipped, errors.Errorf("element %d: expected a timed bundle", i))
			continue
		}
		tp, err := ParseTimedBundle(b)
		if err != nil {
			skipped = append(skipped, errors.Wrapf(err, "element %d", i))
			continue
		}
		packets = append(packets, tp)
	}
	return packets, skipped
}
