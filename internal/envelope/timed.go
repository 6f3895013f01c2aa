package envelope

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/chabad360/scbridge/osc"
)

// TimedPacket is one element of a timeline: a packet plus the spacing, in
// beats, that follows it.
type TimedPacket struct {
	Time   float64
	Packet osc.Packet
}

// ParseTimed reads a timed_msg envelope: an info message carrying the time
// followed by exactly one packet.
func ParseTimed(t *Tagged) (TimedPacket, error) {
	if t.Tag != TagTimed {
		return TimedPacket{}, errors.Errorf("envelope: cannot read %q as %s", t.Tag, TagTimed)
	}
	if len(t.Contents) != 2 {
		return TimedPacket{}, errors.Errorf("envelope: %s needs 2 elements, got %d", TagTimed, len(t.Contents))
	}

	info, err := t.Message(0)
	if err != nil {
		return TimedPacket{}, err
	}
	if info.Address != TimedInfoAddress {
		return TimedPacket{}, errors.Errorf("envelope: expected %s, got %s", TimedInfoAddress, info.Address)
	}
	if len(info.Arguments) == 0 {
		return TimedPacket{}, errors.Errorf("envelope: %s has no time", TimedInfoAddress)
	}
	tm, err := Number(info.Arguments[0])
	if err != nil {
		return TimedPacket{}, errors.Wrap(err, "envelope: time")
	}

	p, _ := t.Packet(1)
	return TimedPacket{Time: tm, Packet: p}, nil
}

// ParseTimedBundle parses b as a tagged bundle and then as a timed element.
func ParseTimedBundle(b *osc.Bundle) (TimedPacket, error) {
	t, err := Parse(b)
	if err != nil {
		return TimedPacket{}, err
	}
	return ParseTimed(t)
}

// NewTimed builds a timed_msg envelope around p.
func NewTimed(time float64, p osc.Packet) *osc.Bundle {
	return New(TagTimed, osc.NewMessage(TimedInfoAddress, float32(time)), p)
}

// Number converts an OSC numeric argument to float64. Decimal strings are
// accepted too since some callers send times as text.
func Number(arg interface{}) (float64, error) {
	switch v := arg.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, errors.Errorf("%q is not a number", v)
		}
		return f, nil
	default:
		return 0, errors.Errorf("expected a number, got %T", arg)
	}
}
