// Package envelope implements the tagged bundle convention used by callers
// to send composite commands: the first element of the bundle is an info
// message naming the tag, the rest are the contents.
//
//	[/bundle_info "timed_msg"]
//	[/timed_msg_info 0.5]
//	[/note_on "bell" "n1" 0]
package envelope

import (
	"github.com/pkg/errors"

	"github.com/chabad360/scbridge/osc"
)

const (
	InfoAddress       = "/bundle_info"
	TimedInfoAddress  = "/timed_msg_info"
	RecordInfoAddress = "/nrt_record_info"

	TagTimed   = "timed_msg"
	TagRecord  = "nrt_record"
	TagPreload = "nrt_preload"
	TagBatch   = "batch-send"
)

// Tagged is a bundle whose first element named its semantic type.
type Tagged struct {
	Tag      string
	Contents []osc.Packet
}

// Parse splits b into its tag and contents. It never panics on malformed
// input.
func Parse(b *osc.Bundle) (*Tagged, error) {
	if b == nil || len(b.Elements) == 0 {
		return nil, errors.New("envelope: empty bundle")
	}

	info, ok := b.Elements[0].(*osc.Message)
	if !ok {
		return nil, errors.New("envelope: first element is not an info message")
	}
	if info.Address != InfoAddress {
		return nil, errors.Errorf("envelope: expected %s as first message, got %s", InfoAddress, info.Address)
	}
	if len(info.Arguments) == 0 {
		return nil, errors.New("envelope: info message has no tag")
	}
	tag, ok := info.Arguments[0].(string)
	if !ok {
		return nil, errors.Errorf("envelope: tag must be a string, got %T", info.Arguments[0])
	}

	return &Tagged{Tag: tag, Contents: b.Elements[1:]}, nil
}

// Packet returns the i-th content element.
func (t *Tagged) Packet(i int) (osc.Packet, error) {
	if i < 0 || i >= len(t.Contents) {
		return nil, errors.Errorf("envelope %q: no element at index %d", t.Tag, i)
	}
	return t.Contents[i], nil
}

// Message returns the i-th content element, which must be a message.
func (t *Tagged) Message(i int) (*osc.Message, error) {
	p, err := t.Packet(i)
	if err != nil {
		return nil, err
	}
	msg, ok := p.(*osc.Message)
	if !ok {
		return nil, errors.Errorf("envelope %q: element %d is not a message", t.Tag, i)
	}
	return msg, nil
}

// Bundle returns the i-th content element, which must be a bundle.
func (t *Tagged) Bundle(i int) (*osc.Bundle, error) {
	p, err := t.Packet(i)
	if err != nil {
		return nil, err
	}
	b, ok := p.(*osc.Bundle)
	if !ok {
		return nil, errors.Errorf("envelope %q: element %d is not a bundle", t.Tag, i)
	}
	return b, nil
}

// New builds a tagged bundle holding contents.
func New(tag string, contents ...osc.Packet) *osc.Bundle {
	elements := make([]osc.Packet, 0, len(contents)+1)
	elements = append(elements, osc.NewMessage(InfoAddress, tag))
	elements = append(elements, contents...)
	return osc.NewBundle(elements...)
}
