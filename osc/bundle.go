package osc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// Bundle represents an OSC bundle. It consists of the OSC-string "#bundle"
// followed by an OSC Time Tag, followed by zero or more OSC bundle/message
// elements. The OSC-timetag is a 64-bit fixed point time tag. See
// http://opensoundcontrol.org/spec-1_0.html for more information.
type Bundle struct {
	Timetag  Timetag
	Elements []Packet
}

// Verify that Bundle implements the Packet interface.
var _ Packet = (*Bundle)(nil)

// NewBundle returns an OSC Bundle holding elements, to be executed
// immediately on receipt.
func NewBundle(elements ...Packet) *Bundle {
	return &Bundle{Timetag: NewImmediateTimetag(), Elements: elements}
}

// NewBundleWithTime returns an OSC Bundle holding elements, to be executed at t.
func NewBundleWithTime(t time.Time, elements ...Packet) *Bundle {
	return &Bundle{Timetag: NewTimetagFromTime(t), Elements: elements}
}

// NewBundleFromData returns a new OSC bundle created from the parsed data.
func NewBundleFromData(data []byte) (b *Bundle, err error) {
	b = &Bundle{}
	if err = b.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return b, nil
}

// Append appends an OSC bundle or OSC message to the bundle.
func (b *Bundle) Append(pck Packet) error {
	switch t := pck.(type) {
	default:
		return fmt.Errorf("unsupported OSC packet type: only Bundle and Message are supported")

	case *Bundle, *Message:
		b.Elements = append(b.Elements, t)
	}

	return nil
}

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (b *Bundle) MarshalBinary() ([]byte, error) {
	data := new(bytes.Buffer)
	if err := b.LightMarshalBinary(data); err != nil {
		return nil, err
	}
	return data.Bytes(), nil
}

// LightMarshalBinary writes the bundle to data with the following layout:
// 1. Bundle string: '#bundle'
// 2. OSC timetag
// 3. Length of first OSC bundle element
// 4. First bundle element
// 5. Length of n OSC bundle element
// 6. n bundle element
func (b *Bundle) LightMarshalBinary(data *bytes.Buffer) error {
	start := data.Len()
	writePaddedString(bundleTagString, data)

	var buf [bit64Size]byte
	binary.BigEndian.PutUint64(buf[:], uint64(b.Timetag))
	data.Write(buf[:])

	for _, elem := range b.Elements {
		bb, err := elem.MarshalBinary()
		if err != nil {
			return err
		}

		// Write the size of the element
		binary.BigEndian.PutUint32(buf[:bit32Size], uint32(len(bb)))
		data.Write(buf[:bit32Size])
		data.Write(bb)
	}

	if n := data.Len() - start; n > MaxPacketSize {
		return fmt.Errorf("LightMarshalBinary: bundle too large: %d", n)
	}

	return nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (b *Bundle) UnmarshalBinary(data []byte) error {
	if (len(data) % bit32Size) != 0 {
		return fmt.Errorf("UnmarshalBinary: data isn't padded properly")
	}

	if len(data) < 16 {
		return fmt.Errorf("UnmarshalBinary: bundle is too short")
	}

	// Read the '#bundle' OSC string
	startTag, n, err := parsePaddedString(data)
	if err != nil {
		return err
	}
	data = data[n:]

	if startTag != bundleTagString {
		return fmt.Errorf("invalid bundle start tag: %s", startTag)
	}

	if len(data) < bit64Size {
		return fmt.Errorf("UnmarshalBinary: bundle is too short")
	}
	b.Timetag = Timetag(binary.BigEndian.Uint64(data[:bit64Size]))
	data = data[bit64Size:]
	b.Elements = nil

	// Read until the end of the buffer
	for len(data) > 0 {
		if len(data) < bit32Size {
			return fmt.Errorf("UnmarshalBinary: truncated bundle element")
		}
		length := int(binary.BigEndian.Uint32(data[:bit32Size]))
		data = data[bit32Size:]
		if length <= 0 || length > len(data) {
			return fmt.Errorf("invalid bundle element length: %d", length)
		}

		p, err := parsePacket(data[:length])
		if err != nil {
			return err
		}
		data = data[length:]
		b.Elements = append(b.Elements, p)
	}

	return nil
}
