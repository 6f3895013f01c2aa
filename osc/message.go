package osc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Message represents a single OSC message. An OSC message consists of an OSC
// address pattern and zero or more arguments.
type Message struct {
	Address   string
	Arguments []interface{}
}

// Verify that Messages implements the Packet interface.
var _ Packet = (*Message)(nil)

// NewMessage returns a new Message. The address parameter is the OSC address.
func NewMessage(addr string, args ...interface{}) *Message {
	return &Message{Address: addr, Arguments: args}
}

// NewMessageFromData returns a new Message parsed from data.
func NewMessageFromData(data []byte) (msg *Message, err error) {
	msg = &Message{}
	if err = msg.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return msg, nil
}

// Clear clears the OSC address and all arguments.
func (m *Message) Clear() {
	m.Address = ""
	m.Arguments = m.Arguments[:0]
}

// Append appends the given arguments to the arguments list.
func (m *Message) Append(args ...interface{}) error {
	for _, a := range args {
		if _, err := GetTypeTag(a); err != nil {
			return err
		}
	}
	m.Arguments = append(m.Arguments, args...)
	return nil
}

// Match returns true, if the OSC address pattern of the OSC Message matches the given
// address. The match is case sensitive!
func (m *Message) Match(addr string) bool {
	regexp, err := getRegEx(m.Address)
	if err != nil {
		return false
	}
	return regexp.MatchString(addr)
}

// TypeTags returns the type tag string.
func (m *Message) TypeTags() (string, error) {
	if m == nil {
		return "", fmt.Errorf("TypeTags: message is nil")
	}

	tags := make([]byte, 0, len(m.Arguments)+1)
	tags = append(tags, ',')
	for _, arg := range m.Arguments {
		tag := ToTypeTag(arg)
		if tag == TypeInvalid {
			return "", fmt.Errorf("TypeTags: unsupported type: %T", arg)
		}
		tags = append(tags, byte(tag))
	}

	return string(tags), nil
}

// String implements the fmt.Stringer interface.
func (m *Message) String() string {
	if m == nil {
		return ""
	}

	tags, _ := m.TypeTags()

	strBuf := bufPool.Get().(*bytes.Buffer)
	defer bufPool.Put(strBuf)
	strBuf.Reset()

	strBuf.WriteString(m.Address)
	if len(m.Arguments) == 0 {
		return strBuf.String()
	}

	strBuf.WriteByte(' ')
	strBuf.WriteString(tags)

	for _, arg := range m.Arguments {
		switch arg := arg.(type) {
		case bool, int32, int64, float32, float64, string:
			fmt.Fprintf(strBuf, " %v", arg)

		case nil:
			strBuf.WriteString(" Nil")

		case []byte:
			strBuf.WriteString(" blob")

		case Timetag:
			fmt.Fprintf(strBuf, " %d", arg.TimeTag())
		}
	}

	return strBuf.String()
}

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (m *Message) MarshalBinary() ([]byte, error) {
	data := bufPool.Get().(*bytes.Buffer)
	defer bufPool.Put(data)
	data.Reset()

	if err := m.LightMarshalBinary(data); err != nil {
		return nil, err
	}
	return append([]byte(nil), data.Bytes()...), nil
}

// LightMarshalBinary writes the OSC message to data. The layout is:
// 1. OSC Address Pattern
// 2. OSC Type Tag String
// 3. OSC Arguments
func (m *Message) LightMarshalBinary(data *bytes.Buffer) error {
	typetags, err := m.TypeTags()
	if err != nil {
		return fmt.Errorf("LightMarshalBinary: %w", err)
	}

	start := data.Len()
	writePaddedString(m.Address, data)
	writePaddedString(typetags, data)

	var buf [bit64Size]byte
	for _, arg := range m.Arguments {
		switch t := arg.(type) {
		case bool, nil:
			continue
		case int32:
			binary.BigEndian.PutUint32(buf[:bit32Size], uint32(t))
			data.Write(buf[:bit32Size])
		case float32:
			binary.BigEndian.PutUint32(buf[:bit32Size], math.Float32bits(t))
			data.Write(buf[:bit32Size])
		case int64:
			binary.BigEndian.PutUint64(buf[:], uint64(t))
			data.Write(buf[:])
		case float64:
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(t))
			data.Write(buf[:])
		case string:
			writePaddedString(t, data)
		case []byte:
			writeBlob(t, data)
		case Timetag:
			binary.BigEndian.PutUint64(buf[:], uint64(t))
			data.Write(buf[:])
		}
	}

	if n := data.Len() - start; n > MaxPacketSize {
		return fmt.Errorf("LightMarshalBinary: packet too large: %d", n)
	}

	return nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (m *Message) UnmarshalBinary(data []byte) error {
	if len(data) == 0 || data[0] != '/' {
		return fmt.Errorf("UnmarshalBinary: data not a valid OSC message")
	}

	if (len(data) % bit32Size) != 0 {
		return fmt.Errorf("UnmarshalBinary: data isn't mod 4")
	}

	// First, read the OSC address
	addr, n, err := parsePaddedString(data)
	if err != nil {
		return fmt.Errorf("UnmarshalBinary: %w", err)
	}

	m.Address = addr
	m.Arguments = nil
	if err = m.parseArguments(data[n:]); err != nil {
		return fmt.Errorf("UnmarshalBinary: %w", err)
	}

	return nil
}

// parseArguments reads the type tag string and the arguments it describes.
func (m *Message) parseArguments(data []byte) error {
	// Some senders omit the type tag string when there are no arguments.
	if len(data) == 0 {
		return nil
	}

	typetags, n, err := parsePaddedString(data)
	if err != nil {
		return fmt.Errorf("parseArguments: %w", err)
	}
	data = data[n:]

	if len(typetags) == 0 {
		return nil
	}

	// If the typetag doesn't start with ',', it's not valid
	if typetags[0] != ',' {
		return fmt.Errorf("unsupported typetag string: %s", typetags)
	}

	need := func(size int) error {
		if len(data) < size {
			return fmt.Errorf("parseArguments: not enough bytes to read")
		}
		return nil
	}

	for _, c := range typetags[1:] {
		switch TypeTag(c) {
		default:
			return fmt.Errorf("unsupported typetag: %c", c)

		case TypeInt32:
			if err := need(bit32Size); err != nil {
				return err
			}
			m.Arguments = append(m.Arguments, int32(binary.BigEndian.Uint32(data)))
			data = data[bit32Size:]

		case TypeInt64:
			if err := need(bit64Size); err != nil {
				return err
			}
			m.Arguments = append(m.Arguments, int64(binary.BigEndian.Uint64(data)))
			data = data[bit64Size:]

		case TypeFloat32:
			if err := need(bit32Size); err != nil {
				return err
			}
			m.Arguments = append(m.Arguments, math.Float32frombits(binary.BigEndian.Uint32(data)))
			data = data[bit32Size:]

		case TypeFloat64:
			if err := need(bit64Size); err != nil {
				return err
			}
			m.Arguments = append(m.Arguments, math.Float64frombits(binary.BigEndian.Uint64(data)))
			data = data[bit64Size:]

		case TypeString:
			str, n, err := parsePaddedString(data)
			if err != nil {
				return fmt.Errorf("parseArguments: %w", err)
			}
			m.Arguments = append(m.Arguments, str)
			data = data[n:]

		case TypeBlob:
			blob, n, err := parseBlob(data)
			if err != nil {
				return fmt.Errorf("parseArguments: %w", err)
			}
			m.Arguments = append(m.Arguments, blob)
			data = data[n:]

		case TypeTimeTag:
			if err := need(bit64Size); err != nil {
				return err
			}
			m.Arguments = append(m.Arguments, Timetag(binary.BigEndian.Uint64(data)))
			data = data[bit64Size:]

		case TypeNil:
			m.Arguments = append(m.Arguments, nil)

		case TypeTrue:
			m.Arguments = append(m.Arguments, true)

		case TypeFalse:
			m.Arguments = append(m.Arguments, false)
		}
	}

	return nil
}
