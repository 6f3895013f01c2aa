package osc

import (
	"encoding"
	"fmt"
)

// Packet is the interface for Message and Bundle.
type Packet interface {
	encoding.BinaryMarshaler
}

// ParsePacket parses the given data into a Message or a Bundle.
func ParsePacket(data []byte) (Packet, error) {
	return parsePacket(data)
}

func parsePacket(data []byte) (Packet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("ParsePacket: empty packet")
	}

	switch data[0] {
	case '/':
		return NewMessageFromData(data)
	case '#':
		return NewBundleFromData(data)
	default:
		return nil, fmt.Errorf("ParsePacket: invalid packet start %q", data[0])
	}
}
