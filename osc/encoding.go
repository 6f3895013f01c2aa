package osc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

////
// De/Encoding functions
////

// parseBlob parses an OSC blob from data. It returns a copy of the blob and
// the number of bytes consumed, padding included.
func parseBlob(data []byte) ([]byte, int, error) {
	if len(data) < bit32Size {
		return nil, 0, fmt.Errorf("parseBlob: %w", io.ErrUnexpectedEOF)
	}

	// First, get the length
	blobLen := int(binary.BigEndian.Uint32(data[:bit32Size]))
	data = data[bit32Size:]

	if blobLen < 0 || blobLen > len(data) {
		return nil, 0, fmt.Errorf("parseBlob: invalid blob length %d", blobLen)
	}

	n := bit32Size + blobLen
	n += padBytesNeeded(n)
	if n > bit32Size+len(data) {
		return nil, 0, fmt.Errorf("parseBlob: %w", io.ErrUnexpectedEOF)
	}

	blob := make([]byte, blobLen)
	copy(blob, data[:blobLen])
	return blob, n, nil
}

// writeBlob writes data as an OSC blob into b. If the length of data isn't
// 32-bit aligned, padding bytes are added. Returns the number of bytes written.
func writeBlob(data []byte, b *bytes.Buffer) int {
	var size [bit32Size]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(data)))
	b.Write(size[:])
	b.Write(data)

	n := bit32Size + len(data)
	pad := padBytesNeeded(n)
	b.Write(make([]byte, pad))
	return n + pad
}

// parsePaddedString reads a padded string from the given slice and returns
// the string and the number of bytes read, padding included.
func parsePaddedString(data []byte) (string, int, error) {
	pos := bytes.IndexByte(data, 0)
	if pos == -1 {
		return "", 0, fmt.Errorf("parsePaddedString: %w", io.EOF)
	}

	n := pos + 1
	n += padBytesNeeded(n)
	if n > len(data) {
		return "", 0, fmt.Errorf("parsePaddedString: %w", io.ErrUnexpectedEOF)
	}

	return string(data[:pos]), n, nil
}

// writePaddedString writes a string with its terminating null and padding
// bytes to the buffer. Returns the number of written bytes.
func writePaddedString(str string, b *bytes.Buffer) int {
	b.WriteString(str)
	n := len(str) + 1
	pad := padBytesNeeded(n)
	b.Write(make([]byte, pad+1))
	return n + pad
}

// padBytesNeeded determines how many bytes are needed to fill up to the next 4
// byte length.
func padBytesNeeded(elementLen int) int {
	return (4 - (elementLen % 4)) % 4
}
