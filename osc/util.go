package osc

import (
	"bytes"
	"regexp"
	"strings"
	"sync"
)

const (
	bit32Size = 4
	bit64Size = 8

	// MaxPacketSize is the largest datagram payload the server will read and
	// the client will send.
	MaxPacketSize = 65507

	bundleTagString = "#bundle"
)

////
// Utility and helper functions
////
var (
	bufPool = sync.Pool{
		New: func() interface{} {
			return bytes.NewBuffer(make([]byte, 0, 512))
		},
	}
	readPool = sync.Pool{
		New: func() interface{} {
			b := make([]byte, MaxPacketSize)
			return &b
		},
	}
	addrReplacer = strings.NewReplacer(
		".", `\.`,
		"(", `\(`,
		")", `\)`,
		"*", "[^/]*",
		"{", "(",
		",", "|",
		"}", ")",
		"?", "[^/]",
		"!", "^",
	)
)

// getRegEx returns a regexp.Regexp for the given OSC address pattern.
func getRegEx(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(addrReplacer.Replace(pattern))
}
