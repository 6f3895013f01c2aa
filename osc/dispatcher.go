package osc

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"
)

// Method is an interface for OSC Methods.
type Method interface {
	HandleMessage(msg *Message)
}

// MethodFunc implements the Method interface. Type definition for an OSC Method function.
type MethodFunc func(msg *Message)

// HandleMessage calls itself with the given OSC Message. Implements the Method interface.
func (f MethodFunc) HandleMessage(msg *Message) {
	f(msg)
}

// Dispatcher handles the dispatching of received OSC Packets to Methods for their given Address.
type Dispatcher struct {
	methods map[string]Method

	// BundleMethod, when set, receives every bundle as-is. Otherwise the
	// bundle's elements are dispatched once its time tag expires.
	BundleMethod func(b *Bundle, a net.Addr)

	// NotFound, when set, receives messages no method matched.
	NotFound MethodFunc
}

// Verify that Dispatcher implements the Handler interface.
var _ Handler = (*Dispatcher)(nil)

// AddMethod adds a new OSC Method for the given OSC Address.
func (d *Dispatcher) AddMethod(addr string, method Method) error {
	if d.methods == nil {
		d.methods = make(map[string]Method)
	}

	if strings.ContainsAny(addr, "*?,[]{}# ") {
		return fmt.Errorf("AddMethod: OSC Method may not contain any characters in \"*?,[]{}# \"")
	}

	if _, ok := d.methods[addr]; ok {
		return fmt.Errorf("AddMethod: OSC Method exists already")
	}

	d.methods[addr] = method
	return nil
}

// AddMethodFunc allows you to just pass a MethodFunc.
func (d *Dispatcher) AddMethodFunc(addr string, method MethodFunc) error {
	return d.AddMethod(addr, method)
}

// HandlePacket implements the Handler interface.
func (d *Dispatcher) HandlePacket(packet Packet, a net.Addr) {
	d.Dispatch(packet, a)
}

// Dispatch dispatches OSC Packets.
func (d *Dispatcher) Dispatch(packet Packet, a net.Addr) {
	switch p := packet.(type) {
	case *Message:
		if d.DispatchMessage(p) == 0 && d.NotFound != nil {
			d.NotFound(p)
		}
	case *Bundle:
		if d.BundleMethod != nil {
			d.BundleMethod(p, a)
			return
		}
		time.AfterFunc(p.Timetag.ExpiresIn(), func() {
			defer recoverer(slog.Default(), a)
			for _, elem := range p.Elements {
				d.Dispatch(elem, a)
			}
		})
	}
}

// DispatchMessage calls every method whose address matches the message's
// address pattern and returns how many were called.
func (d *Dispatcher) DispatchMessage(msg *Message) int {
	r, err := getRegEx(msg.Address)
	if err != nil {
		return 0
	}
	// The OSC Spec mentions that each address is divided into parts, so we could use a radix tree here.
	// For now, I'm gonna hope that being clever is enough
	r.Longest()
	aParts := strings.Count(msg.Address, "/")
	matched := 0
	for addr, method := range d.methods {
		if aParts == strings.Count(addr, "/") && r.FindString(addr) == addr {
			method.HandleMessage(msg)
			matched++
		}
	}
	return matched
}
