package osc

import (
	"errors"
	"log/slog"
	"net"
	"runtime"
	"time"
)

// Handler responds to an OSC packet received from addr.
type Handler interface {
	HandlePacket(packet Packet, addr net.Addr)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(packet Packet, addr net.Addr)

// HandlePacket calls f(packet, addr).
func (f HandlerFunc) HandlePacket(packet Packet, addr net.Addr) {
	f(packet, addr)
}

// ParseError is returned by ReceivePacket when a datagram arrived but could
// not be decoded. The server keeps serving after one.
type ParseError struct {
	Addr net.Addr
	Err  error
}

func (e *ParseError) Error() string {
	return "osc: malformed packet from " + addrString(e.Addr) + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Server represents an OSC server. The server listens on Addr for incoming
// OSC packets and bundles and hands them to Handler one at a time, in
// arrival order.
type Server struct {
	Addr        string
	Handler     Handler
	ReadTimeout time.Duration
	Logger      *slog.Logger
}

// ListenAndServe listens on addr and passes every packet to handler.
func ListenAndServe(addr string, handler HandlerFunc) error {
	s := &Server{Addr: addr, Handler: handler}
	return s.ListenAndServe()
}

// ListenAndServe retrieves incoming OSC packets and dispatches the retrieved OSC packets.
func (s *Server) ListenAndServe() error {
	if s.Handler == nil {
		s.Handler = &Dispatcher{}
	}

	ln, err := net.ListenPacket("udp", s.Addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	return s.Serve(ln)
}

// Serve retrieves incoming OSC packets from the given connection and
// dispatches them sequentially. Serve returns nil once c is closed.
func (s *Server) Serve(c net.PacketConn) error {
	var tempDelay time.Duration
	for {
		p, addr, err := s.readFromConnection(c)
		if err != nil {
			var pe *ParseError
			var ne net.Error
			switch {
			case errors.Is(err, net.ErrClosed):
				return nil
			case errors.As(err, &pe):
				s.logger().Warn("dropping malformed packet", "from", addrString(addr), "error", pe.Err)
				continue
			case errors.As(err, &ne) && ne.Timeout():
				continue
			case errors.As(err, &ne):
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				s.logger().Warn("read failed, retrying", "error", err, "delay", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return err
		}
		tempDelay = 0
		s.serve(p, addr)
	}
}

func (s *Server) serve(p Packet, a net.Addr) {
	defer recoverer(s.logger(), a)
	s.Handler.HandlePacket(p, a)
}

// ReceivePacket listens for incoming OSC packets and returns the packet if one is received.
func (s *Server) ReceivePacket(c net.PacketConn) (Packet, net.Addr, error) {
	return s.readFromConnection(c)
}

// readFromConnection retrieves OSC packets.
func (s *Server) readFromConnection(c net.PacketConn) (Packet, net.Addr, error) {
	if s.ReadTimeout != 0 {
		if err := c.SetReadDeadline(time.Now().Add(s.ReadTimeout)); err != nil {
			return nil, nil, err
		}
	}
	return readFromConnection(c)
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func readFromConnection(c net.PacketConn) (Packet, net.Addr, error) {
	b := readPool.Get().(*[]byte)
	defer readPool.Put(b)

	n, a, err := c.ReadFrom(*b)
	if err != nil {
		return nil, a, err
	}

	p, err := parsePacket((*b)[:n])
	if err != nil {
		return nil, a, &ParseError{Addr: a, Err: err}
	}
	return p, a, nil
}

func recoverer(logger *slog.Logger, a net.Addr) {
	if err := recover(); err != nil {
		buf := make([]byte, 8<<10)
		buf = buf[:runtime.Stack(buf, false)]
		logger.Error("panic handling packet", "from", addrString(a), "panic", err, "stack", string(buf))
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return "<nil>"
	}
	return a.String()
}
