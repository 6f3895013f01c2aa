package osc

import (
	"fmt"
	"net"
	"time"
)

// Client enables you to send OSC Packets over UDP. A client owns one local
// socket, so replies sent back to it can be read with Receive.
type Client struct {
	conn  net.PacketConn
	raddr net.Addr
}

// Dial creates a new OSC Client with a connection to the specified server.
func Dial(addr string) (*Client, error) {
	a, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, raddr: a}, nil
}

// Listen creates a new OSC Client bound to laddr with no default destination.
func Listen(laddr string) (*Client, error) {
	conn, err := net.ListenPacket("udp", laddr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an existing connection. raddr may be nil.
func NewClient(conn net.PacketConn, raddr net.Addr) *Client {
	return &Client{conn: conn, raddr: raddr}
}

// Send sends an OSC Packet to the server the client was dialed to.
func (c *Client) Send(packet Packet) error {
	if c.raddr == nil {
		return fmt.Errorf("Send: client has no default destination")
	}
	return c.SendTo(packet, c.raddr)
}

// SendTo sends an OSC Packet to addr.
func (c *Client) SendTo(packet Packet, addr net.Addr) error {
	data, err := packet.MarshalBinary()
	if err != nil {
		return err
	}

	_, err = c.conn.WriteTo(data, addr)
	return err
}

// Receive reads one packet from the client's socket, waiting until deadline.
// A zero deadline waits forever.
func (c *Client) Receive(deadline time.Time) (Packet, net.Addr, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, nil, err
	}
	return readFromConnection(c.conn)
}

// LocalAddr returns the address the client's socket is bound to.
func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Close closes the connection to the server.
func (c *Client) Close() error {
	return c.conn.Close()
}
